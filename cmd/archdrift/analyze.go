package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"archdrift/internal/index"
	"archdrift/internal/metrics"
	"archdrift/internal/pipeline"
	"archdrift/internal/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	projectFlag  string
	nameFlag     string
	formatFlag   string
	outFlag      string
	changedSince string
	noCache      bool
	metricsOut   string
	graphOut     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Parse the project, update the graph store and report drift",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := projectRoot(args)
		fmt.Fprintf(os.Stderr, "📂 Analyzing directory: %s\n", root)

		store, err := initStore()
		if err != nil {
			return err
		}
		defer store.Close()

		pc, err := initCache(root, noCache)
		if err != nil {
			return err
		}
		var parseCache index.Cache
		if pc != nil {
			defer pc.Close()
			parseCache = pc
		}

		collector := metrics.NewCollector()
		p, err := pipeline.New(pipeline.Options{
			Config:   cfg,
			Store:    store,
			Cache:    parseCache,
			Metrics:  collector,
			Logger:   logger,
			Progress: os.Stderr,
		})
		if err != nil {
			return err
		}

		res, err := p.Run(cmd.Context(), pipeline.Request{
			ProjectID:    projectID(projectFlag, root),
			ProjectName:  nameFlag,
			Root:         root,
			ChangedSince: changedSince,
		})
		if err != nil {
			return err
		}

		if graphOut != "" {
			if err := index.SaveGraph(res.Graph, graphOut); err != nil {
				return fmt.Errorf("failed to save graph snapshot: %w", err)
			}
		}
		if metricsOut != "" {
			if err := prometheus.WriteToTextfile(metricsOut, collector.Registry()); err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
		}
		return writeReport(res.Report, formatFlag, outFlag)
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&projectFlag, "project", "p", "", "Project id (default: config project.id or directory name)")
	analyzeCmd.Flags().StringVar(&nameFlag, "name", "", "Project display name")
	analyzeCmd.Flags().StringVarP(&formatFlag, "format", "f", "json", "Report format: json or markdown")
	analyzeCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Write the report to this file instead of stdout")
	analyzeCmd.Flags().StringVar(&changedSince, "changed-since", "", "Only reparse files changed since this git ref")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not use the parse cache")
	analyzeCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write run metrics in Prometheus text format to this file")
	analyzeCmd.Flags().StringVar(&graphOut, "graph-out", "", "Write this run's dependency graph as a JSON snapshot")
}

// writeReport renders r to out, or to stdout when out is empty.
func writeReport(r *report.DriftReport, format, out string) error {
	format = strings.ToLower(format)
	if format != "json" && format != "markdown" && format != "md" {
		return fmt.Errorf("unknown format %q: want json or markdown", format)
	}

	var w io.Writer = os.Stdout
	if out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	var err error
	if format == "json" {
		err = r.WriteJSON(w)
	} else {
		err = r.WriteMarkdown(w)
	}
	if err == nil && out != "" {
		fmt.Fprintf(os.Stderr, "✅ Report written to %s\n", out)
	}
	return err
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if cfg.Analysis.Timeout > 0 {
		return context.WithTimeout(ctx, cfg.Analysis.Timeout)
	}
	return context.WithCancel(ctx)
}
