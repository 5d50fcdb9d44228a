package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"archdrift/internal/crawler"
	"archdrift/internal/extractor"
	"archdrift/internal/index"
	"archdrift/internal/metrics"
	"archdrift/internal/pipeline"
	"archdrift/internal/watcher"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-analyze the project whenever its sources change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := projectRoot(args)
		ctx := cmd.Context()

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

		p, err := pipeline.New(pipeline.Options{
			Config:  cfg,
			Store:   store,
			Cache:   parseCache,
			Metrics: metrics.NewCollector(),
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		req := pipeline.Request{ProjectID: projectID(projectFlag, root), Root: root}

		analyze := func(ctx context.Context, changed []string) error {
			start := time.Now()
			res, err := p.Run(ctx, req)
			if err != nil {
				return err
			}
			s := res.Report.Summary
			fmt.Printf("✅ [%s] %d changed, %d modules, %d cycles, %d violations (%v)\n",
				time.Now().Format("15:04:05"), len(changed), s.Modules, s.DistinctCycles, s.Violations, time.Since(start).Round(time.Millisecond))
			return nil
		}
		if err := analyze(ctx, nil); err != nil {
			return err
		}

		cr := crawler.NewCrawler(extractor.NewRegistry(), crawler.WithIgnored(cfg.Project.Ignore...))
		w, err := watcher.New(root, analyze,
			watcher.WithDebounceDelay(cfg.Watch.Debounce),
			watcher.WithLogger(logger),
			watcher.WithFilter(func(rel string, isDir bool) bool {
				if isDir {
					return cr.IgnoredDir(rel)
				}
				return cr.Ignored(rel)
			}),
			watcher.WithOnError(func(err error) {
				if errors.Is(err, context.Canceled) {
					return
				}
				fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
			}),
		)
		if err != nil {
			return err
		}
		w.Start()
		fmt.Printf("👀 Watching %s (Ctrl+C to stop)\n", root)

		<-ctx.Done()
		fmt.Println("👋 Stopping watcher")
		return w.Stop()
	},
}

func init() {
	watchCmd.Flags().StringVarP(&projectFlag, "project", "p", "", "Project id (default: config project.id or directory name)")
	watchCmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not use the parse cache")
}
