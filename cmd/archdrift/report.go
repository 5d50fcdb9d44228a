package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"archdrift/internal/analysis"
	"archdrift/internal/report"

	"github.com/spf13/cobra"
)

var (
	reportFormat string
	reportOut    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a drift report from the graph store without reparsing",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := initStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		pid := projectID(projectFlag, cfg.Project.Root)
		eng := analysis.NewEngine(store, analysis.Config{
			ComplexityThreshold: cfg.Analysis.ComplexityThreshold,
			CriticalPathLimit:   cfg.Analysis.CriticalPathLimit,
			ViolationWindow:     cfg.Analysis.ViolationWindow,
		}, logger)

		cycles, err := eng.FindCircularDependencies(ctx, pid)
		if err != nil {
			return fmt.Errorf("failed to find cycles: %w", err)
		}
		coupling, err := eng.CouplingMetrics(ctx, pid)
		if err != nil {
			return fmt.Errorf("failed to compute coupling: %w", err)
		}
		paths, err := eng.CriticalPaths(ctx, pid, eng.Config().CriticalPathLimit)
		if err != nil {
			return fmt.Errorf("failed to rank critical paths: %w", err)
		}
		persisted, err := eng.RecentViolations(ctx, pid, eng.Config().ViolationWindow)
		if err != nil {
			return fmt.Errorf("failed to load violations: %w", err)
		}

		r := report.Assemble(report.Inputs{
			ProjectID:           pid,
			Cycles:              cycles,
			Coupling:            coupling,
			CriticalPaths:       paths,
			PersistedViolations: persisted,
			GeneratedAt:         time.Now(),
		})
		return writeReport(r, reportFormat, reportOut)
	},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show module, class and function counts for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := initStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		eng := analysis.NewEngine(store, analysis.Config{}, logger)
		ov, err := eng.ProjectOverview(ctx, projectID(projectFlag, cfg.Project.Root))
		if err != nil {
			return fmt.Errorf("failed to load overview: %w", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ov)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&projectFlag, "project", "p", "", "Project id (default: config project.id or directory name)")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "markdown", "Report format: json or markdown")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the report to this file instead of stdout")

	overviewCmd.Flags().StringVarP(&projectFlag, "project", "p", "", "Project id (default: config project.id or directory name)")
}
