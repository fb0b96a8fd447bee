package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"finsight/internal/ingestion"
	"finsight/internal/logger"
	"finsight/internal/scoring"
	"finsight/internal/services"
)

func validatePeriods(periods []string) error {
	for _, p := range periods {
		if p != "annual" && p != "quarter" {
			return fmt.Errorf("invalid period %q (use annual or quarter)", p)
		}
	}
	return nil
}

func financialsCmd(g *globalFlags) *cobra.Command {
	var (
		years   []int
		periods []string
		budget  int
	)

	cmd := &cobra.Command{
		Use:   "financials TICKER...",
		Short: "Fetch income statements, balance sheets and cash flows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePeriods(periods); err != nil {
				return err
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			orch, err := e.orchestrator(g.concurrency)
			if err != nil {
				return err
			}
			var results map[string]map[string][]string
			if budget > 0 {
				results, err = orch.FetchWithBudget(cmd.Context(), args, years, periods, budget)
			} else {
				results, err = orch.FetchAndStoreForTickers(cmd.Context(), args, years, periods)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}

	cmd.Flags().IntSliceVar(&years, "years", nil, "Fiscal years to keep (default: last two completed years)")
	cmd.Flags().StringSliceVar(&periods, "periods", nil, "Statement periods: annual, quarter (default: both)")
	cmd.Flags().IntVar(&budget, "budget", 0, "Total data-point budget shared across tickers")
	return cmd
}

func filingsCmd(g *globalFlags) *cobra.Command {
	var (
		from, to   string
		maxFilings int
	)

	cmd := &cobra.Command{
		Use:   "filings TICKER...",
		Short: "Fetch SEC filings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			orch, err := e.orchestrator(g.concurrency)
			if err != nil {
				return err
			}
			var results map[string][]string
			if maxFilings > 0 {
				results, err = orch.FetchSECFilingsWithBudget(cmd.Context(), args, from, to, maxFilings)
			} else {
				results, err = orch.FetchAndStoreSECFilingsForTickers(cmd.Context(), args, from, to)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Earliest filing date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Latest filing date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&maxFilings, "max-filings", 0, "Total filings shared across tickers, most useful first")
	return cmd
}

func coverageCmd(g *globalFlags) *cobra.Command {
	var req ingestion.CoverageRequest

	cmd := &cobra.Command{
		Use:   "coverage TICKER...",
		Short: "Fetch only what is missing from each ticker's coverage window",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePeriods(req.Periods); err != nil {
				return err
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			orch, err := e.orchestrator(g.concurrency)
			if err != nil {
				return err
			}
			req.Tickers = args
			results, err := orch.EnsureCoverage(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}

	cmd.Flags().IntSliceVar(&req.Years, "years", nil, "Fiscal years that must be complete")
	cmd.Flags().StringSliceVar(&req.Periods, "periods", nil, "Statement periods: annual, quarter")
	cmd.Flags().StringVar(&req.From, "from", "", "Earliest filing date (default: ten years back)")
	cmd.Flags().StringVar(&req.To, "to", "", "Latest filing date (default: today)")
	cmd.Flags().IntVar(&req.Budget, "budget", 0, "Statement data-point budget")
	cmd.Flags().IntVar(&req.MaxFilings, "max-filings", 0, "Filing budget")
	return cmd
}

func checkCmd() *cobra.Command {
	var years []int

	cmd := &cobra.Command{
		Use:   "check TICKER...",
		Short: "Report stored coverage without fetching",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			factory, err := ingestion.FromConfig(e.cfg, e.db, e.rdb, e.metrics)
			if err != nil {
				return err
			}
			task, err := factory.NewTask()
			if err != nil {
				return err
			}
			if len(years) == 0 {
				years = ingestion.DefaultYears(factory.Now())
			}

			reports := make(map[string]*services.CompletenessReport, len(args))
			for _, ticker := range args {
				report, err := task.Completeness(cmd.Context(), ticker, years)
				if err != nil {
					return fmt.Errorf("%s: %w", ticker, err)
				}
				reports[ticker] = report
			}
			return printJSON(cmd, reports)
		},
	}

	cmd.Flags().IntSliceVar(&years, "years", nil, "Fiscal years that must be complete")
	return cmd
}

func seedTemplatesCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "seed-templates",
		Short: "Upsert every YAML scoring template in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			templates, err := scoring.LoadDir(dir)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			log := logger.Named("seed")
			svc := services.NewTemplateService(e.db)
			for _, t := range templates {
				stored, err := svc.Upsert(cmd.Context(), t)
				if err != nil {
					return fmt.Errorf("template %s: %w", t.Slug, err)
				}
				log.Infow("template stored", "slug", stored.Slug, "name", stored.Name, "dimensions", len(stored.Dimensions))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "templates", "Directory of template YAML files")
	return cmd
}
