package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-categorizer/internal/pipeline"
)

var (
	runTestMode bool
	runLimit    int
	runDryRun   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Categorize the contacts of the configured list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Pipeline.Run(ctx, pipeline.Options{
			TestMode: runTestMode,
			Limit:    runLimit,
			DryRun:   runDryRun,
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("categorization complete",
			zap.Int("processed", report.Processed),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTestMode, "test", false, "process exactly one contact and skip CRM writes")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max contacts to process (0 = whole list)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "skip CRM writes")
	rootCmd.AddCommand(runCmd)
}
