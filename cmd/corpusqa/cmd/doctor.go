package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/errors"
	"github.com/corpusqa/corpusqa/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and upstream health",
		Long: `Run diagnostics against the local environment and the upstream
services the query pipeline depends on.

Checks:
  - Data directory write permissions
  - Disk space (100MB minimum)
  - File descriptor limits (1024 minimum)
  - Embedding service reachability (Ollama)
  - Rerank service health endpoint
  - Generation backend reachability

Unreachable upstreams are warnings, not failures: the pipeline
degrades to lexical-only retrieval and skipped reranking.`,
		Example: `  corpusqa doctor
  corpusqa doctor --verbose
  corpusqa doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithUpstreams(proberOrNil(a), a.reranker, a.generator),
	)

	results := checker.RunAll(cmd.Context(), cfg.Storage.DataDir)

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"status": checker.SummaryStatus(results),
			"checks": results,
		}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return errors.New(errors.ErrCodeConfigInvalid, "system check failed", nil)
	}
	return nil
}

// proberOrNil avoids handing preflight a typed-nil interface when the
// embedder never came up.
func proberOrNil(a *app) preflight.Prober {
	if a.embedder == nil {
		return nil
	}
	return a.embedder
}
