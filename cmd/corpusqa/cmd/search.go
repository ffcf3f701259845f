package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/search"
)

// searchOptions holds CLI flags for one-shot search.
type searchOptions struct {
	limit    int
	clientID string
	format   string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve relevant chunks for a query",
		Long: `Run the retrieval pipeline once and print the ranked chunks.

Lexical and vector search run in parallel, are fused with
reciprocal rank fusion, and reranked by the cross-encoder when
the rerank service is up.`,
		Example: `  corpusqa search "termination notice period"
  corpusqa search "monthly instalment amount" --client acme --limit 5
  corpusqa search "collateral requirements" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchCmd(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVar(&opts.clientID, "client", "", "Restrict to one tenant's chunks")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearchCmd(cmd *cobra.Command, query string, opts searchOptions) error {
	logCleanup, err := setupQuietLogging()
	if err != nil {
		return err
	}
	defer logCleanup()

	a, err := buildApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.Search(cmd.Context(), query, search.Options{
		ClientID: opts.clientID,
		TopK:     opts.limit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Candidates) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}

	fmt.Fprintf(out, "%d results (%s, %s, %s)\n\n",
		len(result.Candidates), result.Path, result.RerankOutcome, result.Latency.Round(time.Millisecond))
	for i, c := range result.Candidates {
		fmt.Fprintf(out, "%2d. [%.3f] %s", i+1, c.Score, c.ChunkID)
		if c.Chunk != nil {
			if c.Chunk.Heading != "" {
				fmt.Fprintf(out, "  %s", c.Chunk.Heading)
			}
			fmt.Fprintf(out, "\n    %s\n", firstLine(c.Chunk.Text, 160))
		} else {
			fmt.Fprintln(out)
		}
	}
	return nil
}

// firstLine returns the first line of s truncated to max runes.
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return s
}

// setupQuietLogging configures logging without the stderr mirror so
// one-shot command output stays clean.
func setupQuietLogging() (func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return setupLogging(cfg, false)
}
