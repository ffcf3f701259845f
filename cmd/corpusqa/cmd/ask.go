package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corpusqa/corpusqa/internal/search"
)

func newAskCmd() *cobra.Command {
	var (
		clientID string
		format   string
		sources  bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question over the corpus",
		Long: `Answer a question grounded in the document corpus.

Retrieval runs first; the generator then answers strictly from the
retrieved fragments and the answer is scored with a confidence
estimate. When nothing relevant is found the canned not-found
answer is returned with floor confidence.`,
		Example: `  corpusqa ask "what is the termination notice period?"
  corpusqa ask "total invoice amount for March" --client acme
  corpusqa ask "are there collateral requirements?" --sources`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), clientID, format, sources)
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Restrict to one tenant's chunks")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&sources, "sources", false, "List the source chunks under the answer")

	return cmd
}

func runAsk(cmd *cobra.Command, question, clientID, format string, sources bool) error {
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

	answer, err := a.engine.Ask(cmd.Context(), question, search.Options{ClientID: clientID})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Fprintln(out, answer.Text)
	fmt.Fprintf(out, "\nconfidence: %.2f  (%s, %s)\n", answer.Confidence, answer.Path, answer.RerankOutcome)

	if sources && len(answer.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for i, c := range answer.Sources {
			fmt.Fprintf(out, "  [%d] %s", i+1, c.ChunkID)
			if c.Chunk != nil && c.Chunk.Heading != "" {
				fmt.Fprintf(out, "  %s", c.Chunk.Heading)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
