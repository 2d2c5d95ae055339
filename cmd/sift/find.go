package main

import (
	"fmt"
	"strings"

	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/render"
	"github.com/FranksOps/sift/internal/storage"
	"github.com/FranksOps/sift/internal/storage/memory"
	"github.com/FranksOps/sift/internal/summarizer"
	"github.com/spf13/cobra"
)

var (
	flagFindJSON      bool
	flagFindEphemeral bool
)

var findCmd = &cobra.Command{
	Use:   "find <query>",
	Short: "Run one query through the pipeline and print the response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		var store storage.Store = memory.New()
		if !flagFindEphemeral {
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			store = s
		}
		defer store.Close()

		a, err := newApp(cfg, store, logger)
		if err != nil {
			return err
		}

		out, err := a.pipeline.Find(ctx, query, a.registry.All())
		if err != nil {
			return err
		}
		return printOutcome(cmd, query, out)
	},
}

func init() {
	findCmd.Flags().BoolVar(&flagFindJSON, "json", false, "print the outcome as JSON")
	findCmd.Flags().BoolVar(&flagFindEphemeral, "ephemeral", false, "use an in-memory store instead of the configured one")
}

type findResult struct {
	Query    string              `json:"query"`
	Status   string              `json:"status"`
	Links    []string            `json:"links,omitempty"`
	Strategy summarizer.Strategy `json:"strategy,omitempty"`
	Degraded bool                `json:"degraded"`
	Text     string              `json:"text,omitempty"`
}

func printOutcome(cmd *cobra.Command, query string, out pipeline.Outcome) error {
	w := cmd.OutOrStdout()
	if flagFindJSON {
		return render.WriteJSON(w, findResult{
			Query:    query,
			Status:   out.Status.String(),
			Links:    out.Links,
			Strategy: out.Strategy,
			Degraded: out.Degraded,
			Text:     out.Text,
		})
	}

	switch out.Status {
	case pipeline.StatusNoLinks:
		_, err := fmt.Fprintln(w, "Could not find any articles. Try another topic.")
		return err
	case pipeline.StatusNoContent:
		_, err := fmt.Fprintln(w, "Could not extract content from the pages.")
		return err
	default:
		_, err := fmt.Fprintln(w, out.Text)
		return err
	}
}
