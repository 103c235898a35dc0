package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/internal/counter/analysis"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

func NewCountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count <path>...",
		Short: "Analyze documents",
		Long: `Analyze documents and print their totals, repetitions and translation
memory matches. Directories are walked recursively, skipping hidden entries.

With --combined the documents are analyzed as one run, so a segment repeated
in another document counts as a repetition.`,
		Args: cobra.MinimumNArgs(1),
		RunE: makeCountRunner(a),
	}

	cmd.Flags().String("memory", "", "Translation memory (TMX or snapshot), overrides counter.memoryPath")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	cmd.Flags().Bool("combined", false, "Analyze all documents as one run")
	cmd.Flags().String("segmentation", "", "Segmentation mode (sentence|section)")
	cmd.Flags().String("characters", "", "Character counting (codepoints|graphemes)")
	return cmd
}

// countOutput is the JSON document printed by count --json.
type countOutput struct {
	Documents []documentOutput   `json:"documents"`
	Combined  *counter.Report    `json:"combined,omitempty"`
	Summary   *analysis.Analysis `json:"summary,omitempty"`
}

type documentOutput struct {
	Path   string          `json:"path"`
	Report *counter.Report `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func makeCountRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := a.cfg.Counter
		if memory, _ := cmd.Flags().GetString("memory"); memory != "" {
			cfg.MemoryPath = memory
		}
		if mode, _ := cmd.Flags().GetString("segmentation"); mode != "" {
			cfg.Segmentation = mode
		}
		if mode, _ := cmd.Flags().GetString("characters"); mode != "" {
			cfg.Characters = mode
		}
		if cmd.Flags().Changed("combined") {
			cfg.Combined, _ = cmd.Flags().GetBool("combined")
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		engine, err := counter.NewEngine(cfg, nil)
		if err != nil {
			return fmt.Errorf("create counter: %w", err)
		}
		paths, err := counter.ExpandPaths(args)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidInput, err, "expand paths")
		}
		if len(paths) == 0 {
			return apperrors.New(apperrors.ErrInvalidInput, "no files to count")
		}

		var out countOutput
		var results []counter.Result
		if cfg.Combined {
			out.Combined, results, err = engine.CountCombined(cmd.Context(), paths)
		} else {
			results, err = engine.CountFiles(cmd.Context(), paths)
		}
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		if !cfg.Combined && len(results) > 1 {
			summary := counter.Summarize(counter.Reports(results))
			out.Summary = &summary
		}

		var failed error
		for _, r := range results {
			doc := documentOutput{Path: r.Path, Report: r.Report}
			if r.Err != nil {
				doc.Error = r.Err.Error()
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Path, r.Err)
				if failed == nil {
					failed = r.Err
				}
			}
			out.Documents = append(out.Documents, doc)
		}

		if asJSON {
			if err := outputCountJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
		} else if err := outputCountText(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		return failed
	}
}

func outputCountJSON(w io.Writer, out countOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func outputCountText(w io.Writer, out countOutput) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tsegments\twords\tcharacters\t")
	for _, doc := range out.Documents {
		if doc.Report == nil {
			continue
		}
		writeAnalysis(tw, doc.Path, doc.Report.Analysis)
	}
	if out.Summary != nil {
		writeAnalysis(tw, "summary", *out.Summary)
	}
	if out.Combined != nil {
		writeAnalysis(tw, "combined", out.Combined.Analysis)
	}
	return tw.Flush()
}

func writeAnalysis(w io.Writer, name string, a analysis.Analysis) {
	fmt.Fprintf(w, "%s\t\t\t\t\n", name)
	for _, row := range []struct {
		class  string
		counts analysis.Counts
	}{
		{"total", a.Total},
		{"repetitions", a.Repetitions},
		{"matches", a.Matches},
	} {
		fmt.Fprintf(w, "  %s\t%d\t%d\t%d\t\n", row.class, row.counts.Segments, row.counts.Words, row.counts.Characters)
	}
}
