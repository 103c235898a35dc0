package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/internal/counter/hashment"
	"github.com/babblebase/filecount/internal/counter/memfile"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

func NewMemoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Build and maintain translation memory snapshots",
		Long: `Build a snapshot from a TMX corpus and inspect or edit it. Snapshots load
much faster than the corpus they were built from.`,
	}

	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.AddCommand(
		NewMemoryBuildCmd(a),
		NewMemoryStatCmd(a),
		NewMemoryContainsCmd(a),
		NewMemoryAddCmd(a),
		NewMemoryDeleteCmd(a),
	)
	return cmd
}

func NewMemoryBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <corpus.tmx>...",
		Short: "Build a snapshot from TMX corpora",
		Long: `Build a snapshot from one or more TMX corpora or snapshots. Every input is
read with the configured hasher and the union of their segments is written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				return apperrors.New(apperrors.ErrInvalidInput, "--output is required")
			}
			engine, err := a.memoryEngine(args[0])
			if err != nil {
				return err
			}
			if err := mergeCorpora(engine, args[1:]); err != nil {
				return err
			}
			if err := engine.SaveMemory(output); err != nil {
				return err
			}
			return printMemoryStats(cmd, output, engine.MemoryStats())
		},
	}

	cmd.Flags().StringP("output", "o", "", "Snapshot file to write")
	return cmd
}

// mergeCorpora adds the memories at paths to the engine's memory.
func mergeCorpora(engine *counter.Engine, paths []string) error {
	for _, path := range paths {
		x, err := memfile.Load(path, engine.Hasher())
		if err != nil {
			return fmt.Errorf("load memory: %w", err)
		}
		if err := engine.MergeMemory(x); err != nil {
			return err
		}
	}
	return nil
}

// memoryStatOutput describes a memory file for memory stat.
type memoryStatOutput struct {
	Path        string     `json:"path"`
	Kind        string     `json:"kind"`
	Entries     int        `json:"entries"`
	Hasher      string     `json:"hasher"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

func NewMemoryStatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <file>",
		Short: "Describe a snapshot or TMX corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			snapshot, err := memfile.IsSnapshot(path)
			if err != nil {
				return err
			}
			if !snapshot {
				engine, err := a.memoryEngine(path)
				if err != nil {
					return err
				}
				return printMemoryStats(cmd, path, engine.MemoryStats())
			}

			r, err := memfile.OpenReader(path)
			if err != nil {
				return err
			}
			created := r.CreatedAt().UTC()
			out := memoryStatOutput{
				Path:      path,
				Kind:      "snapshot",
				Entries:   r.Len(),
				Hasher:    r.Header().Hasher,
				CreatedAt: &created,
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return outputJSON(cmd, out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: snapshot, %d entries, hasher %s, created %s\n",
				out.Path, out.Entries, out.Hasher, created.Format(time.RFC3339))
			return nil
		},
	}
}

func NewMemoryContainsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contains <file> <text>",
		Short: "Check whether a segment is in the memory",
		Long: `Check whether a segment is in the memory. A snapshot is queried with the
hasher it was built with; a TMX corpus with the configured one.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, text := args[0], args[1]
			found, err := a.contains(path, text)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return outputJSON(cmd, map[string]any{"text": text, "contains": found})
			}
			if found {
				fmt.Fprintln(cmd.OutOrStdout(), "yes")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no")
			}
			return nil
		},
	}
}

func (a *app) contains(path, text string) (bool, error) {
	snapshot, err := memfile.IsSnapshot(path)
	if err != nil {
		return false, err
	}
	if !snapshot {
		engine, err := a.memoryEngine(path)
		if err != nil {
			return false, err
		}
		return engine.Remembers(text), nil
	}
	r, err := memfile.OpenReader(path)
	if err != nil {
		return false, err
	}
	hasher, err := hashment.HasherByName(r.Header().Hasher)
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrCorruptSnapshot, err, path)
	}
	return r.ContainsID(hasher.Hash(text)), nil
}

func NewMemoryAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <file> <text>...",
		Short: "Add segments to a snapshot, creating it if needed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editSnapshot(cmd, args[0], func(engine *counter.Engine) int {
				for _, text := range args[1:] {
					engine.Remember(text)
				}
				return len(args) - 1
			})
		},
	}
}

func NewMemoryDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <file> <text>...",
		Aliases: []string{"rm"},
		Short:   "Remove segments from a snapshot",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.editSnapshot(cmd, args[0], func(engine *counter.Engine) int {
				removed := 0
				for _, text := range args[1:] {
					if engine.Forget(text) {
						removed++
					}
				}
				return removed
			})
		},
	}
}

// editSnapshot loads the snapshot at path, or starts an empty memory when
// path does not exist, applies edit and writes the result back. A TMX
// corpus is refused so it is never overwritten by a snapshot.
func (a *app) editSnapshot(cmd *cobra.Command, path string, edit func(*counter.Engine) int) error {
	memoryPath := path
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		memoryPath = ""
	} else {
		snapshot, err := memfile.IsSnapshot(path)
		if err != nil {
			return err
		}
		if !snapshot {
			return apperrors.Newf(apperrors.ErrInvalidInput,
				"%s is not a snapshot; convert it with memory build first", path)
		}
	}

	engine, err := a.memoryEngine(memoryPath)
	if err != nil {
		return err
	}
	changed := edit(engine)
	if err := engine.SaveMemory(path); err != nil {
		return err
	}
	stats := engine.MemoryStats()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return outputJSON(cmd, map[string]any{"path": path, "changed": changed, "entries": stats.Entries})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d changed, %d entries\n", path, changed, stats.Entries)
	return nil
}

// memoryEngine builds a counter over the memory at path using the
// configured hasher.
func (a *app) memoryEngine(path string) (*counter.Engine, error) {
	cfg := a.cfg.Counter
	cfg.MemoryPath = path
	engine, err := counter.NewEngine(cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}
	return engine, nil
}

func printMemoryStats(cmd *cobra.Command, path string, stats counter.MemoryStats) error {
	out := memoryStatOutput{
		Path:        path,
		Kind:        "corpus",
		Entries:     stats.Entries,
		Hasher:      stats.Hasher,
		Fingerprint: stats.Fingerprint,
	}
	if snapshot, err := memfile.IsSnapshot(path); err == nil && snapshot {
		out.Kind = "snapshot"
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return outputJSON(cmd, out)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d entries, hasher %s\n", out.Path, out.Kind, out.Entries, out.Hasher)
	return nil
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
