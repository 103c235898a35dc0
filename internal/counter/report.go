package counter

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/babblebase/filecount/internal/counter/analysis"
	"github.com/babblebase/filecount/internal/extract"
)

// Report is the outcome of analyzing one document, or several documents
// as one run.
type Report struct {
	ID                string            `json:"id"`
	Document          string            `json:"document"`
	Documents         []string          `json:"documents,omitempty"`
	Format            extract.Format    `json:"format,omitempty"`
	Sections          int               `json:"sections"`
	Analysis          analysis.Analysis `json:"analysis"`
	Hasher            string            `json:"hasher"`
	MemoryFingerprint string            `json:"memoryFingerprint,omitempty"`
	AnalyzedAt        time.Time         `json:"analyzedAt"`
}

// Result pairs a path of a batch with its report or error.
type Result struct {
	Path   string  `json:"path"`
	Report *Report `json:"report,omitempty"`
	Err    error   `json:"-"`
}

// Summarize adds up the analyses of independent reports. Nil reports are
// skipped.
func Summarize(reports []*Report) analysis.Analysis {
	analyses := make([]analysis.Analysis, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			analyses = append(analyses, r.Analysis)
		}
	}
	return analysis.Sum(analyses...)
}

// Reports returns the reports of the successful results.
func Reports(results []Result) []*Report {
	out := make([]*Report, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.Report != nil {
			out = append(out, r.Report)
		}
	}
	return out
}

// ExpandPaths replaces every directory in paths with the regular files
// below it, in lexical order. Hidden files and directories are skipped
// during the walk; paths named explicitly are always kept.
func ExpandPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != p && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
