// Package counter runs the analysis pipeline over whole documents:
// extraction into sections, segmentation into hashments and classification
// against the translation memory. It owns the memory and enforces the
// read/write discipline around it.
package counter

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/babblebase/filecount/internal/counter/analysis"
	"github.com/babblebase/filecount/internal/counter/hashment"
	"github.com/babblebase/filecount/internal/counter/memfile"
	"github.com/babblebase/filecount/internal/counter/memory"
	"github.com/babblebase/filecount/internal/counter/segmentation"
	"github.com/babblebase/filecount/internal/extract"
	"github.com/babblebase/filecount/pkg/config"
	apperrors "github.com/babblebase/filecount/pkg/errors"
	"github.com/babblebase/filecount/pkg/metrics"
	"github.com/babblebase/filecount/pkg/tracing"
)

// Engine binds extraction rules, a segmentation policy, a hasher and an
// optional translation memory. It is safe for concurrent use: analyses
// share the memory, while Remember, Forget and SetMemory take it
// exclusively.
type Engine struct {
	rules    *extract.Rules
	producer *hashment.Producer
	cfg      config.CounterConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu          sync.RWMutex
	memory      *memory.Index
	fingerprint string
}

// NewEngine builds an Engine from cfg and loads the memory at
// cfg.MemoryPath, if set. m may be nil.
func NewEngine(cfg config.CounterConfig, m *metrics.Metrics) (*Engine, error) {
	chars, err := segmentation.ParseCharacters(cfg.Characters)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err, "counter.characters")
	}
	policy, err := segmentation.New(cfg.Segmentation, chars)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err, "counter.segmentation")
	}
	norm, err := hashment.ParseNormalization(cfg.Normalization)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err, "counter.normalization")
	}
	e := &Engine{
		rules:    extract.DefaultRules(extract.Options{SkipTranslated: cfg.SkipTranslated}),
		producer: hashment.NewProducer(policy, hashment.Digest{Normalization: norm}),
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "counter"),
	}
	if cfg.MemoryPath != "" {
		x, err := memfile.Load(cfg.MemoryPath, e.producer.Hasher())
		if err != nil {
			return nil, fmt.Errorf("loading memory: %w", err)
		}
		if err := e.SetMemory(x); err != nil {
			return nil, err
		}
	}
	e.logger.Info("counter ready",
		"segmentation", cfg.Segmentation,
		"hasher", e.producer.Hasher().Name(),
		"formats", e.rules.Formats(),
		"memory_entries", e.MemoryStats().Entries,
	)
	return e, nil
}

// Hasher returns the hasher used for documents and memory alike.
func (e *Engine) Hasher() hashment.Hasher {
	return e.producer.Hasher()
}

// Rules returns the extraction rules. Adding a rule while analyses run is
// not safe.
func (e *Engine) Rules() *extract.Rules {
	return e.rules
}

// CountBytes analyzes one document held in memory. name is used for format
// detection and reporting.
func (e *Engine) CountBytes(ctx context.Context, name string, buf []byte) (*Report, error) {
	root := tracing.FromContext(ctx) == nil
	ctx, span := tracing.StartSpan(ctx, "count")
	span.SetAttr("document", name)
	defer e.endSpan(ctx, span, root)

	doc, err := e.prepare(ctx, name, buf)
	if err != nil {
		return nil, err
	}
	return e.report(ctx, doc), nil
}

// CountFile reads and analyzes the document at path.
func (e *Engine) CountFile(ctx context.Context, path string) (*Report, error) {
	root := tracing.FromContext(ctx) == nil
	ctx, span := tracing.StartSpan(ctx, "count")
	span.SetAttr("document", path)
	defer e.endSpan(ctx, span, root)

	doc, err := e.load(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.report(ctx, doc), nil
}

// CountFiles analyzes each document on its own, up to cfg.Concurrency at
// a time. Results keep the order of paths. A document that fails leaves its
// error in its Result without stopping the others; the returned error is
// only set when ctx ends first.
func (e *Engine) CountFiles(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{Path: path, Err: err}
				return err
			}
			report, err := e.CountFile(gctx, path)
			results[i] = Result{Path: path, Report: report, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// CountCombined analyzes the documents as one run over their concatenated
// hashments, in path order, so a segment repeated across files counts as a
// repetition. The per-document Results carry each file's own analysis.
// Documents that fail are left out of the combined report.
func (e *Engine) CountCombined(ctx context.Context, paths []string) (*Report, []Result, error) {
	root := tracing.FromContext(ctx) == nil
	ctx, span := tracing.StartSpan(ctx, "count-combined")
	span.SetAttr("documents", len(paths))
	defer e.endSpan(ctx, span, root)

	docs := make([]*document, len(paths))
	results := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := e.load(gctx, path)
			results[i] = Result{Path: path, Err: err}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, results, err
	}
	if err := ctx.Err(); err != nil {
		return nil, results, err
	}

	var loaded []*document
	combined := &Report{ID: uuid.NewString(), Document: "combined"}
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		loaded = append(loaded, doc)
		combined.Documents = append(combined.Documents, doc.name)
		combined.Sections += len(doc.sections)
		results[i].Report = e.report(ctx, doc)
	}
	combined.Analysis, combined.MemoryFingerprint = e.analyze(ctx, e.hashments(loaded...))
	combined.Hasher = e.Hasher().Name()
	combined.AnalyzedAt = time.Now().UTC()
	return combined, results, nil
}

// document is an extracted document awaiting analysis.
type document struct {
	name     string
	format   extract.Format
	sections []string
}

func (e *Engine) load(ctx context.Context, path string) (*document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "%s is a directory", path)
	}
	if err := e.checkSize(path, info.Size()); err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.prepare(ctx, path, buf)
}

func (e *Engine) prepare(ctx context.Context, name string, buf []byte) (*document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.checkSize(name, int64(len(buf))); err != nil {
		return nil, err
	}

	_, span := tracing.StartSpan(ctx, "extract")
	start := time.Now()
	format, sections, err := e.rules.Extract(buf, name)
	span.End()
	e.observeStage("extract", time.Since(start))
	if err != nil {
		e.observeDocument(format, err)
		e.logger.Debug("extraction failed", "document", name, "error", err)
		return nil, fmt.Errorf("extracting %s: %w", name, err)
	}

	return &document{
		name:     name,
		format:   format,
		sections: sections,
	}, nil
}

// hashments streams the hashments of docs in order. Segmentation happens as
// the analysis consumes them.
func (e *Engine) hashments(docs ...*document) iter.Seq[hashment.Hashment] {
	return func(yield func(hashment.Hashment) bool) {
		for _, doc := range docs {
			for h := range e.producer.All(doc.sections) {
				if !yield(h) {
					return
				}
			}
		}
	}
}

func (e *Engine) report(ctx context.Context, doc *document) *Report {
	r := &Report{
		ID:         uuid.NewString(),
		Document:   doc.name,
		Format:     doc.format,
		Sections:   len(doc.sections),
		Hasher:     e.Hasher().Name(),
		AnalyzedAt: time.Now().UTC(),
	}
	r.Analysis, r.MemoryFingerprint = e.analyze(ctx, e.hashments(doc))
	e.observeDocument(doc.format, nil)
	e.observeAnalysis(r.Analysis)
	e.logger.Debug("document analyzed",
		"document", doc.name,
		"format", doc.format,
		"segments", r.Analysis.Total.Segments,
		"repetitions", r.Analysis.Repetitions.Segments,
		"matches", r.Analysis.Matches.Segments,
	)
	return r
}

// analyze segments and classifies hs while holding the memory for reading,
// and returns the fingerprint of the memory it was compared against.
func (e *Engine) analyze(ctx context.Context, hs iter.Seq[hashment.Hashment]) (analysis.Analysis, string) {
	_, span := tracing.StartSpan(ctx, "analyze")
	defer span.End()
	start := time.Now()
	defer func() { e.observeStage("analyze", time.Since(start)) }()

	e.mu.RLock()
	defer e.mu.RUnlock()
	var mem analysis.Membership
	if e.memory != nil {
		mem = e.memory
	}
	return analysis.AnalyzeSeq(hs, mem), e.fingerprint
}

func (e *Engine) checkSize(name string, size int64) error {
	if e.cfg.MaxFileSize > 0 && size > e.cfg.MaxFileSize {
		return apperrors.Newf(apperrors.ErrTooLarge, "%s is %d bytes, limit is %d", name, size, e.cfg.MaxFileSize)
	}
	return nil
}

func (e *Engine) concurrency() int {
	if e.cfg.Concurrency > 0 {
		return e.cfg.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

func (e *Engine) endSpan(ctx context.Context, span *tracing.Span, root bool) {
	span.End()
	if root {
		span.Log(ctx, e.logger)
	}
}

func (e *Engine) observeStage(stage string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveStage(stage, d)
	}
}

func (e *Engine) observeDocument(format extract.Format, err error) {
	if e.metrics == nil {
		return
	}
	label := string(format)
	if label == "" {
		label = "unknown"
	}
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		status = "unsupported"
	default:
		status = "error"
	}
	e.metrics.DocumentsTotal.WithLabelValues(label, status).Inc()
}

func (e *Engine) observeAnalysis(a analysis.Analysis) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveCounts("total", a.Total.Segments, a.Total.Words, a.Total.Characters)
	e.metrics.ObserveCounts("repetition", a.Repetitions.Segments, a.Repetitions.Words, a.Repetitions.Characters)
	e.metrics.ObserveCounts("match", a.Matches.Segments, a.Matches.Words, a.Matches.Characters)
}
