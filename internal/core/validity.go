package core

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sreglog "github.com/soplang/registry/internal/log"
)

const tracerName = "github.com/soplang/registry/internal/core"

// SweepCommitMessage is the commit message for a sweep that changed verdicts.
const SweepCommitMessage = "chore: update 'valid' status for packages"

// DescriptorSource fetches and parses the descriptor published in a repository.
type DescriptorSource interface {
	FetchDescriptor(ctx context.Context, repository string) (Descriptor, error)
}

// EntryProber reports whether a path inside a repository resolves to retrievable content.
type EntryProber interface {
	EntryExists(ctx context.Context, repository, path string) (bool, error)
}

// Outcome is the result of a descriptor fetch. Exactly one of Descriptor and
// Err is meaningful.
type Outcome struct {
	Descriptor Descriptor
	Err        error
}

// OK reports whether a non-empty descriptor was fetched.
func (o Outcome) OK() bool {
	return o.Err == nil && len(o.Descriptor) > 0
}

// Error returns the reason the outcome is not OK, or nil.
func (o Outcome) Error() error {
	if o.Err != nil {
		return o.Err
	}
	if len(o.Descriptor) == 0 {
		return ErrNoDescriptor
	}
	return nil
}

// FetchOutcome fetches the descriptor for repository and captures any failure.
func FetchOutcome(ctx context.Context, source DescriptorSource, repository string) Outcome {
	d, err := source.FetchDescriptor(ctx, repository)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Descriptor: d}
}

// Verdict is the validity decision for one record.
type Verdict struct {
	Index      int
	Label      string
	Repository string

	Valid bool

	// Previous is the record's valid field before the sweep, nil if it had none.
	Previous *bool
	Changed  bool

	// FetchErr is why no descriptor was available, if any.
	FetchErr    error
	EntryExists bool
	Mismatch    *Mismatch
}

// Sweep summarises one pass of the evaluator over a registry.
type Sweep struct {
	Verdicts []Verdict
	Changed  bool
}

// ValidCount returns how many records were judged valid.
func (s *Sweep) ValidCount() int {
	n := 0
	for _, v := range s.Verdicts {
		if v.Valid {
			n++
		}
	}
	return n
}

// ChangedCount returns how many records had their valid field set or flipped.
func (s *Sweep) ChangedCount() int {
	n := 0
	for _, v := range s.Verdicts {
		if v.Changed {
			n++
		}
	}
	return n
}

// Evaluator recomputes the valid field of every record in a registry.
type Evaluator struct {
	source DescriptorSource
	prober EntryProber
	logger *slog.Logger
	tracer trace.Tracer
}

type options struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures an Evaluator or Admitter.
type Option func(*options)

// WithLogger sets the logger used for per-package diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer sets the tracer spans are started on.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: sreglog.Discard(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(source DescriptorSource, prober EntryProber, opts ...Option) *Evaluator {
	o := buildOptions(opts)
	return &Evaluator{
		source: source,
		prober: prober,
		logger: o.logger,
		tracer: o.tracer,
	}
}

// Evaluate sweeps doc in order and returns a copy with every record's valid
// field recomputed. doc itself is not modified.
//
// A failure for one package only makes that package invalid. The sweep stops
// early only if ctx is done, in which case no document is returned so that a
// cancelled run cannot persist verdicts it never computed.
func (e *Evaluator) Evaluate(ctx context.Context, doc *Document) (*Document, *Sweep, error) {
	ctx, span := e.tracer.Start(ctx, "registry.sweep",
		trace.WithAttributes(attribute.Int("packages", len(doc.Packages))))
	defer span.End()

	out := doc.Clone()
	sweep := &Sweep{Verdicts: make([]Verdict, 0, len(out.Packages))}

	if len(out.Packages) == 0 {
		e.logger.Info("no packages found in registry")
		return out, sweep, nil
	}

	for i, record := range out.Packages {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "sweep cancelled")
			return nil, nil, fmt.Errorf("sweep cancelled at package %d: %w", i, err)
		}

		v := e.evaluateRecord(ctx, i, record)
		if v.Changed {
			record.Set(FieldValid, v.Valid)
			sweep.Changed = true
		}
		sweep.Verdicts = append(sweep.Verdicts, v)
	}

	span.SetAttributes(
		attribute.Int("valid", sweep.ValidCount()),
		attribute.Int("changed", sweep.ChangedCount()),
	)
	return out, sweep, nil
}

func (e *Evaluator) evaluateRecord(ctx context.Context, index int, record *Record) Verdict {
	v := Verdict{
		Index:      index,
		Label:      record.Label(),
		Repository: record.Repository(),
	}
	if prev, ok := record.Get(FieldValid); ok {
		if b, isBool := prev.(bool); isBool {
			v.Previous = &b
		}
	}

	logger := e.logger.With("index", index, "package", v.Label)

	if v.Repository == "" {
		logger.Warn("package has no repository URL, marking as invalid")
		v.Valid = false
		v.Changed = e.changed(record, false)
		return v
	}

	ctx, span := e.tracer.Start(ctx, "registry.evaluate",
		trace.WithAttributes(
			attribute.Int("index", index),
			attribute.String("repository", v.Repository),
		))
	defer span.End()

	logger.Info("checking package")

	outcome := FetchOutcome(ctx, e.source, v.Repository)
	if !outcome.OK() {
		v.FetchErr = outcome.Error()
		logger.Warn("descriptor unavailable", "error", v.FetchErr)
		span.RecordError(v.FetchErr)
	}

	if entry := outcome.Descriptor.Entry(); entry != "" {
		exists, err := e.prober.EntryExists(ctx, v.Repository, entry)
		if err != nil {
			logger.Warn("entry probe failed", "entry", entry, "error", err)
		}
		v.EntryExists = err == nil && exists
	}

	v.Mismatch = Reconcile(record, outcome.Descriptor)
	if v.Mismatch != nil && !v.Mismatch.NoDescriptor {
		logger.Info("metadata mismatch",
			"field", v.Mismatch.Field,
			"registry", v.Mismatch.RegistryValue,
			"descriptor", v.Mismatch.DescriptorValue)
	}

	v.Valid = outcome.OK() && v.EntryExists && v.Mismatch == nil
	v.Changed = e.changed(record, v.Valid)
	if v.Changed {
		from := "unset"
		if v.Previous != nil {
			from = fmt.Sprint(*v.Previous)
		}
		logger.Info("changing valid status", "from", from, "to", v.Valid)
	}

	span.SetAttributes(attribute.Bool("valid", v.Valid))
	return v
}

// changed reports whether record's valid field must be (re)written to verdict.
func (e *Evaluator) changed(record *Record, verdict bool) bool {
	prev, ok := record.Get(FieldValid)
	if !ok {
		return true
	}
	b, isBool := prev.(bool)
	return !isBool || b != verdict
}
