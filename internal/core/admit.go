package core

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Admitter validates the descriptor behind a newly proposed record before the
// record may be enriched.
type Admitter struct {
	source DescriptorSource
	prober EntryProber
	logger *slog.Logger
	tracer trace.Tracer
}

// NewAdmitter creates an Admitter.
func NewAdmitter(source DescriptorSource, prober EntryProber, opts ...Option) *Admitter {
	o := buildOptions(opts)
	return &Admitter{
		source: source,
		prober: prober,
		logger: o.logger,
		tracer: o.tracer,
	}
}

// Admit fetches the descriptor for record's repository and checks that it
// declares every RequiredFields entry and that its entry file is retrievable.
// Checks fail fast: the first problem is returned. Unlike the sweep, a fetch
// or parse failure is a rejection, returned as *FetchError.
//
// On success the fetched descriptor is returned for enrichment.
func (a *Admitter) Admit(ctx context.Context, record *Record) (Descriptor, error) {
	repository := record.Repository()
	if repository == "" {
		return nil, ErrNoRepository
	}

	ctx, span := a.tracer.Start(ctx, "registry.admit",
		trace.WithAttributes(attribute.String("repository", repository)))
	defer span.End()

	logger := a.logger.With("repository", repository)

	descriptor, err := a.source.FetchDescriptor(ctx, repository)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	pkg := descriptor.Package()
	for _, field := range RequiredFields {
		if _, ok := pkg[field]; !ok {
			logger.Error("descriptor is incomplete", "field", field)
			return nil, &MissingFieldError{Field: field}
		}
	}

	entry, ok := pkg[FieldEntry].(string)
	if !ok || entry == "" {
		return nil, &EntryError{Repository: repository, Path: toString(pkg[FieldEntry])}
	}

	exists, err := a.prober.EntryExists(ctx, repository, entry)
	if err != nil || !exists {
		span.RecordError(ErrEntryUnreachable)
		return nil, &EntryError{Repository: repository, Path: entry, Err: err}
	}

	logger.Info("descriptor validation passed", "package", descriptor.Name())
	return descriptor, nil
}

// AdmitLast runs Admit against the last record of doc.
func (a *Admitter) AdmitLast(ctx context.Context, doc *Document) (Descriptor, error) {
	last := doc.Last()
	if last == nil {
		return nil, ErrNoPackages
	}
	return a.Admit(ctx, last)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	b, err := encodeValue(v)
	if err != nil {
		return ""
	}
	return string(b)
}
