// Package registry checks the Soplang package registry against the sop.toml
// descriptors published in each package repository.
//
// The registry document (registry.json) is a cache of those descriptors. A
// sweep recomputes every record's valid flag; the append verifier, admitter
// and enrichment step gate new contributions.
//
// Basic usage:
//
//	doc, err := registry.Load("registry.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	source := registry.DefaultSource()
//	out, sweep, err := registry.NewEvaluator(source, source).Evaluate(ctx, doc)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if sweep.Changed {
//		_ = registry.Save("registry.json", out)
//	}
package registry

import (
	"fmt"
	"strings"

	"github.com/git-pkgs/purl"
	packageurl "github.com/package-url/packageurl-go"

	"github.com/soplang/registry/client"
	"github.com/soplang/registry/fetch"
	"github.com/soplang/registry/internal/core"
	"github.com/soplang/registry/internal/sop"
	"github.com/soplang/registry/internal/store"
)

// Re-export types from internal/core
type (
	// Record is one ordered registry entry.
	Record = core.Record

	// Document is the whole registry file.
	Document = core.Document

	// Descriptor is a parsed sop.toml.
	Descriptor = core.Descriptor

	// Mismatch is the first field where a record and its descriptor disagree.
	Mismatch = core.Mismatch

	// Verdict is the validity decision for one record.
	Verdict = core.Verdict

	// Sweep summarises a validity pass.
	Sweep = core.Sweep

	// Outcome is a descriptor fetch result.
	Outcome = core.Outcome

	Evaluator        = core.Evaluator
	Admitter         = core.Admitter
	Option           = core.Option
	DescriptorSource = core.DescriptorSource
	EntryProber      = core.EntryProber
	Rule             = core.Rule
)

// Error types
type (
	FetchError        = core.FetchError
	MissingFieldError = core.MissingFieldError
	EntryError        = core.EntryError
	AppendError       = core.AppendError
)

// Re-export errors
var (
	ErrNoPackages       = core.ErrNoPackages
	ErrNoRepository     = core.ErrNoRepository
	ErrEntryUnreachable = core.ErrEntryUnreachable
	ErrNoDescriptor     = core.ErrNoDescriptor
	ErrNotFound         = fetch.ErrNotFound
)

// Re-export constants
const (
	RuleMissingPackages = core.RuleMissingPackages
	RuleCount           = core.RuleCount
	RuleModified        = core.RuleModified
	RuleExtraFields     = core.RuleExtraFields
	RuleEmptyRepository = core.RuleEmptyRepository

	SweepCommitMessage = core.SweepCommitMessage
)

// URLBuilder derives descriptor and entry URLs from repository URLs.
type URLBuilder = client.URLBuilder

// Source fetches descriptors and probes entry files over HTTP.
type Source = sop.Source

// NewRecord returns a record holding the given key/value pairs in order.
func NewRecord(kv ...any) *Record {
	return core.NewRecord(kv...)
}

// NewDocument returns a registry document holding records.
func NewDocument(records ...*Record) *Document {
	return core.NewDocument(records...)
}

// Load reads a registry document from disk.
func Load(path string) (*Document, error) {
	return store.Load(path)
}

// Save writes a registry document with two-space indentation.
func Save(path string, doc *Document) error {
	return store.Save(path, doc)
}

// ParseDescriptor decodes sop.toml content.
func ParseDescriptor(data []byte) (Descriptor, error) {
	return sop.Parse(data)
}

// Reconcile returns the first field where record disagrees with descriptor, or nil.
func Reconcile(record *Record, descriptor Descriptor) *Mismatch {
	return core.Reconcile(record, descriptor)
}

// VerifyAppend accepts proposed only if it is base plus one minimal record.
func VerifyAppend(base, proposed *Document) error {
	return core.VerifyAppend(base, proposed)
}

// Enrich copies the descriptor's fields onto a copy of record.
func Enrich(record *Record, descriptor Descriptor) *Record {
	return core.Enrich(record, descriptor)
}

// EnrichLast enriches the last record of doc.
func EnrichLast(doc *Document, descriptor Descriptor) (*Document, error) {
	return core.EnrichLast(doc, descriptor)
}

// EnrichCommitMessage is the commit message for an admitted package.
func EnrichCommitMessage(descriptor Descriptor) string {
	return core.EnrichCommitMessage(descriptor)
}

// NewEvaluator creates a validity evaluator.
func NewEvaluator(source DescriptorSource, prober EntryProber, opts ...Option) *Evaluator {
	return core.NewEvaluator(source, prober, opts...)
}

// NewAdmitter creates an admission validator.
func NewAdmitter(source DescriptorSource, prober EntryProber, opts ...Option) *Admitter {
	return core.NewAdmitter(source, prober, opts...)
}

// WithLogger sets the logger of an Evaluator or Admitter.
var WithLogger = core.WithLogger

// DefaultSource returns a Source with sensible defaults:
// - descriptors read from sop.toml on the main branch
// - 30s timeout, no retries: a failed fetch is final for the run
// - a circuit breaker per host
// - parsed descriptors cached for five minutes
func DefaultSource() *Source {
	return NewSource(fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithMaxRetries(0))), client.NewRawURLs("", ""))
}

// SourceOption configures a Source.
type SourceOption = sop.Option

// WithCacheTTL sets how long a Source keeps parsed descriptors. Zero disables caching.
var WithCacheTTL = sop.WithCacheTTL

// NewSource creates a Source over any transport and URL scheme.
func NewSource(f fetch.FetcherInterface, urls URLBuilder, opts ...SourceOption) *Source {
	return sop.NewSource(f, urls, opts...)
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
func ParsePURL(purlStr string) (*PURL, error) {
	return purl.Parse(purlStr)
}

// PackageURL returns the Package URL identifying a repository at version,
// e.g. "pkg:github/soplang/http@1.0.0". It returns "" for unusable URLs.
func PackageURL(repository, version string) string {
	return client.NewRawURLs("", "").PURL(repository, version)
}

// RecordPURL parses the Package URL of a registry record.
func RecordPURL(r *Record) (*PURL, error) {
	version, _ := r.String(core.FieldVersion)
	s := PackageURL(r.Repository(), version)
	if s == "" {
		return nil, fmt.Errorf("record %s: %w", r.Label(), ErrNoRepository)
	}
	return ParsePURL(s)
}

// RepositoryFromPURL maps a github or generic Package URL back to the
// repository web URL it was derived from.
func RepositoryFromPURL(purlStr string) (string, error) {
	p, err := packageurl.FromString(purlStr)
	if err != nil {
		return "", err
	}
	switch p.Type {
	case "github":
		return "https://github.com/" + p.Namespace + "/" + p.Name, nil
	case "generic":
		if p.Namespace == "" {
			return "", fmt.Errorf("purl %q has no host namespace", purlStr)
		}
		return "https://" + strings.Trim(p.Namespace, "/") + "/" + p.Name, nil
	default:
		return "", fmt.Errorf("unsupported purl type %q", p.Type)
	}
}
