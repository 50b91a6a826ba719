package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoPackages is returned when an operation needs a last record and there is none.
	ErrNoPackages = errors.New("no packages found in registry")

	// ErrNoRepository is returned when a record has no usable repository field.
	ErrNoRepository = errors.New("package has no repository URL")

	// ErrEntryUnreachable is returned when a descriptor's entry file cannot be retrieved.
	ErrEntryUnreachable = errors.New("entry file not found in the repository")

	// ErrNoDescriptor is returned when a descriptor was fetched but holds nothing.
	ErrNoDescriptor = errors.New("descriptor is empty")
)

// FetchErrorKind distinguishes transport failures from parse failures.
type FetchErrorKind int

const (
	KindTransport FetchErrorKind = iota
	KindParse
)

func (k FetchErrorKind) String() string {
	if k == KindParse {
		return "parse"
	}
	return "transport"
}

// FetchError describes a descriptor that could not be fetched or parsed.
type FetchError struct {
	Repository string
	URL        string
	Kind       FetchErrorKind
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindParse {
		return fmt.Sprintf("parsing descriptor from %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetching descriptor from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// MissingFieldError reports the first required descriptor field that is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field '%s' in descriptor [%s] section", e.Field, PackageSection)
}

// EntryError reports an entry path that does not resolve to retrievable content.
type EntryError struct {
	Repository string
	Path       string
	Err        error
}

func (e *EntryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("entry file '%s' not found in %s: %v", e.Path, e.Repository, e.Err)
	}
	return fmt.Sprintf("entry file '%s' not found in %s", e.Path, e.Repository)
}

func (e *EntryError) Unwrap() error {
	return ErrEntryUnreachable
}

// Rule names the append-only contribution rule a proposed registry broke.
type Rule string

const (
	RuleMissingPackages Rule = "missing-packages"
	RuleCount           Rule = "count"
	RuleModified        Rule = "modified"
	RuleExtraFields     Rule = "extra-fields"
	RuleEmptyRepository Rule = "empty-repository"
)

// AppendError rejects a proposed registry that is not exactly one appended
// minimal record.
type AppendError struct {
	Rule Rule

	// Difference is len(proposed) - len(base) for RuleCount.
	Difference int

	// Index is the modified record for RuleModified.
	Index int

	// Fields lists the disallowed fields for RuleExtraFields, sorted.
	Fields []string

	// Detail is a line diff of the modified record for RuleModified.
	Detail string
}

func (e *AppendError) Error() string {
	switch e.Rule {
	case RuleMissingPackages:
		return "'packages' array is missing in registry document"
	case RuleCount:
		return fmt.Sprintf("exactly one new package must be appended, found a difference of %d", e.Difference)
	case RuleModified:
		return fmt.Sprintf("existing package at index %d was modified", e.Index)
	case RuleExtraFields:
		return fmt.Sprintf("new package has extra fields [%s]; only '%s' is allowed at submission",
			strings.Join(e.Fields, ", "), FieldRepository)
	case RuleEmptyRepository:
		return fmt.Sprintf("'%s' field is empty or missing", FieldRepository)
	default:
		return fmt.Sprintf("append rule %q violated", string(e.Rule))
	}
}
