// Package core holds the registry data model and the validation engine:
// field reconciliation, the validity sweep, append-diff verification,
// descriptor admission and enrichment.
package core

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Canonical record field names.
const (
	FieldName        = "name"
	FieldVersion     = "version"
	FieldStatus      = "status"
	FieldDescription = "description"
	FieldLicense     = "license"
	FieldAuthor      = "author"
	FieldRepository  = "repository"
	FieldHomepage    = "homepage"
	FieldEntry       = "entry"
	FieldKeywords    = "keywords"
	FieldCategories  = "categories"
	FieldValid       = "valid"
)

// ComparedFields are reconciled against the descriptor, in this order.
var ComparedFields = []string{
	FieldName,
	FieldVersion,
	FieldStatus,
	FieldLicense,
	FieldAuthor,
	FieldRepository,
	FieldHomepage,
	FieldEntry,
	FieldKeywords,
	FieldCategories,
}

// RequiredFields must be declared by a descriptor before admission, in this order.
var RequiredFields = []string{
	FieldName,
	FieldVersion,
	FieldStatus,
	FieldLicense,
	FieldAuthor,
	FieldRepository,
	FieldEntry,
}

// CopiedFields are copied from the descriptor onto a record during enrichment.
var CopiedFields = []string{
	FieldName,
	FieldVersion,
	FieldStatus,
	FieldDescription,
	FieldLicense,
	FieldAuthor,
	FieldRepository,
	FieldHomepage,
	FieldEntry,
	FieldKeywords,
	FieldCategories,
}

// Record is one registry entry: an insertion-ordered mapping of field names to
// decoded JSON values. Numbers decode as json.Number. A field read from JSON
// keeps its original encoding until it is Set, so fields nobody touches are
// written back exactly as they were read. The zero value is an empty record.
type Record struct {
	keys   []string
	values map[string]any
	raw    map[string][]byte
}

// NewRecord returns a record holding the given key/value pairs in order.
// It panics if kv has odd length or a key is not a string.
func NewRecord(kv ...any) *Record {
	if len(kv)%2 != 0 {
		panic("core: NewRecord needs key/value pairs")
	}
	r := &Record{}
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil || r.values == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// String returns the value under key if it is a string.
func (r *Record) String(key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value under key. New keys are appended; existing keys keep their position.
func (r *Record) Set(key string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	delete(r.raw, key)
}

// setDecoded stores a value read from JSON together with its encoding.
func (r *Record) setDecoded(key string, value any, raw []byte) {
	r.Set(key, value)
	if r.raw == nil {
		r.raw = make(map[string][]byte)
	}
	r.raw[key] = raw
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Clone returns a copy of r. Values are shared; they are never mutated in place.
func (r *Record) Clone() *Record {
	c := &Record{}
	if r == nil {
		return c
	}
	c.keys = append([]string(nil), r.keys...)
	c.values = make(map[string]any, len(r.values))
	for k, v := range r.values {
		c.values[k] = v
	}
	if r.raw != nil {
		c.raw = make(map[string][]byte, len(r.raw))
		for k, b := range r.raw {
			c.raw[k] = b
		}
	}
	return c
}

// Equal reports whether r and other hold the same fields with deeply equal
// values. Field order is not significant, and numbers are equal when they
// denote the same value.
func (r *Record) Equal(other *Record) bool {
	if r.Len() != other.Len() {
		return false
	}
	if r.Len() == 0 {
		return true
	}
	return equalValues(r.values, other.values)
}

// equalValues is strict deep equality over decoded values, except that two
// numbers compare by value: 1, 1.0 and json.Number("1e0") are all equal, while
// integers too large for a float64 are still told apart.
func equalValues(a, b any) bool {
	return cmp.Equal(a, b, numbersByValue)
}

var numbersByValue = cmp.FilterValues(
	func(x, y any) bool {
		_, okx := numberValue(x)
		_, oky := numberValue(y)
		return okx && oky
	},
	cmp.Comparer(func(x, y any) bool {
		rx, _ := numberValue(x)
		ry, _ := numberValue(y)
		return rx.Cmp(ry) == 0
	}),
)

// numberValue returns the exact value of a JSON or Go number.
func numberValue(v any) (*big.Rat, bool) {
	var s string
	switch n := v.(type) {
	case json.Number:
		s = string(n)
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, false
		}
		s = strconv.FormatFloat(n, 'g', -1, 64)
	case int:
		s = strconv.Itoa(n)
	case int64:
		s = strconv.FormatInt(n, 10)
	default:
		return nil, false
	}
	return new(big.Rat).SetString(s)
}

// Repository returns the trimmed repository field, or "" when absent or not a string.
func (r *Record) Repository() string {
	s, _ := r.String(FieldRepository)
	return strings.TrimSpace(s)
}

// Label names the record for log output.
func (r *Record) Label() string {
	if name, ok := r.String(FieldName); ok && name != "" {
		return name
	}
	if repo := r.Repository(); repo != "" {
		return repo
	}
	return "[unnamed]"
}

// Document is the registry file: an ordered package list plus any other
// top-level fields, which are carried through untouched.
type Document struct {
	Packages []*Record

	hasPackages bool
	order       []string
	extra       map[string][]byte
}

// NewDocument returns a document with a packages field holding records.
func NewDocument(records ...*Record) *Document {
	return &Document{Packages: records, hasPackages: true}
}

// HasPackages reports whether the document declares a packages field.
func (d *Document) HasPackages() bool {
	return d != nil && d.hasPackages
}

// Last returns the last package record, or nil.
func (d *Document) Last() *Record {
	if d == nil || len(d.Packages) == 0 {
		return nil
	}
	return d.Packages[len(d.Packages)-1]
}

// Clone returns a copy of d whose records can be modified independently.
func (d *Document) Clone() *Document {
	c := &Document{
		hasPackages: d.hasPackages,
		order:       append([]string(nil), d.order...),
		extra:       make(map[string][]byte, len(d.extra)),
	}
	for k, v := range d.extra {
		c.extra[k] = v
	}
	if d.Packages != nil {
		c.Packages = make([]*Record, len(d.Packages))
		for i, r := range d.Packages {
			c.Packages[i] = r.Clone()
		}
	}
	return c
}

// Descriptor is a parsed package descriptor document (sop.toml).
type Descriptor map[string]any

// PackageSection is the descriptor table holding the package fields.
const PackageSection = "package"

// Package returns the package section, or nil when it is absent or not a table.
func (d Descriptor) Package() map[string]any {
	if d == nil {
		return nil
	}
	section, _ := d[PackageSection].(map[string]any)
	return section
}

// Entry returns the declared entry path, or "" when absent or not a string.
func (d Descriptor) Entry() string {
	entry, _ := d.Package()[FieldEntry].(string)
	return entry
}

// Name returns the declared package name, or "".
func (d Descriptor) Name() string {
	name, _ := d.Package()[FieldName].(string)
	return name
}
