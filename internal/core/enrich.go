package core

import "fmt"

// UnknownPackage names a package in commit messages when the descriptor declares no name.
const UnknownPackage = "unknown-package"

// Enrich returns a copy of record with every CopiedFields entry the
// descriptor declares written over it. Fields the descriptor omits are left
// as they were. valid is never touched; only the sweep assigns it.
func Enrich(record *Record, descriptor Descriptor) *Record {
	out := record.Clone()
	pkg := descriptor.Package()
	for _, field := range CopiedFields {
		if v, ok := pkg[field]; ok {
			out.Set(field, v)
		}
	}
	return out
}

// EnrichLast returns a copy of doc whose last record is enriched from descriptor.
func EnrichLast(doc *Document, descriptor Descriptor) (*Document, error) {
	if doc.Last() == nil {
		return nil, ErrNoPackages
	}
	out := doc.Clone()
	n := len(out.Packages) - 1
	out.Packages[n] = Enrich(out.Packages[n], descriptor)
	return out, nil
}

// EnrichCommitMessage is the commit message recording an admitted package.
func EnrichCommitMessage(descriptor Descriptor) string {
	name := UnknownPackage
	if v, ok := descriptor.Package()[FieldName]; ok {
		name = fmt.Sprint(v)
	}
	return fmt.Sprintf("feat: add validated package '%s'", name)
}
