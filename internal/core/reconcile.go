package core

import "fmt"

// Mismatch is the first disagreement between a registry record and its descriptor.
type Mismatch struct {
	// NoDescriptor is set when the descriptor has no package section to compare against.
	NoDescriptor bool

	Field           string
	RegistryValue   any
	DescriptorValue any
}

func (m *Mismatch) String() string {
	if m.NoDescriptor {
		return "no descriptor package section"
	}
	return fmt.Sprintf("field '%s' mismatch: registry has '%v', descriptor has '%v'",
		m.Field, m.RegistryValue, m.DescriptorValue)
}

// Reconcile compares record against the descriptor's package section and
// returns the first mismatching field in ComparedFields order, or nil when
// they agree.
//
// The comparison only runs one way: fields the descriptor omits are never
// checked, and neither are fields only the descriptor declares. Values are
// compared by strict deep equality; numbers compare by value.
func Reconcile(record *Record, descriptor Descriptor) *Mismatch {
	pkg := descriptor.Package()
	if len(pkg) == 0 {
		return &Mismatch{NoDescriptor: true}
	}

	for _, field := range ComparedFields {
		want, ok := pkg[field]
		if !ok {
			continue
		}
		have, ok := record.Get(field)
		if !ok {
			continue
		}
		if !equalValues(have, want) {
			return &Mismatch{Field: field, RegistryValue: have, DescriptorValue: want}
		}
	}
	return nil
}
