package core

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// VerifyAppend checks that proposed is base with exactly one minimal record
// appended: no existing record changed, and the new record carries nothing
// but a non-empty repository. It returns nil to accept, or an *AppendError
// naming the first rule broken.
func VerifyAppend(base, proposed *Document) error {
	if !base.HasPackages() || !proposed.HasPackages() {
		return &AppendError{Rule: RuleMissingPackages}
	}

	if diff := len(proposed.Packages) - len(base.Packages); diff != 1 {
		return &AppendError{Rule: RuleCount, Difference: diff}
	}

	for i, existing := range base.Packages {
		if !existing.Equal(proposed.Packages[i]) {
			return &AppendError{
				Rule:   RuleModified,
				Index:  i,
				Detail: recordDiff(existing, proposed.Packages[i]),
			}
		}
	}

	added := proposed.Last()

	var extra []string
	for _, key := range added.Keys() {
		if key != FieldRepository {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return &AppendError{Rule: RuleExtraFields, Fields: extra}
	}

	if added.Repository() == "" {
		return &AppendError{Rule: RuleEmptyRepository}
	}
	return nil
}

// recordDiff renders a line diff between two indented records: deleted lines
// as [-x-], inserted lines as {+x+}.
func recordDiff(before, after *Record) string {
	a, errA := Indent(before)
	b, errB := Indent(after)
	if errA != nil || errB != nil {
		return ""
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(string(a), string(b))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + d.Text + "+}")
		default:
			sb.WriteString(d.Text)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
