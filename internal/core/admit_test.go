package core

import (
	"context"
	"errors"
	"testing"
)

func TestAdmit_Accepts(t *testing.T) {
	const repo = "https://github.com/soplang/http"
	source := &fakeSource{descriptors: map[string]Descriptor{repo: fullDescriptor(repo)}}
	prober := &fakeProber{exists: map[string]bool{repo + "/src/main.sop": true}}

	desc, err := NewAdmitter(source, prober).Admit(context.Background(), NewRecord(FieldRepository, repo))
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if desc.Name() != "http" {
		t.Errorf("Name() = %q, want %q", desc.Name(), "http")
	}
}

func TestAdmit_FirstMissingField(t *testing.T) {
	const repo = "https://github.com/soplang/http"
	d := fullDescriptor(repo)
	delete(d.Package(), FieldLicense)
	delete(d.Package(), FieldAuthor)

	source := &fakeSource{descriptors: map[string]Descriptor{repo: d}}
	prober := &fakeProber{exists: map[string]bool{repo + "/src/main.sop": true}}

	_, err := NewAdmitter(source, prober).Admit(context.Background(), NewRecord(FieldRepository, repo))
	var mf *MissingFieldError
	if !errors.As(err, &mf) {
		t.Fatalf("Admit() = %v, want *MissingFieldError", err)
	}
	if mf.Field != FieldLicense {
		t.Errorf("Field = %q, want %q", mf.Field, FieldLicense)
	}
	if len(prober.calls) != 0 {
		t.Error("entry should not be probed after a schema failure")
	}
}

func TestAdmit_OptionalFieldsNotRequired(t *testing.T) {
	const repo = "https://github.com/soplang/http"
	d := fullDescriptor(repo)
	for _, f := range []string{FieldDescription, FieldHomepage, FieldKeywords, FieldCategories} {
		delete(d.Package(), f)
	}
	source := &fakeSource{descriptors: map[string]Descriptor{repo: d}}
	prober := &fakeProber{exists: map[string]bool{repo + "/src/main.sop": true}}

	if _, err := NewAdmitter(source, prober).Admit(context.Background(), NewRecord(FieldRepository, repo)); err != nil {
		t.Errorf("Admit() = %v, want accept", err)
	}
}

func TestAdmit_FetchFailureRejects(t *testing.T) {
	const repo = "https://github.com/soplang/http"
	source := &fakeSource{errs: map[string]error{repo: errUnreachable}}

	_, err := NewAdmitter(source, &fakeProber{}).Admit(context.Background(), NewRecord(FieldRepository, repo))
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Admit() = %v, want *FetchError", err)
	}
	if !errors.Is(err, errUnreachable) {
		t.Error("FetchError should unwrap to the transport error")
	}
}

func TestAdmit_EntryUnreachable(t *testing.T) {
	const repo = "https://github.com/soplang/http"
	source := &fakeSource{descriptors: map[string]Descriptor{repo: fullDescriptor(repo)}}

	_, err := NewAdmitter(source, &fakeProber{}).Admit(context.Background(), NewRecord(FieldRepository, repo))
	var ee *EntryError
	if !errors.As(err, &ee) {
		t.Fatalf("Admit() = %v, want *EntryError", err)
	}
	if ee.Path != "src/main.sop" {
		t.Errorf("Path = %q", ee.Path)
	}
	if !errors.Is(err, ErrEntryUnreachable) {
		t.Error("EntryError should match ErrEntryUnreachable")
	}
}

func TestAdmit_EntryNotAString(t *testing.T) {
	const repo = "https://github.com/soplang/http"
	d := fullDescriptor(repo)
	d.Package()[FieldEntry] = 3.0
	source := &fakeSource{descriptors: map[string]Descriptor{repo: d}}

	_, err := NewAdmitter(source, &fakeProber{}).Admit(context.Background(), NewRecord(FieldRepository, repo))
	if !errors.Is(err, ErrEntryUnreachable) {
		t.Errorf("Admit() = %v, want ErrEntryUnreachable", err)
	}
}

func TestAdmit_NoRepository(t *testing.T) {
	_, err := NewAdmitter(&fakeSource{}, &fakeProber{}).Admit(context.Background(), NewRecord(FieldName, "x"))
	if !errors.Is(err, ErrNoRepository) {
		t.Errorf("Admit() = %v, want ErrNoRepository", err)
	}
}

func TestAdmitLast(t *testing.T) {
	const repo = "https://github.com/soplang/http"
	source := &fakeSource{descriptors: map[string]Descriptor{repo: fullDescriptor(repo)}}
	prober := &fakeProber{exists: map[string]bool{repo + "/src/main.sop": true}}
	a := NewAdmitter(source, prober)

	if _, err := a.AdmitLast(context.Background(), NewDocument()); !errors.Is(err, ErrNoPackages) {
		t.Errorf("AdmitLast(empty) = %v, want ErrNoPackages", err)
	}

	doc := NewDocument(NewRecord(FieldRepository, "https://github.com/soplang/old"), NewRecord(FieldRepository, repo))
	if _, err := a.AdmitLast(context.Background(), doc); err != nil {
		t.Errorf("AdmitLast() = %v", err)
	}
	if len(source.calls) != 1 || source.calls[0] != repo {
		t.Errorf("fetched %v, want only the last record", source.calls)
	}
}
