package core

import (
	"context"
	"errors"
	"sync"
)

var errUnreachable = errors.New("connection refused")

type fakeSource struct {
	mu          sync.Mutex
	descriptors map[string]Descriptor
	errs        map[string]error
	calls       []string
}

func (f *fakeSource) FetchDescriptor(_ context.Context, repository string) (Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, repository)
	if err, ok := f.errs[repository]; ok {
		return nil, &FetchError{Repository: repository, URL: repository + "/sop.toml", Err: err}
	}
	return f.descriptors[repository], nil
}

type fakeProber struct {
	mu     sync.Mutex
	exists map[string]bool
	calls  []string
}

func (f *fakeProber) EntryExists(_ context.Context, repository, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := repository + "/" + path
	f.calls = append(f.calls, key)
	return f.exists[key], nil
}

func descriptorFor(kv ...any) Descriptor {
	pkg := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		pkg[kv[i].(string)] = kv[i+1]
	}
	return Descriptor{PackageSection: pkg}
}

func fullDescriptor(repo string) Descriptor {
	return descriptorFor(
		FieldName, "http",
		FieldVersion, "1.0.0",
		FieldStatus, "stable",
		FieldDescription, "HTTP client",
		FieldLicense, "MIT",
		FieldAuthor, "Soplang",
		FieldRepository, repo,
		FieldHomepage, "https://soplang.org",
		FieldEntry, "src/main.sop",
		FieldKeywords, []any{"http", "net"},
		FieldCategories, []any{"network"},
	)
}
