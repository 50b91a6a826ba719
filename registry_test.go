package registry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	registry "github.com/soplang/registry"
	"github.com/soplang/registry/client"
	"github.com/soplang/registry/fetch"
)

const descriptor = `[package]
name = "http"
version = "1.0.0"
status = "stable"
license = "MIT"
author = "Soplang"
repository = "REPO"
entry = "main.sop"
`

func newServer(t *testing.T) (string, *registry.Source) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/soplang/http/main/sop.toml":
			repo := "http://" + r.Host + "/soplang/http"
			_, _ = w.Write([]byte(strings.Replace(descriptor, "REPO", repo, 1)))
		case "/soplang/http/main/main.sop":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	f := fetch.NewFetcher(fetch.WithMaxRetries(0))
	source := registry.NewSource(f, client.NewRawURLs("main", "sop.toml"), registry.WithCacheTTL(0))
	return server.URL + "/soplang/http", source
}

// Walks a contribution from proposal to a valid registry entry.
func TestContributionLifecycle(t *testing.T) {
	repo, source := newServer(t)
	ctx := context.Background()

	missing := strings.Replace(repo, "/http", "/json", 1)
	base := registry.NewDocument(registry.NewRecord("repository", missing, "valid", false))
	proposed := base.Clone()
	proposed.Packages = append(proposed.Packages, registry.NewRecord("repository", repo))

	if err := registry.VerifyAppend(base, proposed); err != nil {
		t.Fatalf("VerifyAppend() = %v", err)
	}

	desc, err := registry.NewAdmitter(source, source).AdmitLast(ctx, proposed)
	if err != nil {
		t.Fatalf("AdmitLast() = %v", err)
	}

	enriched, err := registry.EnrichLast(proposed, desc)
	if err != nil {
		t.Fatalf("EnrichLast() = %v", err)
	}
	if got := registry.EnrichCommitMessage(desc); got != "feat: add validated package 'http'" {
		t.Errorf("EnrichCommitMessage() = %q", got)
	}

	path := filepath.Join(t.TempDir(), "registry.json")
	if err := registry.Save(path, enriched); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	loaded, err := registry.Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	out, sweep, err := registry.NewEvaluator(source, source).Evaluate(ctx, loaded)
	if err != nil {
		t.Fatalf("Evaluate() = %v", err)
	}
	if !sweep.Verdicts[1].Valid {
		t.Errorf("new package verdict = %+v, want valid", sweep.Verdicts[1])
	}
	if sweep.Verdicts[0].Valid {
		t.Error("unreachable package should stay invalid")
	}
	if v, _ := out.Last().Get("valid"); v != true {
		t.Errorf("valid = %v, want true", v)
	}
}

func TestVerifyAppend_Errors(t *testing.T) {
	base := registry.NewDocument(registry.NewRecord("repository", "r1"))
	proposed := base.Clone()
	proposed.Packages = append(proposed.Packages, registry.NewRecord("repository", "r2", "name", "x"))

	var ae *registry.AppendError
	if err := registry.VerifyAppend(base, proposed); !errors.As(err, &ae) || ae.Rule != registry.RuleExtraFields {
		t.Errorf("VerifyAppend() = %v, want extra-fields rejection", err)
	}
}

func TestParseDescriptor(t *testing.T) {
	d, err := registry.ParseDescriptor([]byte(descriptor))
	if err != nil {
		t.Fatalf("ParseDescriptor() = %v", err)
	}
	m := registry.Reconcile(registry.NewRecord("name", "http", "license", "GPL"), d)
	if m == nil || m.Field != "license" {
		t.Errorf("Reconcile() = %v, want license mismatch", m)
	}
}

func TestPackageURL(t *testing.T) {
	tests := []struct {
		repo, version, want string
	}{
		{"https://github.com/soplang/http", "1.0.0", "pkg:github/soplang/http@1.0.0"},
		{"https://github.com/Soplang/HTTP/", "", "pkg:github/soplang/http"},
		{"", "1.0.0", ""},
	}
	for _, tt := range tests {
		if got := registry.PackageURL(tt.repo, tt.version); got != tt.want {
			t.Errorf("PackageURL(%q, %q) = %q, want %q", tt.repo, tt.version, got, tt.want)
		}
	}
}

func TestParsePURL(t *testing.T) {
	if _, err := registry.ParsePURL("pkg:github/soplang/http@1.0.0"); err != nil {
		t.Errorf("ParsePURL() = %v", err)
	}
	if _, err := registry.ParsePURL("not a purl"); err == nil {
		t.Error("ParsePURL(invalid) succeeded, want error")
	}
}

func TestRecordPURL(t *testing.T) {
	r := registry.NewRecord("repository", "https://github.com/soplang/http", "version", "1.2.0")
	if _, err := registry.RecordPURL(r); err != nil {
		t.Errorf("RecordPURL() = %v", err)
	}
	if _, err := registry.RecordPURL(registry.NewRecord("name", "x")); !errors.Is(err, registry.ErrNoRepository) {
		t.Errorf("RecordPURL(no repository) = %v, want ErrNoRepository", err)
	}
}

func TestRepositoryFromPURL(t *testing.T) {
	got, err := registry.RepositoryFromPURL("pkg:github/soplang/http@1.0.0")
	if err != nil {
		t.Fatalf("RepositoryFromPURL() = %v", err)
	}
	if got != "https://github.com/soplang/http" {
		t.Errorf("RepositoryFromPURL() = %q", got)
	}

	if _, err := registry.RepositoryFromPURL("pkg:npm/lodash@4.17.21"); err == nil {
		t.Error("npm purl should be unsupported")
	}

	round := registry.PackageURL("https://github.com/soplang/json", "2.0.0")
	if got, _ := registry.RepositoryFromPURL(round); got != "https://github.com/soplang/json" {
		t.Errorf("round trip = %q", got)
	}
}

func TestDefaultSource(t *testing.T) {
	if registry.DefaultSource() == nil {
		t.Fatal("DefaultSource() = nil")
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := registry.Load(filepath.Join(t.TempDir(), "registry.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() = %v, want not-exist", err)
	}
}
