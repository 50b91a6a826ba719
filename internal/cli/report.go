package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/git-pkgs/purl"
	"gopkg.in/yaml.v3"

	"github.com/soplang/registry/client"
	"github.com/soplang/registry/internal/core"
)

type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutput(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case outputText, outputJSON, outputYAML:
		return f, nil
	case "":
		return outputText, nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be text, json or yaml", s)
	}
}

// packageResult is one sweep verdict as reported to the user.
type packageResult struct {
	Index      int               `json:"index" yaml:"index"`
	Name       string            `json:"name" yaml:"name"`
	Repository string            `json:"repository,omitempty" yaml:"repository,omitempty"`
	ID         string            `json:"id,omitempty" yaml:"id,omitempty"`
	Valid      bool              `json:"valid" yaml:"valid"`
	Changed    bool              `json:"changed" yaml:"changed"`
	Reason     string            `json:"reason,omitempty" yaml:"reason,omitempty"`
	URLs       map[string]string `json:"urls,omitempty" yaml:"urls,omitempty"`
}

type sweepReport struct {
	Registry  string          `json:"registry" yaml:"registry"`
	Packages  int             `json:"packages" yaml:"packages"`
	Valid     int             `json:"valid" yaml:"valid"`
	Changed   int             `json:"changed" yaml:"changed"`
	Committed bool            `json:"committed" yaml:"committed"`
	Results   []packageResult `json:"results" yaml:"results"`
}

// checkReport is the outcome of verify-append, admit or enrich.
type checkReport struct {
	Command   string `json:"command" yaml:"command"`
	Registry  string `json:"registry" yaml:"registry"`
	Accepted  bool   `json:"accepted" yaml:"accepted"`
	Package   string `json:"package,omitempty" yaml:"package,omitempty"`
	Rule      string `json:"rule,omitempty" yaml:"rule,omitempty"`
	Field     string `json:"field,omitempty" yaml:"field,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	Detail    string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Committed bool   `json:"committed,omitempty" yaml:"committed,omitempty"`
}

func newSweepReport(path string, sweep *core.Sweep, doc *core.Document, urls client.URLBuilder) sweepReport {
	r := sweepReport{
		Registry: path,
		Packages: len(sweep.Verdicts),
		Valid:    sweep.ValidCount(),
		Changed:  sweep.ChangedCount(),
		Results:  make([]packageResult, 0, len(sweep.Verdicts)),
	}
	for _, v := range sweep.Verdicts {
		res := packageResult{
			Index:      v.Index,
			Name:       v.Label,
			Repository: v.Repository,
			Valid:      v.Valid,
			Changed:    v.Changed,
			Reason:     verdictReason(v),
		}
		if v.Repository != "" {
			record := doc.Packages[v.Index]
			entry, _ := record.String(core.FieldEntry)
			ver, _ := record.String(core.FieldVersion)
			res.URLs = client.BuildURLs(urls, v.Repository, entry, ver)
			res.ID = packageID(res.URLs["purl"])
		}
		r.Results = append(r.Results, res)
	}
	return r
}

// packageID is the namespace/name a package URL identifies, e.g. "soplang/http".
func packageID(purlStr string) string {
	if purlStr == "" {
		return ""
	}
	p, err := purl.Parse(purlStr)
	if err != nil {
		return ""
	}
	return p.FullName()
}

func verdictReason(v core.Verdict) string {
	switch {
	case v.Valid:
		return ""
	case v.Repository == "":
		return core.ErrNoRepository.Error()
	case v.FetchErr != nil:
		return v.FetchErr.Error()
	case v.Mismatch != nil && v.Mismatch.NoDescriptor:
		return v.Mismatch.String()
	case !v.EntryExists:
		return core.ErrEntryUnreachable.Error()
	case v.Mismatch != nil:
		return v.Mismatch.String()
	default:
		return ""
	}
}

// newCheckReport fills the rule or field of a rejection from its typed error.
func newCheckReport(command, path string, err error) checkReport {
	r := checkReport{Command: command, Registry: path, Accepted: err == nil}
	if err == nil {
		return r
	}
	r.Error = err.Error()

	var appendErr *core.AppendError
	var fieldErr *core.MissingFieldError
	var entryErr *core.EntryError
	switch {
	case errors.As(err, &appendErr):
		r.Rule = string(appendErr.Rule)
		r.Detail = appendErr.Detail
	case errors.As(err, &fieldErr):
		r.Field = fieldErr.Field
	case errors.As(err, &entryErr):
		r.Field = core.FieldEntry
	}
	return r
}

func writeReport(w io.Writer, format outputFormat, report any, text func(io.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

func (r sweepReport) writeText(w io.Writer) {
	for _, res := range r.Results {
		status := "valid"
		if !res.Valid {
			status = "invalid"
		}
		line := fmt.Sprintf("%-30s %s", res.Name, status)
		if res.Changed {
			line += " (changed)"
		}
		if res.Reason != "" {
			line += ": " + res.Reason
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d packages, %d valid, %d changed\n", r.Packages, r.Valid, r.Changed)
}

func (r checkReport) writeText(w io.Writer) {
	if !r.Accepted {
		return
	}
	switch r.Command {
	case "verify-append":
		fmt.Fprintln(w, "registry change is a single valid append")
	case "admit":
		fmt.Fprintf(w, "descriptor for %s passed validation\n", r.Package)
	case "enrich":
		fmt.Fprintf(w, "registry updated with package %s\n", r.Package)
	}
}
