// Package client builds the remote locations the registry tools read from.
//
// Descriptors and entry files are never fetched through a forge API. They are
// read from the forge's raw-content host on a fixed branch, so every lookup is
// a plain URL derived from the repository's web address.
package client

import (
	"net/url"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

const (
	// DefaultBranch is the branch descriptors and entry files are read from.
	DefaultBranch = "main"

	// DefaultDescriptorFile is the descriptor path relative to the repository root.
	DefaultDescriptorFile = "sop.toml"

	githubHost    = "github.com"
	githubRawHost = "raw.githubusercontent.com"
	gitlabHost    = "gitlab.com"
	codebergHost  = "codeberg.org"
)

// URLBuilder constructs URLs for a package repository.
type URLBuilder interface {
	Descriptor(repository string) string
	Entry(repository, path string) string
	PURL(repository, version string) string
}

// RawURLs derives raw-content URLs from repository web URLs by host substitution.
type RawURLs struct {
	Branch         string
	DescriptorFile string
}

// NewRawURLs returns a RawURLs reading from branch. Empty arguments fall back
// to DefaultBranch and DefaultDescriptorFile.
func NewRawURLs(branch, descriptorFile string) *RawURLs {
	if branch == "" {
		branch = DefaultBranch
	}
	if descriptorFile == "" {
		descriptorFile = DefaultDescriptorFile
	}
	return &RawURLs{Branch: branch, DescriptorFile: descriptorFile}
}

// Descriptor returns the raw URL of the repository's descriptor file.
func (u *RawURLs) Descriptor(repository string) string {
	return u.Raw(repository, u.DescriptorFile)
}

// Entry returns the raw URL of a file inside the repository.
func (u *RawURLs) Entry(repository, path string) string {
	return u.Raw(repository, path)
}

// Raw returns the raw-content URL for path inside repository.
//
//	https://github.com/o/r     -> https://raw.githubusercontent.com/o/r/main/<path>
//	https://gitlab.com/o/r     -> https://gitlab.com/o/r/-/raw/main/<path>
//	https://codeberg.org/o/r   -> https://codeberg.org/o/r/raw/branch/main/<path>
//
// Any other host gets the branch and path appended unchanged.
func (u *RawURLs) Raw(repository, path string) string {
	repo := strings.TrimRight(strings.TrimSpace(repository), "/")
	path = strings.TrimLeft(path, "/")

	parsed, err := url.Parse(repo)
	if err != nil || parsed.Host == "" {
		return repo + "/" + u.Branch + "/" + path
	}

	switch strings.TrimPrefix(strings.ToLower(parsed.Host), "www.") {
	case githubHost:
		parsed.Host = githubRawHost
		return parsed.String() + "/" + u.Branch + "/" + path
	case gitlabHost:
		return repo + "/-/raw/" + u.Branch + "/" + path
	case codebergHost:
		return repo + "/raw/branch/" + u.Branch + "/" + path
	default:
		return repo + "/" + u.Branch + "/" + path
	}
}

// PURL returns a package URL identifying the repository, e.g.
// "pkg:github/soplang/http@1.0.0". Repositories outside GitHub get a generic
// PURL named after their host and path.
func (u *RawURLs) PURL(repository, version string) string {
	repo := strings.TrimSuffix(strings.TrimRight(strings.TrimSpace(repository), "/"), ".git")
	parsed, err := url.Parse(repo)
	if err != nil || parsed.Host == "" {
		return ""
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")

	if host == githubHost && len(segments) == 2 && segments[0] != "" && segments[1] != "" {
		p := packageurl.NewPackageURL("github", strings.ToLower(segments[0]), strings.ToLower(segments[1]), version, nil, "")
		return p.ToString()
	}

	name := segments[len(segments)-1]
	if name == "" {
		return ""
	}
	namespace := host
	if len(segments) > 1 {
		namespace = host + "/" + strings.Join(segments[:len(segments)-1], "/")
	}
	p := packageurl.NewPackageURL("generic", namespace, name, version, nil, "")
	return p.ToString()
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "descriptor", "entry" and "purl".
func BuildURLs(urls URLBuilder, repository, entry, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Descriptor(repository); v != "" {
		result["descriptor"] = v
	}
	if entry != "" {
		if v := urls.Entry(repository, entry); v != "" {
			result["entry"] = v
		}
	}
	if v := urls.PURL(repository, version); v != "" {
		result["purl"] = v
	}
	return result
}
