package sop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/soplang/registry/client"
	"github.com/soplang/registry/fetch"
	"github.com/soplang/registry/internal/core"
	sreglog "github.com/soplang/registry/internal/log"
)

// maxDescriptorSize bounds how much of a descriptor response is read.
const maxDescriptorSize = 1 << 20

// Source implements core.DescriptorSource and core.EntryProber over raw file URLs.
type Source struct {
	fetcher fetch.FetcherInterface
	urls    client.URLBuilder
	cache   *cache.Cache
	logger  *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithCacheTTL keeps parsed descriptors for ttl, keyed by URL. A zero ttl
// disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Source) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = cache.New(ttl, 2*ttl)
	}
}

// WithLogger sets the logger for fetch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource creates a Source. Descriptors are cached for five minutes unless
// WithCacheTTL says otherwise.
func NewSource(f fetch.FetcherInterface, urls client.URLBuilder, opts ...Option) *Source {
	s := &Source{
		fetcher: f,
		urls:    urls,
		cache:   cache.New(5*time.Minute, 10*time.Minute),
		logger:  sreglog.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchDescriptor downloads and parses the descriptor of repository. Failures
// are returned as *core.FetchError.
func (s *Source) FetchDescriptor(ctx context.Context, repository string) (core.Descriptor, error) {
	url := s.urls.Descriptor(repository)

	if s.cache != nil {
		if d, ok := s.cache.Get(url); ok {
			return d.(core.Descriptor), nil
		}
	}

	s.logger.Debug("fetching descriptor", "url", url)
	content, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &core.FetchError{Repository: repository, URL: url, Kind: core.KindTransport, Err: err}
	}
	defer func() { _ = content.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(content.Body, maxDescriptorSize))
	if err != nil {
		return nil, &core.FetchError{Repository: repository, URL: url, Kind: core.KindTransport, Err: fmt.Errorf("reading body: %w", err)}
	}

	d, err := Parse(data)
	if err != nil {
		return nil, &core.FetchError{Repository: repository, URL: url, Kind: core.KindParse, Err: err}
	}

	if s.cache != nil {
		s.cache.SetDefault(url, d)
	}
	return d, nil
}

// EntryExists reports whether path inside repository is retrievable. A 404 is
// a definite false; other failures are returned as errors. Hosts that refuse
// HEAD are probed with GET instead.
func (s *Source) EntryExists(ctx context.Context, repository, path string) (bool, error) {
	url := s.urls.Entry(repository, path)

	_, _, err := s.fetcher.Head(ctx, url)
	if errors.Is(err, fetch.ErrMethodNotAllowed) {
		s.logger.Debug("HEAD refused, retrying with GET", "url", url)
		var content *fetch.Content
		content, err = s.fetcher.Fetch(ctx, url)
		if err == nil {
			_ = content.Body.Close()
		}
	}

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fetch.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("probing %s: %w", url, err)
	}
}
