// Package resolver turns a (project, version, path) triple into the extracted
// text of a documentation page, trying URL variants until one yields content.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/cache"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/fetcher"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/parser"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/rtd"
)

// Fetcher performs GET requests. *fetcher.HTTPClient satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// Extractor turns a page into plain text. *parser.Extractor satisfies it.
type Extractor interface {
	Extract(page []byte) (string, error)
}

// Attempt records why one candidate URL failed.
type Attempt struct {
	URL string
	Err error
}

// ResolveError is returned when every candidate URL failed.
type ResolveError struct {
	URL      string // primary candidate
	Attempts []Attempt
}

func (e *ResolveError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.URL, a.Err))
	}
	return fmt.Sprintf("unable to resolve %s (%s)", e.URL, strings.Join(parts, "; "))
}

// NotFound reports whether every attempt failed because the page does not
// exist or holds no content, as opposed to a transport failure.
func (e *ResolveError) NotFound() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if !errors.Is(a.Err, fetcher.ErrNotFound) && !errors.Is(a.Err, parser.ErrNoContent) {
			return false
		}
	}
	return true
}

// Resolver fetches and extracts documentation pages through the cache.
type Resolver struct {
	site      rtd.Site
	fetcher   Fetcher
	extractor Extractor
	cache     cache.Cache
	ttl       time.Duration
	group     singleflight.Group
	logger    zerolog.Logger
}

// New creates a Resolver.
func New(site rtd.Site, f Fetcher, e Extractor, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		site:      site,
		fetcher:   f,
		extractor: e,
		cache:     c,
		ttl:       ttl,
		logger:    logger,
	}
}

// Candidates returns the URLs tried for a page, in order. A single leading
// slash is removed from path. The trailing slash and index.html variants are
// skipped when path is empty or already ends in "/" or "index.html".
func (r *Resolver) Candidates(project, version, path string) []string {
	path = strings.TrimPrefix(path, "/")
	primary := r.site.PageURL(project, version, path)

	if path == "" || strings.HasSuffix(path, "/") || strings.HasSuffix(path, "index.html") {
		return []string{primary}
	}
	return []string{
		primary,
		primary + "/",
		primary + "/index.html",
	}
}

// Resolve returns the extracted text of the first candidate URL that yields
// content, along with that URL.
func (r *Resolver) Resolve(ctx context.Context, project, version, path string) (string, string, error) {
	candidates := r.Candidates(project, version, path)
	resolveErr := &ResolveError{URL: candidates[0]}

	for i, u := range candidates {
		if i > 0 {
			r.logger.Debug().Str("url", u).Int("attempt", i+1).Msg("Trying page variant")
		}

		text, err := r.Page(ctx, u)
		if err == nil {
			return text, u, nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		resolveErr.Attempts = append(resolveErr.Attempts, Attempt{URL: u, Err: err})
	}

	r.logger.Info().
		Str("project", project).
		Str("version", version).
		Str("path", path).
		Bool("not_found", resolveErr.NotFound()).
		Msg("Page could not be resolved")
	return "", "", resolveErr
}

// Page returns the extracted text of one URL. Successful extractions are
// cached; concurrent calls for the same URL share one fetch. The shared fetch
// is detached from any single caller's cancellation, so one caller giving up
// does not fail the others; each caller still returns as soon as its own ctx
// is done. The HTTP client timeout bounds the detached fetch.
func (r *Resolver) Page(ctx context.Context, u string) (string, error) {
	if text, ok := r.cache.Get(u); ok {
		r.logger.Debug().Str("url", u).Msg("Page cache hit")
		return string(text), nil
	}

	ch := r.group.DoChan(u, func() (interface{}, error) {
		body, err := r.fetcher.Fetch(context.WithoutCancel(ctx), u, nil)
		if err != nil {
			return "", err
		}

		text, err := r.extractor.Extract(body)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", u, err)
		}

		r.cache.Put(u, []byte(text), r.ttl)
		r.logger.Debug().Str("url", u).Int("chars", len(text)).Msg("Page extracted")
		return text, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			r.logger.Debug().Str("url", u).Msg("Shared in-flight page fetch")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
