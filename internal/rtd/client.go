// Package rtd is a client for the Read the Docs REST API (v3). Responses are
// cached by request URL.
package rtd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/cache"
)

// Fetcher performs GET requests. *fetcher.HTTPClient satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// Client issues authenticated, cached requests against the API.
type Client struct {
	baseURL string
	token   string
	fetcher Fetcher
	cache   cache.Cache
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewClient creates an API client. token is the process default credential
// and may be empty.
func NewClient(baseURL, token string, f Fetcher, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		fetcher: f,
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

// AuthHeader returns request headers carrying the per-call token, or the
// default token when perCall is empty. No Authorization header is set when
// neither is available.
func (c *Client) AuthHeader(perCall string) http.Header {
	header := http.Header{}
	token := perCall
	if token == "" {
		token = c.token
	}
	if token != "" {
		req := &http.Request{Header: header}
		(&oauth2.Token{AccessToken: token, TokenType: "Token"}).SetAuthHeader(req)
	}
	return header
}

// get fetches endpoint (relative to the base URL) and decodes it into out.
// Only successful bodies are cached; those fetched with a per-call token are
// kept out of the on-disk snapshot.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, token string, out interface{}) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	if body, ok := c.cache.Get(u); ok {
		c.logger.Debug().Str("url", u).Msg("API cache hit")
		return decode(u, body, out)
	}

	header := c.AuthHeader(token)
	header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("url", u).
		Bool("token_present", header.Get("Authorization") != "").
		Msg("API request")

	body, err := c.fetcher.Fetch(ctx, u, header)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", u).Msg("API request failed")
		return fmt.Errorf("api request %s: %w", u, err)
	}

	if err := decode(u, body, out); err != nil {
		c.logger.Warn().Err(err).Str("url", u).Msg("API response could not be decoded")
		return err
	}

	if pc, ok := c.cache.(privateCache); ok && token != "" {
		pc.PutPrivate(u, body, c.ttl)
		return nil
	}
	c.cache.Put(u, body, c.ttl)
	return nil
}

// privateCache is implemented by caches that can hold entries which are never
// persisted. Responses fetched with a per-call token go there.
type privateCache interface {
	PutPrivate(key string, value []byte, ttl time.Duration)
}

func decode(u string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", u, err)
	}
	return nil
}

// ListProjects returns projects matching query. An empty query lists without
// filtering; a non-positive limit is omitted.
func (c *Client) ListProjects(ctx context.Context, query string, limit int, token string) (*ProjectList, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var list ProjectList
	if err := c.get(ctx, "/projects/", params, token, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Project returns a single project by slug.
func (c *Client) Project(ctx context.Context, slug, token string) (*Project, error) {
	var p Project
	if err := c.get(ctx, "/projects/"+url.PathEscape(slug)+"/", nil, token, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Versions returns the versions of a project, optionally only active ones.
func (c *Client) Versions(ctx context.Context, slug string, activeOnly bool, token string) (*VersionList, error) {
	var params url.Values
	if activeOnly {
		params = url.Values{"active": []string{"true"}}
	}

	var list VersionList
	if err := c.get(ctx, "/projects/"+url.PathEscape(slug)+"/versions/", params, token, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Search runs a full-text search scoped to one project.
func (c *Client) Search(ctx context.Context, project, query string, pageSize int, token string) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("q", "project:"+project+" "+query)
	if pageSize > 0 {
		params.Set("page_size", strconv.Itoa(pageSize))
	}

	var resp SearchResponse
	if err := c.get(ctx, "/search/", params, token, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
