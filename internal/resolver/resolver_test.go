package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/cache"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/fetcher"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/parser"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/rtd"
)

var pageBody = `<html><body><div role="main"><h1>Guide</h1><p>` +
	strings.Repeat("This guide explains the application factory pattern. ", 3) +
	`</p></div></body></html>`

// requestLog records request paths in order
type requestLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *requestLog) add(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, p)
}

func (l *requestLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func newTestResolver(t *testing.T, handler http.Handler) (*Resolver, *cache.Memory) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	mem := cache.NewMemory(64, nil)
	site := rtd.NewSite(server.URL+"/{project}", "en")
	f := fetcher.NewHTTPClient(5*time.Second, 0, 100, zerolog.Nop())
	return New(site, f, parser.NewExtractor(parser.DefaultMinChars), mem, time.Hour, zerolog.Nop()), mem
}

func TestCandidates(t *testing.T) {
	r := New(rtd.NewSite("https://{project}.readthedocs.io", "en"), nil, nil, cache.NewMemory(1, nil), time.Hour, zerolog.Nop())
	base := "https://flask.readthedocs.io/en/latest/"

	tests := []struct {
		path string
		want []string
	}{
		{"guide", []string{base + "guide", base + "guide/", base + "guide/index.html"}},
		{"/guide", []string{base + "guide", base + "guide/", base + "guide/index.html"}},
		{"/api/", []string{base + "api/"}},
		{"tutorial/index.html", []string{base + "tutorial/index.html"}},
		{"", []string{base}},
		{"/", []string{base}},
		{"//double", []string{base + "/double", base + "/double/", base + "/double/index.html"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := r.Candidates("flask", "latest", tt.path); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Candidates(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	log := &requestLog{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Path)
		if r.URL.Path == "/flask/en/latest/guide/index.html" {
			w.Write([]byte(pageBody))
			return
		}
		http.NotFound(w, r)
	})
	r, _ := newTestResolver(t, handler)

	text, u, err := r.Resolve(context.Background(), "flask", "latest", "guide")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := []string{
		"/flask/en/latest/guide",
		"/flask/en/latest/guide/",
		"/flask/en/latest/guide/index.html",
	}
	if got := log.get(); !reflect.DeepEqual(got, want) {
		t.Errorf("Request order = %v, want %v", got, want)
	}
	if !strings.HasSuffix(u, "/flask/en/latest/guide/index.html") {
		t.Errorf("Resolved URL = %q", u)
	}
	if !strings.HasPrefix(text, "Guide\n") {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestResolveNoContentTriesNextVariant(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flask/en/latest/guide":
			w.Write([]byte(`<html><body><nav>Only navigation</nav></body></html>`))
		case "/flask/en/latest/guide/":
			w.Write([]byte(pageBody))
		default:
			http.NotFound(w, r)
		}
	})
	r, _ := newTestResolver(t, handler)

	_, u, err := r.Resolve(context.Background(), "flask", "latest", "guide")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !strings.HasSuffix(u, "/guide/") {
		t.Errorf("Expected trailing slash variant, got %q", u)
	}
}

func TestResolveCachesSuccessOnly(t *testing.T) {
	var hits int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/flask/en/latest/api/" {
			w.Write([]byte(pageBody))
			return
		}
		http.NotFound(w, r)
	})
	r, mem := newTestResolver(t, handler)

	for i := 0; i < 3; i++ {
		if _, _, err := r.Resolve(context.Background(), "flask", "latest", "/api/"); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("Expected cached page to be fetched once, got %d", got)
	}

	atomic.StoreInt32(&hits, 0)
	for i := 0; i < 2; i++ {
		if _, _, err := r.Resolve(context.Background(), "flask", "latest", "missing"); err == nil {
			t.Fatal("Expected error for missing page")
		}
	}
	if got := atomic.LoadInt32(&hits); got != 6 {
		t.Errorf("Expected failures to be re-fetched (6 requests), got %d", got)
	}
	if mem.Len() != 1 {
		t.Errorf("Expected only the successful page cached, got %d entries", mem.Len())
	}
}

func TestResolveErrorKinds(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		wantNotFound bool
	}{
		{
			name:         "all 404",
			handler:      func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			wantNotFound: true,
		},
		{
			name: "404 and no content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/") {
					w.Write([]byte(`<html><body></body></html>`))
					return
				}
				http.NotFound(w, r)
			},
			wantNotFound: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/") {
					w.WriteHeader(http.StatusBadGateway)
					return
				}
				http.NotFound(w, r)
			},
			wantNotFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestResolver(t, tt.handler)

			_, _, err := r.Resolve(context.Background(), "flask", "latest", "guide")
			var resolveErr *ResolveError
			if !errors.As(err, &resolveErr) {
				t.Fatalf("Expected *ResolveError, got %T: %v", err, err)
			}
			if len(resolveErr.Attempts) != 3 {
				t.Errorf("Expected 3 attempts, got %d", len(resolveErr.Attempts))
			}
			if !strings.HasSuffix(resolveErr.URL, "/flask/en/latest/guide") {
				t.Errorf("Expected primary URL in error, got %q", resolveErr.URL)
			}
			if resolveErr.NotFound() != tt.wantNotFound {
				t.Errorf("NotFound() = %v, want %v", resolveErr.NotFound(), tt.wantNotFound)
			}
		})
	}
}

func TestResolveSingleflight(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte(pageBody))
	})
	r, _ := newTestResolver(t, handler)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Page(context.Background(), r.Candidates("flask", "latest", "/api/")[0])
			errs <- err
		}()
	}

	// Let the callers pile up behind the first request
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Page failed: %v", err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("Expected concurrent fetches to collapse into 1 request, got %d", got)
	}
}

func TestPageSharedFetchSurvivesCallerCancel(t *testing.T) {
	var hits int32
	started := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			close(started)
		}
		<-release
		w.Write([]byte(pageBody))
	})
	r, mem := newTestResolver(t, handler)
	u := r.Candidates("flask", "latest", "/api/")[0]

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := r.Page(ctxA, u)
		errA <- err
	}()
	<-started

	type result struct {
		text string
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		text, err := r.Page(context.Background(), u)
		resB <- result{text, err}
	}()

	// Let B join the in-flight fetch, then abandon it from A
	time.Sleep(50 * time.Millisecond)
	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the cancelled caller to get context.Canceled, got %v", err)
	}

	close(release)
	got := <-resB
	if got.err != nil {
		t.Fatalf("Expected the live caller to get the page, got %v", got.err)
	}
	if !strings.Contains(got.text, "application factory") {
		t.Errorf("Unexpected page text: %q", got.text)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected 1 upstream request, got %d", n)
	}
	if _, ok := mem.Get(u); !ok {
		t.Error("Expected the shared fetch to populate the cache")
	}
}

func TestResolveContextCancelled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	r, _ := newTestResolver(t, handler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Resolve(ctx, "flask", "latest", "guide")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestResolveErrorMessage(t *testing.T) {
	err := &ResolveError{
		URL: "https://flask.readthedocs.io/en/latest/x",
		Attempts: []Attempt{
			{URL: "https://flask.readthedocs.io/en/latest/x", Err: parser.ErrNoContent},
		},
	}
	if !strings.Contains(err.Error(), "no extractable content") {
		t.Errorf("Error() = %q", err.Error())
	}
	if (&ResolveError{}).NotFound() {
		t.Error("Expected an error without attempts not to be NotFound")
	}
}
