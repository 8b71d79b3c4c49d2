package docs

import (
	"errors"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/fetcher"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/parser"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/resolver"
)

// ErrNoProjects is returned when every project listing strategy came back empty.
var ErrNoProjects = errors.New("no projects found")

// ErrNoSource is returned when a page publishes no source file.
var ErrNoSource = errors.New("no page source found")

// Kind classifies an operation failure.
type Kind int

const (
	// KindNone means the operation succeeded.
	KindNone Kind = iota
	// KindUnavailable covers transport failures, timeouts and unexpected statuses.
	KindUnavailable
	// KindNotFound means the upstream answered but the resource does not exist
	// or holds nothing usable.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnavailable:
		return "unavailable"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var resolveErr *resolver.ResolveError
	if errors.As(err, &resolveErr) {
		if resolveErr.NotFound() {
			return KindNotFound
		}
		return KindUnavailable
	}

	switch {
	case errors.Is(err, fetcher.ErrNotFound),
		errors.Is(err, parser.ErrNoContent),
		errors.Is(err, parser.ErrNoTOC),
		errors.Is(err, ErrNoProjects),
		errors.Is(err, ErrNoSource):
		return KindNotFound
	default:
		return KindUnavailable
	}
}
