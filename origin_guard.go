package auth

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/goliatone/go-errors"
)

const (
	HeaderAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderMaxAge           = "Access-Control-Max-Age"

	defaultAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	defaultAllowHeaders = "Content-Type, Authorization, X-Requested-With"

	regexpPrefix = "re:"
)

// OriginMatcher matches an Origin header value
type OriginMatcher interface {
	Match(origin string) bool
}

type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(origin string) bool {
	return m.re.MatchString(origin)
}

// OriginGuard evaluates the CORS allow-list. It is immutable once built and
// safe for concurrent use.
type OriginGuard struct {
	exact    map[string]struct{}
	patterns []OriginMatcher
	methods  string
	headers  string
}

// NewOriginGuard compiles the allow-list. Entries prefixed with "re:" are
// regular expressions, entries containing "*" are glob patterns ("*" does
// not cross "." or "/"), everything else matches exactly.
func NewOriginGuard(origins []string) (*OriginGuard, error) {
	g := &OriginGuard{
		exact:   make(map[string]struct{}),
		methods: defaultAllowMethods,
		headers: defaultAllowHeaders,
	}

	for _, raw := range origins {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		switch {
		case strings.HasPrefix(entry, regexpPrefix):
			re, err := regexp.Compile(strings.TrimPrefix(entry, regexpPrefix))
			if err != nil {
				return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid origin pattern").
					WithMetadata(map[string]any{"origin": entry})
			}
			g.patterns = append(g.patterns, regexpMatcher{re: re})
		case strings.Contains(entry, "*"):
			pattern, err := glob.Compile(strings.TrimSuffix(entry, "/"), '.', '/')
			if err != nil {
				return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid origin pattern").
					WithMetadata(map[string]any{"origin": entry})
			}
			g.patterns = append(g.patterns, pattern)
		default:
			g.exact[strings.TrimSuffix(entry, "/")] = struct{}{}
		}
	}

	return g, nil
}

// MustOriginGuard is NewOriginGuard that panics on a bad pattern
func MustOriginGuard(origins ...string) *OriginGuard {
	g, err := NewOriginGuard(origins)
	if err != nil {
		panic(err)
	}
	return g
}

// IsAllowed reports whether origin may call the API. An absent origin is a
// same-origin or non-browser caller and is allowed.
func (g *OriginGuard) IsAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}

	if _, ok := g.exact[origin]; ok {
		return true
	}

	for _, p := range g.patterns {
		if p.Match(origin) {
			return true
		}
	}

	return false
}

// Guard evaluates origin and writes the CORS and no-cache headers to sink.
// A disallowed origin gets "null" as the allowed origin.
func (g *OriginGuard) Guard(origin string, sink HeaderSink) bool {
	allowed := g.IsAllowed(origin)
	origin = strings.TrimSpace(origin)

	switch {
	case origin == "":
	case allowed:
		sink.Set(HeaderAllowOrigin, origin)
		sink.Set("Vary", "Origin")
	default:
		sink.Set(HeaderAllowOrigin, "null")
	}

	sink.Set(HeaderAllowMethods, g.methods)
	sink.Set(HeaderAllowHeaders, g.headers)
	sink.Set(HeaderAllowCredentials, "true")
	sink.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	sink.Set("Pragma", "no-cache")
	sink.Set("Expires", "0")

	return allowed
}
