package musicapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theory-cloud/musicapi/pkg/limited"
)

// Handler is the business function for one route.
type Handler func(*Context) (*Response, error)

type RouteOption func(*routeOptions)

type routeOptions struct {
	rateLimit limited.Category
	name      string
}

// WithRateLimit checks the caller against category before the handler runs.
func WithRateLimit(category limited.Category) RouteOption {
	return func(opts *routeOptions) {
		opts.rateLimit = category
	}
}

// WithName sets the service name used in logs for this route.
func WithName(name string) RouteOption {
	return func(opts *routeOptions) {
		opts.name = strings.TrimSpace(name)
	}
}

// segment is one piece of a route pattern: a literal, a `{name}` capture or, in last
// position only, a `{name+}` capture of the remaining path.
type segment struct {
	literal string
	param   string
	greedy  bool
}

type route struct {
	Method    string
	Pattern   string
	Handler   Handler
	RateLimit limited.Category
	Name      string

	segments []segment
	literals int
}

type router struct {
	routes []route
}

func newRouter() *router {
	return &router{}
}

func (r *router) addStrict(method, pattern string, handler Handler, opts routeOptions) error {
	if handler == nil {
		return fmt.Errorf("musicapi: route handler is nil")
	}
	parts := splitPath(normalizePath(pattern))
	rt := route{
		Method:    strings.ToUpper(strings.TrimSpace(method)),
		Pattern:   "/" + strings.Join(parts, "/"),
		Handler:   handler,
		RateLimit: opts.rateLimit,
		Name:      opts.name,
		segments:  make([]segment, 0, len(parts)),
	}
	for i, part := range parts {
		seg, err := parseSegment(part, i == len(parts)-1)
		if err != nil {
			return err
		}
		if seg.param == "" {
			rt.literals++
		}
		rt.segments = append(rt.segments, seg)
	}
	r.routes = append(r.routes, rt)
	return nil
}

func parseSegment(raw string, last bool) (segment, error) {
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		if raw == "" || strings.ContainsAny(raw, "{}") {
			return segment{}, fmt.Errorf("musicapi: invalid route segment: %q", raw)
		}
		return segment{literal: raw}, nil
	}
	name := raw[1 : len(raw)-1]
	seg := segment{param: name}
	if strings.HasSuffix(name, "+") {
		if !last {
			return segment{}, fmt.Errorf("musicapi: proxy segment must be last: %q", raw)
		}
		seg = segment{param: strings.TrimSuffix(name, "+"), greedy: true}
	}
	if seg.param == "" {
		return segment{}, fmt.Errorf("musicapi: invalid route segment: %q", raw)
	}
	return seg, nil
}

// params matches path against the route, returning the captured values.
func (rt route) params(path []string) (map[string]string, bool) {
	out := map[string]string{}
	for i, seg := range rt.segments {
		if i >= len(path) || path[i] == "" {
			return nil, false
		}
		switch {
		case seg.greedy:
			out[seg.param] = strings.Join(path[i:], "/")
			return out, true
		case seg.param != "":
			out[seg.param] = path[i]
		case seg.literal != path[i]:
			return nil, false
		}
	}
	return out, len(path) == len(rt.segments)
}

func (rt route) greedy() bool {
	n := len(rt.segments)
	return n > 0 && rt.segments[n-1].greedy
}

type routeMatch struct {
	Route  route
	Params map[string]string
}

// match picks the route for method and path. Among matching routes the one with more literal
// segments wins, then a route without a proxy tail, then the earliest registered. allowed lists
// the methods of every route matching path.
func (r *router) match(method, path string) (*routeMatch, []string) {
	method = strings.ToUpper(strings.TrimSpace(method))
	parts := splitPath(path)

	var (
		best    *routeMatch
		allowed []string
	)
	for _, candidate := range r.routes {
		params, ok := candidate.params(parts)
		if !ok {
			continue
		}
		allowed = append(allowed, candidate.Method)
		if candidate.Method != method {
			continue
		}
		if best == nil || moreSpecific(candidate, best.Route) {
			best = &routeMatch{Route: candidate, Params: params}
		}
	}
	return best, allowed
}

func moreSpecific(a, b route) bool {
	if a.literals != b.literals {
		return a.literals > b.literals
	}
	return !a.greedy() && b.greedy()
}

func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func formatAllowHeader(methods []string) string {
	set := map[string]struct{}{}
	for _, m := range methods {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			set[m] = struct{}{}
		}
	}
	uniq := make([]string, 0, len(set))
	for m := range set {
		uniq = append(uniq, m)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, ", ")
}
