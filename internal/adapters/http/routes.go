package http

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/ocomp/internal/core/domain"
)

// Route is one bound endpoint.
type Route struct {
	Method string
	Path   string
	Target string
}

// RouteTable maps each configured target to its endpoints. It is built once
// from the configuration and never modified.
type RouteTable struct {
	targets map[string]domain.BuildTarget
	byPath  map[string]string
	routes  []Route
}

// NewRouteTable builds two routes, POST and GET /{name}, for every target.
// Target names are unique by construction of the configuration map.
func NewRouteTable(cfg *domain.Configuration) *RouteTable {
	names := cfg.TargetNames()
	sort.Strings(names)

	t := &RouteTable{
		targets: make(map[string]domain.BuildTarget, len(names)),
		byPath:  make(map[string]string, len(names)),
		routes:  make([]Route, 0, 2*len(names)),
	}
	for _, name := range names {
		target := cfg.Targets[name]
		target.Name = name
		path := "/" + name
		t.targets[name] = target
		t.byPath[path] = name
		t.routes = append(t.routes,
			Route{Method: fiber.MethodPost, Path: path, Target: name},
			Route{Method: fiber.MethodGet, Path: path, Target: name},
		)
	}
	return t
}

// Routes returns a copy of the bound routes, sorted by target name.
func (t *RouteTable) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Lookup returns the target configured under name.
func (t *RouteTable) Lookup(name string) (domain.BuildTarget, bool) {
	target, ok := t.targets[name]
	return target, ok
}

// LookupPath returns the target bound to a route path.
func (t *RouteTable) LookupPath(path string) (domain.BuildTarget, bool) {
	name, ok := t.byPath[path]
	if !ok {
		return domain.BuildTarget{}, false
	}
	return t.Lookup(name)
}

// Mount binds every route in the table to h.
func (t *RouteTable) Mount(r fiber.Router, h *BuildHandler) {
	for _, route := range t.routes {
		switch route.Method {
		case fiber.MethodPost:
			r.Post(route.Path, h.Build)
		case fiber.MethodGet:
			r.Get(route.Path, h.Usage)
		}
	}
}
