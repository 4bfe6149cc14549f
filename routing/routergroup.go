package routing

import (
	"log"
	"net/http"
	"slices"
	"strings"
)

type RouteGroup struct {
	Router          // [Embedded Interface]
	Prefix          string
	HandlerWrappers []HandlerWrapper // Group Handler Wrappers
}

var _ Router = (*RouteGroup)(nil)

// Handle registers "<method> <subpath>" as "<method> <prefix><subpath>".
// Group wrappers run before route wrappers, outermost first:
//
//	grp1 -> ... -> grpN -> route1 -> ... -> routeN -> handler
func (g *RouteGroup) Handle(subpattern string, handler http.Handler, handlerWrappers ...HandlerWrapper) {
	fullPattern := g.Prefix + subpattern
	if method, subpath, ok := strings.Cut(subpattern, " "); ok {
		fullPattern = method + " " + g.Prefix + subpath
	}
	if strings.Contains(fullPattern, "//") {
		log.Fatalf("[ERROR][WEB] Can't Register Router Pattern %s", fullPattern)
	}
	wrapped := wrap(wrap(handler, handlerWrappers), g.HandlerWrappers)
	g.Router.Handle(fullPattern, wrapped)
}

func (g *RouteGroup) HandleFunc(subpattern string, handleFunc func(http.ResponseWriter, *http.Request), handlerWrappers ...HandlerWrapper) {
	g.Handle(subpattern, http.HandlerFunc(handleFunc), handlerWrappers...)
}

// Group on *RouteGroup makes a Subgroup
//
//	router.Group("/jobs", func(jobs *RouteGroup) {
//	  jobs.HandleFunc("GET /{id}", h.JobProgress)          // "GET /jobs/{id}"
//	  jobs.Group("/{id}", func(job *RouteGroup) {
//	    job.HandleFunc("GET /ws", h.WatchJob)              // "GET /jobs/{id}/ws"
//	  })
//	})
func (g *RouteGroup) Group(subPrefix string, batch func(*RouteGroup), handlerWrappers ...HandlerWrapper) *RouteGroup {
	subg := &RouteGroup{
		Router: g.Router,
		Prefix: g.Prefix + subPrefix,
		// a fresh slice so sibling subgroups never share a backing array
		HandlerWrappers: slices.Concat(g.HandlerWrappers, handlerWrappers),
	}

	batch(subg)

	return subg
}
