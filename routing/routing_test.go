package routing

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tagWrapper(tag string) HandlerWrapper {
	return HandlerWrapperFunc(func(inner http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Trace", tag)
			inner.ServeHTTP(w, r)
		})
	})
}

func TestGroupPatternsAndWrapperOrder(t *testing.T) {
	r := NewBaseRouter()
	r.Group("/jobs/", func(jobs *RouteGroup) {
		jobs.HandleFunc("GET {id}", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(r.PathValue("id")))
		}, tagWrapper("route"))
	}, tagWrapper("group"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/cert_job_1", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "cert_job_1" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	if got := strings.Join(rec.Header().Values("X-Trace"), ","); got != "group,route" {
		t.Errorf("wrapper order = %q", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/cert_job_1", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestRecoverWrapper(t *testing.T) {
	r := NewBaseRouter()
	r.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, HandlerWrapperFunc(RecoverWrapper))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"type":"error"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSiblingSubgroupsKeepOwnWrappers(t *testing.T) {
	r := NewBaseRouter()
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }
	r.Group("/a", func(a *RouteGroup) {
		a.Group("/x", func(x *RouteGroup) { x.HandleFunc("GET /", ok) }, tagWrapper("x"))
		a.Group("/y", func(y *RouteGroup) { y.HandleFunc("GET /", ok) }, tagWrapper("y"))
	}, tagWrapper("a"), tagWrapper("b"))

	for path, want := range map[string]string{"/a/x/": "a,b,x", "/a/y/": "a,b,y"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if got := strings.Join(rec.Header().Values("X-Trace"), ","); got != want {
			t.Errorf("%s trace = %q, want %q", path, got, want)
		}
	}
}
