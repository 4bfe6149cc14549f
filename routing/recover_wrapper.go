package routing

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/zeptools/gw-certs/responses"
)

func RecoverWrapper(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[PANIC][WEB] %s %s recovered: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				responses.WriteSimpleErrorJSON(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		inner.ServeHTTP(w, r)
	})
}
