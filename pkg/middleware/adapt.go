package middleware

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Adapt turns net/http middlewares into a wrapper for a single httprouter
// route. The first middleware is the outermost.
func Adapt(mws ...func(http.Handler) http.Handler) func(httprouter.Handle) httprouter.Handle {
	return func(h httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			var next http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				h(w, r, ps)
			})
			for i := len(mws) - 1; i >= 0; i-- {
				next = mws[i](next)
			}
			next.ServeHTTP(w, r)
		}
	}
}
