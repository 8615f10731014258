package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/omni/rollup-bridge-reconciler/presenter/http/render"
)

var errInternal = errors.New("internal error")

// Recoverer turns a handler panic into a 500 reply. http.ErrAbortHandler is propagated.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			render.Error(w, r, fmt.Errorf("recovered from %v: %w", rec, errInternal))
		}()
		next.ServeHTTP(w, r)
	})
}
