package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/rollup-bridge-reconciler/presenter/http/render"
	"github.com/omni/rollup-bridge-reconciler/summary"
)

type ctxKey int

const (
	accountCtxKey ctxKey = iota
	filterCtxKey
)

var ErrInvalidAccount = errors.New("invalid account parameter")

// GetAccountMiddleware reads the optional account query parameter.
func GetAccountMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.URL.Query().Get("account")
		if account == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !common.IsHexAddress(account) {
			render.BadRequest(w, r, fmt.Errorf("%q: %w", account, ErrInvalidAccount))
			return
		}

		ctx := context.WithValue(r.Context(), accountCtxKey, common.HexToAddress(account))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Account returns the requested account, or the fallback if none was given.
func Account(ctx context.Context, fallback common.Address) common.Address {
	if account, ok := ctx.Value(accountCtxKey).(common.Address); ok {
		return account
	}
	return fallback
}

func GetFilterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter, err := summary.ParseFilter(r.URL.Query().Get("filter"))
		if err != nil {
			render.BadRequest(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), filterCtxKey, filter)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Filter(ctx context.Context) summary.Filter {
	if filter, ok := ctx.Value(filterCtxKey).(summary.Filter); ok {
		return filter
	}
	return summary.FilterAll
}
