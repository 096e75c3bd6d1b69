package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tgrimes/keygate/token"
	"github.com/tgrimes/keygate/transport"
)

type contextKey int

const (
	identityKey contextKey = iota
	requestIDKey
)

const requestIDHeader = "X-Request-ID"

// AuthMiddleware validates the request's token, rotates its secrets and
// stores the resulting identity on the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		carrier := transport.NewHTTP(w, r, a.policy)

		var opts []token.ValidateOption
		if a.requireHeader {
			opts = append(opts, token.RequireHeader())
		}
		identity, err := a.protocol.Validate(r.Context(), carrier, tokenName, opts...)
		if err != nil {
			a.metrics.validationFailures.Inc()
			mapValidationError(w, err)
			return
		}
		a.metrics.validations.Inc()

		ctx := context.WithValue(r.Context(), identityKey, &identity)
		// Downstream writes go through the carrier so a cookie operation
		// after the body has started fails instead of vanishing.
		next.ServeHTTP(carrier.ResponseWriter(), r.WithContext(ctx))
	})
}

// RequestID tags each request with an ID, honoring one supplied upstream.
func (a *API) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFromContext(ctx context.Context) *token.Identity {
	identity, _ := ctx.Value(identityKey).(*token.Identity)
	return identity
}

// RequestIDFromContext returns the request's ID, if tagged.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
