package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	apperrors "studyreg/pkg/errors"
	httputil "studyreg/pkg/http"
	"studyreg/pkg/logger"
	"studyreg/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type TokenVerifier interface {
	Verify(token string) (*model.Principal, error)
}

// RequireRole admits requests carrying a valid bearer token for one of the
// given roles and stores the principal in the request context.
func RequireRole(verifier TokenVerifier, log *logger.Logger, roles ...string) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			token, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, log, apperrors.Unauthorized("Missing session token"))
				return
			}

			p, err := verifier.Verify(token)
			if err != nil {
				log.Warn("Rejected session token",
					"request_id", RequestIDFrom(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				writeAuthError(w, log, err)
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeAuthError(w, log, apperrors.Forbidden("Not allowed for this role"))
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, p)
			next(w, r.WithContext(ctx), ps)
		}
	}
}

func PrincipalFrom(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*model.Principal)
	return p, ok
}

// bearerToken reads the Authorization header, or the token query parameter
// for EventSource clients that cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

func writeAuthError(w http.ResponseWriter, log *logger.Logger, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		log.Error("failed to write error response", "operation", "RequireRole", "error", writeErr)
	}
}
