package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"permaudit.io/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
}

// withAuth requires a bearer token on /v1/ routes. A disabled authenticator
// leaves every route open.
func (a *API) withAuth(next http.Handler) http.Handler {
	if !a.auth.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="permaudit"`)
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		claims, err := a.auth.ParseAndValidate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="permaudit", error="invalid_token"`)
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// orgFor resolves the organization a request acts on: the token's org when
// auth is on, otherwise the explicit fallback.
func (a *API) orgFor(r *http.Request, fallback string) (string, error) {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		if fallback != "" && !strings.EqualFold(fallback, p.OrgID) {
			return "", errForeignOrg
		}
		return p.OrgID, nil
	}
	fallback = strings.TrimSpace(fallback)
	if fallback == "" {
		return "", errOrgRequired
	}
	return fallback, nil
}

var (
	errOrgRequired = errors.New("orgId is required")
	errForeignOrg  = errors.New("token is not scoped to this organization")
)

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return !strings.HasPrefix(path, "/v1/")
}
