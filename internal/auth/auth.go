package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "permaudit"

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrDisabled is returned when no signing secret is configured.
	ErrDisabled = errors.New("auth: no signing secret configured")
)

// Claims represents JWT claims used across the service. Subject is the
// caller's Jira account id; OrgID is the Jira cloud id the caller may audit.
type Claims struct {
	OrgID string   `json:"org"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to request contexts.
type Principal struct {
	Subject string
	OrgID   string
	Roles   []string
}

// Authenticator signs and verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret)), now: time.Now}
}

// Enabled reports whether a signing secret is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// GenerateToken signs a token for subject scoped to orgID.
func (a *Authenticator) GenerateToken(subject, orgID string, roles []string, ttl time.Duration) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrDisabled
	}
	subject = strings.TrimSpace(subject)
	orgID = strings.TrimSpace(orgID)
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	if orgID == "" {
		return "", time.Time{}, errors.New("org is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}

	now := a.now().UTC()
	expires := now.Add(ttl)
	claims := Claims{
		OrgID: orgID,
		Roles: dedupeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseAndValidate verifies the token signature and required claims.
func (a *Authenticator) ParseAndValidate(token string) (*Claims, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.OrgID) == "" {
		return nil, ErrInvalidToken
	}
	claims.Roles = dedupeRoles(claims.Roles)
	return claims, nil
}

// Principal converts claims into the request principal.
func (c *Claims) Principal() Principal {
	return Principal{Subject: c.Subject, OrgID: c.OrgID, Roles: c.Roles}
}

func dedupeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
