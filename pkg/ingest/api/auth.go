package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-repository/pkg/ingest"
	"golang.org/x/crypto/bcrypt"
)

type identityKey struct{}

// WithIdentity stores who in ctx
func WithIdentity(ctx context.Context, who ingest.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, who)
}

// IdentityFromContext returns the caller identity, or ingest.Anonymous
func IdentityFromContext(ctx context.Context) ingest.Identity {
	who, _ := ctx.Value(identityKey{}).(ingest.Identity)
	return who
}

// Authenticator resolves the caller identity from a bearer JWT (sub claim)
// or HTTP Basic credentials checked against bcrypt hashes. A request that
// presents neither, or presents invalid credentials, proceeds anonymously;
// the authorization gate decides what anonymous callers may do.
type Authenticator struct {
	jwt    *jwtauth.JWTAuth
	users  map[string][]byte
	logger *slog.Logger
}

// NewAuthenticator creates an authenticator. An empty secret disables
// bearer tokens; users maps user name to bcrypt hash.
func NewAuthenticator(jwtSecret string, users map[string]string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		users:  make(map[string][]byte, len(users)),
		logger: logger,
	}
	if jwtSecret != "" {
		a.jwt = jwtauth.New("HS256", []byte(jwtSecret), nil)
	}
	for name, hash := range users {
		a.users[name] = []byte(hash)
	}
	return a
}

// IssueToken signs a token whose subject is who
func (a *Authenticator) IssueToken(who ingest.Identity, ttl time.Duration) (string, error) {
	if a.jwt == nil {
		return "", errBearerDisabled
	}
	claims := map[string]interface{}{"sub": string(who)}
	jwtauth.SetIssuedNow(claims)
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}
	_, token, err := a.jwt.Encode(claims)
	return token, err
}

// Middleware attaches the resolved identity to the request context
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	resolve := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who := a.identify(r)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), who)))
	})
	if a.jwt == nil {
		return resolve
	}
	return jwtauth.Verify(a.jwt, jwtauth.TokenFromHeader)(resolve)
}

func (a *Authenticator) identify(r *http.Request) ingest.Identity {
	if user, pass, ok := r.BasicAuth(); ok {
		hash, known := a.users[user]
		if !known {
			a.logger.WarnContext(r.Context(), "Unknown basic auth user", "user", user)
			return ingest.Anonymous
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(pass)); err != nil {
			a.logger.WarnContext(r.Context(), "Basic auth password mismatch", "user", user)
			return ingest.Anonymous
		}
		return ingest.Identity(user)
	}

	if a.jwt == nil || !strings.HasPrefix(strings.ToUpper(r.Header.Get("Authorization")), "BEARER ") {
		return ingest.Anonymous
	}
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || token == nil {
		a.logger.WarnContext(r.Context(), "Rejected bearer token", "error", err)
		return ingest.Anonymous
	}
	sub, _ := claims["sub"].(string)
	return ingest.Identity(strings.TrimSpace(sub))
}
