package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookie  = "session"
	adminSubject   = "admin"
	sessionIssuer  = "gallery"
	sessionTypeKey = "session"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Session is the decoded administrator session.
type Session struct {
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"-"`
}

type sessionClaims struct {
	Email string `json:"email"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// Gate authenticates the single administrator and authorizes requests.
type Gate struct {
	identifier   string
	secret       string
	secretHash   []byte
	signingKey   []byte
	ttl          time.Duration
	failureDelay time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration)
}

func newGate(cfg Config) *Gate {
	g := &Gate{
		identifier:   cfg.AdminEmail,
		secret:       cfg.AdminPassword,
		signingKey:   []byte(cfg.SessionSecret),
		ttl:          cfg.SessionTTL,
		failureDelay: cfg.LoginFailureDelay,
		now:          time.Now,
		sleep:        sleepCtx,
	}
	if cfg.AdminPasswordHash != "" {
		g.secretHash = []byte(cfg.AdminPasswordHash)
	}
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (g *Gate) matches(identifier, secret string) bool {
	if g.identifier == "" {
		return false
	}
	idOK := subtle.ConstantTimeCompare([]byte(identifier), []byte(g.identifier)) == 1
	var secretOK bool
	if g.secretHash != nil {
		secretOK = bcrypt.CompareHashAndPassword(g.secretHash, []byte(secret)) == nil
	} else {
		secretOK = g.secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(g.secret)) == 1
	}
	return idOK && secretOK
}

// Authenticate exchanges credentials for a signed session. A mismatch is
// reported only after the failure delay.
func (g *Gate) Authenticate(ctx context.Context, identifier, secret string) (Session, error) {
	if !g.matches(identifier, secret) {
		g.sleep(ctx, g.failureDelay)
		return Session{}, ErrInvalidCredentials
	}
	now := g.now().UTC().Truncate(time.Second)
	claims := sessionClaims{
		Email: g.identifier,
		Type:  sessionTypeKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   adminSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.signingKey)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{
		Subject:   adminSubject,
		Email:     g.identifier,
		IssuedAt:  now,
		ExpiresAt: now.Add(g.ttl),
		Token:     token,
	}, nil
}

// Authorize validates a session token.
func (g *Gate) Authorize(token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthorized
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return g.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Type != sessionTypeKey || claims.Subject != adminSubject {
		return Session{}, fmt.Errorf("%w: unexpected claims", ErrUnauthorized)
	}
	s := Session{Subject: claims.Subject, Email: claims.Email, Token: token}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	s.ExpiresAt = claims.ExpiresAt.Time
	return s, nil
}

// tokenFromRequest reads the bearer header, falling back to the session cookie.
func tokenFromRequest(r *http.Request) string {
	if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// sessionFromRequest reports whether the request carries a valid session.
func (g *Gate) sessionFromRequest(r *http.Request) (Session, bool) {
	s, err := g.Authorize(tokenFromRequest(r))
	return s, err == nil
}

// requireSession rejects requests without a valid session before they reach
// any handler that mutates state.
func (g *Gate) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.sessionFromRequest(r); !ok {
			writeError(w, ErrUnauthorized, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionCookieFor(s Session, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func clearedSessionCookie() *http.Cookie {
	return &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true}
}
