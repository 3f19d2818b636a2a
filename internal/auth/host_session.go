package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// HostAudience is the audience claim of host session tokens
	HostAudience = "qode-host"
	issuer       = "qode"

	// DefaultSessionTTL is used when no TTL is configured
	DefaultSessionTTL = 12 * time.Hour
)

// ErrTokenExpired is wrapped into ErrUnauthorized for expired sessions
var ErrTokenExpired = errors.New("host session expired")

// HostSession is a signed token granting host rights over one queue
type HostSession struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// Credentials are what a caller presented to prove host authority
type Credentials struct {
	HostToken   string
	BearerToken string
}

// Empty reports whether no credential was presented
func (c Credentials) Empty() bool {
	return c.HostToken == "" && c.BearerToken == ""
}

// BearerFromHeader extracts the token of an "Authorization: Bearer" header
func BearerFromHeader(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// SessionManager issues and verifies host session tokens (HS256)
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager creates a SessionManager signing with secret
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a session for queueID
func (m *SessionManager) Issue(queueID string) (*HostSession, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   queueID,
		Audience:  jwt.ClaimStrings{HostAudience},
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.New().String(),
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign host session: %w", err)
	}

	return &HostSession{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
		ExpiresIn: int64(m.ttl.Seconds()),
	}, nil
}

// Verify checks the token is valid for queueID
func (m *SessionManager) Verify(tokenString, queueID string) error {
	_, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(HostAudience),
		jwt.WithSubject(queueID),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrTokenExpired)
		}
		return domain.ErrUnauthorized
	}
	return nil
}

// Authorizer decides whether credentials grant host rights over a queue
type Authorizer struct {
	sessions *SessionManager
}

// NewAuthorizer creates an Authorizer. A nil sessions disables bearer tokens.
func NewAuthorizer(sessions *SessionManager) *Authorizer {
	return &Authorizer{sessions: sessions}
}

// Authorize accepts the queue's secret host token or a valid session token
func (a *Authorizer) Authorize(queue *domain.Queue, creds Credentials) error {
	if creds.HostToken != "" {
		if queue.HostSecretMatches(creds.HostToken) {
			return nil
		}
		return domain.ErrUnauthorized
	}
	if creds.BearerToken != "" && a.sessions != nil {
		return a.sessions.Verify(creds.BearerToken, queue.ID)
	}
	return domain.ErrUnauthorized
}

// IssueSession signs a host session for the queue
func (a *Authorizer) IssueSession(queue *domain.Queue) (*HostSession, error) {
	if a.sessions == nil {
		return nil, errors.New("host sessions are disabled")
	}
	return a.sessions.Issue(queue.ID)
}
