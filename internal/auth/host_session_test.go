package auth

import (
	"testing"
	"time"

	"github.com/YogevSaadon/Qode/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *domain.Queue {
	t.Helper()
	q, err := domain.NewQueue("Bakery", time.Now())
	require.NoError(t, err)
	return q
}

func TestSessionManager_IssueAndVerify(t *testing.T) {
	m := NewSessionManager("test-secret", time.Hour)

	session, err := m.Issue("queue-1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.Equal(t, int64(3600), session.ExpiresIn)

	assert.NoError(t, m.Verify(session.Token, "queue-1"))
	assert.ErrorIs(t, m.Verify(session.Token, "queue-2"), domain.ErrUnauthorized)
}

func TestSessionManager_RejectsExpired(t *testing.T) {
	m := NewSessionManager("test-secret", time.Minute)
	start := time.Now()
	m.now = func() time.Time { return start }

	session, err := m.Issue("queue-1")
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Minute) }
	err = m.Verify(session.Token, "queue-1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestSessionManager_RejectsForeignTokens(t *testing.T) {
	m := NewSessionManager("test-secret", time.Hour)

	other := NewSessionManager("other-secret", time.Hour)
	foreign, err := other.Issue("queue-1")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Verify(foreign.Token, "queue-1"), domain.ErrUnauthorized)

	wrongAudience := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "queue-1",
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := wrongAudience.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	assert.ErrorIs(t, m.Verify(signed, "queue-1"), domain.ErrUnauthorized)

	assert.ErrorIs(t, m.Verify("garbage", "queue-1"), domain.ErrUnauthorized)
}

func TestAuthorizer(t *testing.T) {
	q := newTestQueue(t)
	sessions := NewSessionManager("test-secret", time.Hour)
	a := NewAuthorizer(sessions)

	session, err := a.IssueSession(q)
	require.NoError(t, err)

	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"host token", Credentials{HostToken: q.HostSecret}, false},
		{"wrong host token", Credentials{HostToken: "nope"}, true},
		{"wrong host token wins over valid bearer", Credentials{HostToken: "nope", BearerToken: session.Token}, true},
		{"bearer", Credentials{BearerToken: session.Token}, false},
		{"bad bearer", Credentials{BearerToken: "garbage"}, true},
		{"nothing", Credentials{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.Authorize(q, tt.creds)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnauthorized)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthorizer_WithoutSessions(t *testing.T) {
	q := newTestQueue(t)
	a := NewAuthorizer(nil)

	_, err := a.IssueSession(q)
	assert.Error(t, err)
	assert.ErrorIs(t, a.Authorize(q, Credentials{BearerToken: "anything"}), domain.ErrUnauthorized)
	assert.NoError(t, a.Authorize(q, Credentials{HostToken: q.HostSecret}))
}

func TestBearerFromHeader(t *testing.T) {
	assert.Equal(t, "abc", BearerFromHeader("Bearer abc"))
	assert.Equal(t, "abc", BearerFromHeader("bearer abc"))
	assert.Equal(t, "", BearerFromHeader("Basic abc"))
	assert.Equal(t, "", BearerFromHeader("Bearer "))
	assert.Equal(t, "", BearerFromHeader(""))
}
