package identity

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"accounting/internal/core"
	"accounting/internal/log"
	"accounting/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(memory.New(), Config{
		Secret:     []byte("test-secret-0123456789"),
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, log.Discard())
	require.NoError(t, err)
	return p
}

func TestNewProvider_ShortSecret(t *testing.T) {
	_, err := NewProvider(memory.New(), Config{Secret: []byte("short")}, nil)
	assert.Error(t, err)
}

func TestProvider_CreateAccount(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"ok", "Erin@Example.com", "secret1", nil},
		{"duplicate", "erin@example.com", "secret1", ErrEmailInUse},
		{"bad email", "not-an-email", "secret1", ErrInvalidEmail},
		{"display name", "Erin <erin@example.com>", "secret1", ErrInvalidEmail},
		{"no tld", "erin@localhost", "secret1", ErrInvalidEmail},
		{"short password", "frank@example.com", "12345", ErrWeakPassword},
		{"password over bcrypt limit", "frank@example.com", strings.Repeat("p", 73), ErrLongPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := p.CreateAccount(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "erin@example.com", u.Email)
		})
	}
}

func TestProvider_SignInResolveSignOut(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	created, err := p.CreateAccount(ctx, "gina@example.com", "hunter22")
	require.NoError(t, err)

	_, err = p.SignIn(ctx, "gina@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignIn(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := p.SignIn(ctx, " GINA@example.com ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.ID, sess.User.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	u, err := p.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
	assert.Equal(t, "gina@example.com", u.Email)

	require.NoError(t, p.SignOut(ctx, sess.Token))
	_, err = p.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	assert.NoError(t, p.SignOut(ctx, "garbage"))
}

func TestProvider_ResolveRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	_, err := p.CreateAccount(ctx, "hal@example.com", "password")
	require.NoError(t, err)
	sess, err := p.SignIn(ctx, "hal@example.com", "password")
	require.NoError(t, err)

	_, err = p.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = p.Resolve(ctx, sess.Token+"x")
	assert.ErrorIs(t, err, ErrInvalidSession)

	other, err := NewProvider(memory.New(), Config{Secret: []byte("another-secret-abcdefgh")}, nil)
	require.NoError(t, err)
	_, err = other.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrInvalidSession, "token signed with a different secret")

	p.tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = p.Resolve(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestProvider_ResolveUnknownUser(t *testing.T) {
	p := newProvider(t)
	tok, _, err := p.tokens.issue("ghost", "ghost@example.com")
	require.NoError(t, err)

	_, err = p.Resolve(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestContextUser(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, UserFrom(ctx))

	u := &core.User{ID: "u1"}
	assert.Same(t, u, UserFrom(WithUser(ctx, u)))
}

func TestProvider_PasswordAtBcryptLimit(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	pw := strings.Repeat("p", 72)
	_, err := p.CreateAccount(ctx, "hal@example.com", pw)
	require.NoError(t, err)

	_, err = p.SignIn(ctx, "hal@example.com", pw)
	require.NoError(t, err)

	_, err = p.SignIn(ctx, "hal@example.com", pw+"x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestProvider_RevocationsSurviveManySignOuts(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	_, err := p.CreateAccount(ctx, "ivy@example.com", "hunter22")
	require.NoError(t, err)

	first, err := p.SignIn(ctx, "ivy@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx, first.Token))

	for i := 0; i < 150_000; i++ {
		p.revoked.Set(fmt.Sprintf("other-%d", i), struct{}{})
	}

	_, err = p.Resolve(ctx, first.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}
