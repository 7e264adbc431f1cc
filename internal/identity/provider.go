// Package identity provides email/password accounts and signed session
// tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"accounting/internal/cache"
	"accounting/internal/core"
	"accounting/internal/log"
	"accounting/internal/store"

	"golang.org/x/crypto/bcrypt"
)

// Errors surfaced to the person at the login form; their text is shown as is.
var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = fmt.Errorf("password should be at least %d characters", minPasswordLen)
	ErrLongPassword       = fmt.Errorf("password should be at most %d bytes", maxPasswordBytes)
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
)

// Session is the result of a successful sign-in.
type Session struct {
	Token     string
	User      core.User
	ExpiresAt time.Time
}

// Config tunes a Provider.
type Config struct {
	Secret     []byte
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// UserCacheSize bounds the resolved-user cache.
	UserCacheSize int
	UserCacheTTL  time.Duration
}

// Provider implements sign-up, sign-in, sign-out and token resolution.
type Provider struct {
	users   store.UserStore
	tokens  *tokens
	cost    int
	cache   *cache.LRUCache[core.User]
	revoked *cache.LRUCache[struct{}]
	logger  *log.Logger
}

func NewProvider(users store.UserStore, cfg Config, logger *log.Logger) (*Provider, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("identity: secret must be at least 16 bytes")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.UserCacheSize <= 0 {
		cfg.UserCacheSize = 1000
	}
	if cfg.UserCacheTTL <= 0 {
		cfg.UserCacheTTL = 5 * time.Minute
	}

	return &Provider{
		users:   users,
		tokens:  &tokens{secret: cfg.Secret, ttl: cfg.SessionTTL, now: time.Now},
		cost:    cfg.BcryptCost,
		cache:   cache.NewLRUCache[core.User](cfg.UserCacheSize, cfg.UserCacheTTL),
		revoked: cache.NewExpiringCache[struct{}](cfg.SessionTTL),
		logger:  log.OrDefault(logger).WithComponent(log.ComponentIdentity),
	}, nil
}

// Caches exposes the provider caches for periodic sweeping.
func (p *Provider) Caches() map[string]cache.Cleaner {
	return map[string]cache.Cleaner{
		"identity_users":   p.cache,
		"identity_revoked": p.revoked,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CreateAccount registers a new email/password account.
func (p *Provider) CreateAccount(ctx context.Context, email, password string) (core.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}
	if len([]rune(password)) < minPasswordLen {
		return core.User{}, ErrWeakPassword
	}
	if len(password) > maxPasswordBytes {
		return core.User{}, ErrLongPassword
	}

	hash, err := hashPassword(password, p.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := p.users.CreateUser(ctx, email, hash)
	if errors.Is(err, store.ErrEmailTaken) {
		return core.User{}, ErrEmailInUse
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	p.logger.InfoContext(ctx, "Account created",
		log.FieldUserID, u.ID, log.FieldOperation, log.OpSignUp)
	return u, nil
}

// SignIn verifies the credentials and issues a session token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if len(password) > maxPasswordBytes {
		return Session{}, ErrInvalidCredentials
	}

	u, hash, err := p.users.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}

	ok, err := checkPassword(hash, password)
	if err != nil {
		return Session{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		p.logger.WarnContext(ctx, "Sign-in rejected", log.FieldUserID, u.ID, log.FieldOperation, log.OpSignIn)
		return Session{}, ErrInvalidCredentials
	}

	token, claims, err := p.tokens.issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	p.cache.Set(u.ID, u)

	p.logger.InfoContext(ctx, "Signed in", log.FieldUserID, u.ID, log.FieldOperation, log.OpSignIn)
	return Session{Token: token, User: u, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// SignOut revokes the token until it would have expired anyway. Signing out
// an invalid or expired token is a no-op.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := p.tokens.parse(token)
	if err != nil {
		return nil
	}
	p.revoked.SetUntil(claims.ID, struct{}{}, claims.ExpiresAt.Time)
	p.logger.InfoContext(ctx, "Signed out", log.FieldUserID, claims.Subject, log.FieldOperation, log.OpSignOut)
	return nil
}

// Resolve maps a session token to its user.
func (p *Provider) Resolve(ctx context.Context, token string) (*core.User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	claims, err := p.tokens.parse(token)
	if err != nil {
		return nil, err
	}
	if _, revoked := p.revoked.Get(claims.ID); revoked {
		return nil, ErrInvalidSession
	}

	if u, ok := p.cache.Get(claims.Subject); ok {
		return &u, nil
	}

	u, err := p.users.UserByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	p.cache.Set(u.ID, u)
	return &u, nil
}
