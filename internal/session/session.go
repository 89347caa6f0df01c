package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession means no authenticated merchant is available. Callers defer
// to the login flow instead of fetching anything.
var ErrNoSession = errors.New("no authenticated session")

// User is the authenticated merchant user.
type User struct {
	ID         string `json:"id"`
	MerchantID string `json:"merchantId"`
	Email      string `json:"email,omitempty"`
	Token      string `json:"token"` // bearer token for the order API
}

// Provider is the session/auth collaborator.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
	IsAuthenticated(ctx context.Context) bool
}

// Static serves a fixed user from configuration. A nil user or one without a
// token is unauthenticated.
type Static struct {
	user *User
}

// NewStatic returns a Static provider.
func NewStatic(user *User) *Static {
	return &Static{user: user}
}

func (s *Static) CurrentUser(ctx context.Context) (*User, error) {
	if s.user == nil || s.user.Token == "" {
		return nil, ErrNoSession
	}
	u := *s.user
	return &u, nil
}

func (s *Static) IsAuthenticated(ctx context.Context) bool {
	_, err := s.CurrentUser(ctx)
	return err == nil
}

// getter is the slice of the redis client used here.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Redis resolves a session token to a user stored as JSON under session:<token>,
// the way the hosted auth service shares sessions with its clients.
type Redis struct {
	client getter
	token  string
}

// NewRedis returns a Redis provider for the session identified by token.
func NewRedis(client getter, token string) *Redis {
	return &Redis{client: client, token: token}
}

// Key returns the redis key for a session token.
func Key(token string) string {
	return "session:" + token
}

func (r *Redis) CurrentUser(ctx context.Context) (*User, error) {
	if r.token == "" {
		return nil, ErrNoSession
	}
	raw, err := r.client.Get(ctx, Key(r.token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if u.Token == "" {
		u.Token = r.token
	}
	if u.MerchantID == "" {
		return nil, ErrNoSession
	}
	return &u, nil
}

func (r *Redis) IsAuthenticated(ctx context.Context) bool {
	_, err := r.CurrentUser(ctx)
	return err == nil
}
