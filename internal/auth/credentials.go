package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang-jwt/jwt/v4"

	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/model"
)

// DefaultTTL is the local lifetime of a token that carries no expiry claim.
const DefaultTTL = 7 * 24 * time.Hour

var (
	ErrNoCredentials = errors.New("no credentials stored")
	ErrExpired       = errors.New("credentials expired")
)

// Credentials is the persisted login of one session.
type Credentials struct {
	Token     string     `toml:"token"`
	User      model.User `toml:"user"`
	ExpiresAt time.Time  `toml:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Claims are the token claims we read; the signature is not verified since
// only the backend can do that.
type Claims struct {
	UserID   flexClaim `json:"user_id"`
	Username string    `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// flexClaim accepts a numeric or string id claim.
type flexClaim int64

func (f *flexClaim) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("user_id claim: %w", err)
	}
	*f = flexClaim(n)
	return nil
}

// ParseClaims decodes token as a JWT without verifying it. Opaque tokens
// (e.g. Sanctum "id|secret") return an error.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// NewCredentials derives expiry and user id from the token when it is a JWT,
// falling back to now+DefaultTTL.
func NewCredentials(token string, user model.User, now time.Time) *Credentials {
	c := &Credentials{Token: token, User: user, ExpiresAt: now.Add(DefaultTTL)}
	claims, err := ParseClaims(token)
	if err != nil {
		return c
	}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	if c.User.ID == 0 {
		if claims.UserID != 0 {
			c.User.ID = int64(claims.UserID)
		} else if id, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			c.User.ID = id
		}
	}
	if c.User.Username == "" {
		c.User.Username = claims.Username
	}
	return c
}

// Load reads credentials from path. A missing file is ErrNoCredentials.
func Load(path string) (*Credentials, error) {
	var c Credentials
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	if c.Token == "" {
		return nil, ErrNoCredentials
	}
	return &c, nil
}

// LoadValid is Load plus an expiry check.
func LoadValid(path string, now time.Time) (*Credentials, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if c.Expired(now) {
		return nil, ErrExpired
	}
	return c, nil
}

// Save writes credentials to path with 0600 permissions.
func Save(path string, c *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode credentials: %w", err)
	}
	return f.Close()
}

// Clear removes stored credentials. Missing files are not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Registrar is the backend call used by Register.
type Registrar interface {
	Register(ctx context.Context, req backend.RegisterRequest) (*backend.RegisterResponse, error)
}

// Register creates an account and stores the issued token at path.
func Register(ctx context.Context, r Registrar, path string, req backend.RegisterRequest) (*Credentials, error) {
	resp, err := r.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	c := NewCredentials(resp.Token, resp.User, time.Now())
	if err := Save(path, c); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	return c, nil
}
