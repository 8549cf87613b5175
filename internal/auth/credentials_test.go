package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/model"
)

func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestNewCredentialsOpaqueToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := NewCredentials("12|abcdef", model.User{ID: 3}, now)
	if !c.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v, want now+7d", c.ExpiresAt)
	}
	if c.User.ID != 3 {
		t.Errorf("user id = %d", c.User.ID)
	}
}

func TestNewCredentialsFromJWT(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signed(t, &Claims{
		UserID:           7,
		Username:         "bob",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	})

	c := NewCredentials(tok, model.User{}, time.Now())
	if !c.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, exp)
	}
	if c.User.ID != 7 || c.User.Username != "bob" {
		t.Errorf("user = %+v", c.User)
	}
}

func TestNewCredentialsSubjectFallback(t *testing.T) {
	tok := signed(t, jwt.RegisteredClaims{Subject: "11"})
	c := NewCredentials(tok, model.User{}, time.Now())
	if c.User.ID != 11 {
		t.Errorf("user id = %d, want 11", c.User.ID)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s", "credentials.toml")

	if _, err := Load(path); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("Load() missing = %v, want ErrNoCredentials", err)
	}

	in := &Credentials{Token: "tok", User: model.User{ID: 1, Username: "me", FullName: "Me"}, ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	if err := Save(path, in); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	out, err := LoadValid(path, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if out.Token != "tok" || out.User != in.User || !out.ExpiresAt.Equal(in.ExpiresAt) {
		t.Errorf("loaded = %+v, want %+v", out, in)
	}

	if _, err := LoadValid(path, in.ExpiresAt.Add(time.Second)); !errors.Is(err, ErrExpired) {
		t.Errorf("LoadValid() after expiry = %v, want ErrExpired", err)
	}

	if err := Clear(path); err != nil {
		t.Fatal(err)
	}
	if err := Clear(path); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

type fakeRegistrar struct {
	resp *backend.RegisterResponse
	err  error
}

func (f *fakeRegistrar) Register(ctx context.Context, req backend.RegisterRequest) (*backend.RegisterResponse, error) {
	return f.resp, f.err
}

func TestRegisterStoresToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	r := &fakeRegistrar{resp: &backend.RegisterResponse{Token: "5|xyz", User: model.User{ID: 5, Username: "new"}}}

	c, err := Register(context.Background(), r, path, backend.RegisterRequest{Username: "new"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Token != "5|xyz" {
		t.Errorf("token = %q", c.Token)
	}
	stored, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if stored.User.ID != 5 {
		t.Errorf("stored user = %+v", stored.User)
	}
}

func TestRegisterFailureStoresNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	r := &fakeRegistrar{err: &backend.StatusError{Status: 422, Body: []byte(`{}`)}}

	if _, err := Register(context.Background(), r, path, backend.RegisterRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("credentials written on failure: %v", err)
	}
}
