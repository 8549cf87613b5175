package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/auth"
	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/config"
	"github.com/matheus3301/msgr/internal/session"
)

// cmdRegister creates an account against the configured backend and stores
// the token for the session. The daemon reads it on its next start.
func cmdRegister(sessionName string, args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "account username")
	email := fs.String("email", "", "account email")
	fullName := fs.String("full-name", "", "display name")
	password := fs.String("password", os.Getenv("MSGR_PASSWORD"), "password (default $MSGR_PASSWORD)")
	_ = fs.Parse(args)

	if *username == "" || *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: msgrctl register --username <u> --email <e> [--full-name <n>] --password <p>")
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		fail(fmt.Errorf("load config: %w", err))
	}
	if err := session.EnsureDir(sessionName); err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.Timeout.Duration, zap.NewNop())
	creds, err := auth.Register(ctx, client, session.CredentialsPath(sessionName), backend.RegisterRequest{
		Username:             *username,
		Email:                *email,
		FullName:             *fullName,
		Password:             *password,
		PasswordConfirmation: *password,
	})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Registered %s (id %d) for session %q\n", creds.User.Username, creds.User.ID, sessionName)
}
