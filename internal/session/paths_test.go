package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MSGR_HOME", home)

	got := Dir("main")
	want := filepath.Join(home, "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestDefaultBaseDir(t *testing.T) {
	t.Setenv("MSGR_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := BaseDir(), filepath.Join(home, ".msgr"); got != want {
		t.Errorf("BaseDir() = %q, want %q", got, want)
	}
}

func TestSessionFiles(t *testing.T) {
	tests := []struct {
		name   string
		got    string
		suffix string
	}{
		{"socket", SocketPath("test"), filepath.Join("sessions", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join("sessions", "test", "LOCK")},
		{"credentials", CredentialsPath("test"), filepath.Join("sessions", "test", "credentials.toml")},
		{"cache", CacheDBPath("test"), filepath.Join("sessions", "test", "cache.db")},
		{"log", LogPath("test"), filepath.Join("sessions", "test", "logs", "msgrd.log")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasSuffix(tt.got, tt.suffix) {
				t.Errorf("%s path = %q, want suffix %q", tt.name, tt.got, tt.suffix)
			}
		})
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv("MSGR_HOME", t.TempDir())

	if err := EnsureDir("work"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(LogDir("work"))
	if err != nil {
		t.Fatalf("log dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}

	// Directories with invalid names are not sessions.
	if err := os.MkdirAll(filepath.Join(BaseDir(), "sessions", "Bad Name"), 0700); err != nil {
		t.Fatal(err)
	}

	names, err := List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 1 || names[0] != "work" {
		t.Errorf("List() = %v, want [work]", names)
	}
}

func TestListWithoutSessions(t *testing.T) {
	t.Setenv("MSGR_HOME", t.TempDir())
	names, err := List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List() = %v, want empty", names)
	}
}
