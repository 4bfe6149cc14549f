package uds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func startService(t *testing.T, opts ...func(*Service)) *Service {
	t.Helper()
	// unix socket paths are length limited; t.TempDir can be too deep
	dir, err := os.MkdirTemp("", "uds")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	cmds := map[string]CmdHnd{
		"echo": {Desc: "echo args", Usage: "echo <args...>", Fn: func(ctx context.Context, args []string, w io.Writer) error {
			_, err := fmt.Fprintln(w, strings.Join(args, " "))
			return err
		}},
		"boom": {Desc: "always fails", Usage: "boom", Fn: func(ctx context.Context, args []string, w io.Writer) error {
			return errors.New("kaput")
		}},
		"slow": {Desc: "waits for its context", Usage: "slow", Fn: func(ctx context.Context, args []string, w io.Writer) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	}
	s := NewService(context.Background(), filepath.Join(dir, "admin.sock"), cmds)
	for _, opt := range opts {
		opt(s)
	}
	if err = s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		s.Stop()
		select {
		case <-s.Done():
		case <-time.After(2 * time.Second):
			t.Error("service did not stop")
		}
	})
	return s
}

func roundTrip(t *testing.T, s *Service, line string) string {
	t.Helper()
	c, err := net.Dial("unix", s.SocketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err = fmt.Fprintf(c, "%s\n", line); err != nil {
		t.Fatal(err)
	}
	out, _ := io.ReadAll(c)
	return string(out)
}

func TestServiceCommands(t *testing.T) {
	s := startService(t)
	if got := roundTrip(t, s, "echo job cert_job_1"); got != "job cert_job_1\n" {
		t.Errorf("echo = %q", got)
	}
	if got := roundTrip(t, s, "boom"); !strings.Contains(got, "error: kaput") {
		t.Errorf("boom = %q", got)
	}
	st, err := os.Stat(s.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Errorf("socket mode = %v", st.Mode().Perm())
	}
}

func TestServiceHelpAndUnknown(t *testing.T) {
	s := startService(t)
	c, err := net.Dial("unix", s.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))
	_, _ = fmt.Fprint(c, "nope\nhelp\nquit\n")
	out, _ := io.ReadAll(c)
	got := string(out)
	if !strings.Contains(got, "unknown command: nope") {
		t.Errorf("output = %q", got)
	}
	if strings.Index(got, "boom") > strings.Index(got, "echo <args...>") {
		t.Errorf("help not sorted: %q", got)
	}
}

func TestCommandTimeout(t *testing.T) {
	s := startService(t, func(s *Service) { s.CommandTimeout = 50 * time.Millisecond })
	if got := roundTrip(t, s, "slow"); !strings.Contains(got, "error: context deadline exceeded") {
		t.Errorf("slow = %q", got)
	}
}
