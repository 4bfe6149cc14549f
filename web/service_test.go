package web

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestServiceServesAndStops(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	s := NewService(context.Background(), "127.0.0.1:0", mux)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err := http.Get("http://" + s.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if string(body) != "pong" {
		t.Errorf("body = %q", body)
	}

	s.Stop()
	select {
	case err := <-s.Done():
		if err != nil {
			t.Errorf("done err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	if err := s.Start(); err == nil {
		t.Error("restart after stop should fail")
	}
}

func TestServiceBindError(t *testing.T) {
	s := NewService(context.Background(), "256.0.0.1:99999", http.NewServeMux())
	if err := s.Start(); err == nil {
		t.Fatal("expected bind error")
	}
}
