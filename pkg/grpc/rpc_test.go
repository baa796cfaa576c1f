package grpc

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"
)

func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	go s.Serve(addr)
	t.Cleanup(s.Stop)

	// Wait for the listener to come up.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			return addr
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never came up on %s", addr)
	return ""
}

func TestCallRoundTrip(t *testing.T) {
	s := NewServer()
	s.Register("Echo.Upper", func(_ context.Context, params json.RawMessage) (any, error) {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, err
		}
		return map[string]string{"text": strings.ToUpper(in.Text)}, nil
	})
	addr := startServer(t, s)

	c, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var out struct {
		Text string `json:"text"`
	}
	if err := c.Call("Echo.Upper", map[string]string{"text": "fox"}, &out); err != nil {
		t.Fatal(err)
	}
	if out.Text != "FOX" {
		t.Fatalf("got %q, want FOX", out.Text)
	}
}

func TestUnknownMethodErrors(t *testing.T) {
	addr := startServer(t, NewServer())

	c, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	err = c.Call("No.Such", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Fatalf("got %v, want unknown-method error", err)
	}
}

func TestSequentialCallsOnOneConnection(t *testing.T) {
	s := NewServer()
	s.Register("Counter.Next", func(context.Context, json.RawMessage) (any, error) {
		return map[string]bool{"ok": true}, nil
	})
	addr := startServer(t, s)

	c, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for i := 0; i < 10; i++ {
		var out struct {
			OK bool `json:"ok"`
		}
		if err := c.Call("Counter.Next", nil, &out); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if !out.OK {
			t.Fatalf("call %d returned !ok", i)
		}
	}
}
