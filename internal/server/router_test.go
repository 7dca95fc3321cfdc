package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/internal/engine"
	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

func startRouter(t *testing.T, store docstore.Store) (*Router, string) {
	t.Helper()
	router := NewRouter(store, zerolog.Nop())

	// Let Router.Listen use ":0" to get a random port
	go router.Listen("0")

	var port string
	for i := 0; i < 20; i++ {
		time.Sleep(50 * time.Millisecond)
		router.mu.Lock()
		if router.listener != nil {
			port = fmt.Sprintf("%d", router.listener.Addr().(*net.TCPAddr).Port)
			router.mu.Unlock()
			break
		}
		router.mu.Unlock()
	}
	if port == "" {
		t.Fatalf("Server did not start in time")
	}
	t.Cleanup(router.Stop)
	return router, port
}

func dial(t *testing.T, port string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", "127.0.0.1:"+port)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestRouter_TCP_Commands(t *testing.T) {
	_, port := startRouter(t, engine.NewMemStore(nil, nil))
	conn, reader := dial(t, port)

	// Test PING
	fmt.Fprintf(conn, "PING\n")
	line, _ := reader.ReadString('\n')
	if line != "PONG\n" {
		t.Errorf("Expected PONG, got %q", line)
	}

	// Test SET
	fmt.Fprintf(conn, "SET blogs hello {\"title\": \"Hello world\"}\n")
	line, _ = reader.ReadString('\n')
	if line != "OK\n" {
		t.Errorf("Expected OK, got %q", line)
	}

	// Test GET
	fmt.Fprintf(conn, "GET blogs hello\n")
	line, _ = reader.ReadString('\n')
	if line != "OK {\"title\":\"Hello world\"}\n" {
		t.Errorf("Expected OK {\"title\":\"Hello world\"}, got %q", line)
	}

	// Test COLLECTIONS
	fmt.Fprintf(conn, "COLLECTIONS\n")
	line, _ = reader.ReadString('\n')
	if line != "OK [\"blogs\"]\n" {
		t.Errorf("Expected OK [\"blogs\"], got %q", line)
	}

	// Test DEL
	fmt.Fprintf(conn, "DEL blogs hello\n")
	line, _ = reader.ReadString('\n')
	if line != "OK\n" {
		t.Errorf("Expected OK, got %q", line)
	}

	// Test GET after DEL
	fmt.Fprintf(conn, "GET blogs hello\n")
	line, _ = reader.ReadString('\n')
	if !strings.HasPrefix(line, "ERR not_found ") {
		t.Errorf("Expected ERR not_found, got %q", line)
	}
}

func TestRouter_Query(t *testing.T) {
	store := engine.NewMemStore(nil, nil)
	ctx := context.Background()
	store.Set(ctx, "leads", "a", map[string]any{"createdAt": "2024-01-01"})
	store.Set(ctx, "leads", "b", map[string]any{"createdAt": "2024-02-01"})
	store.EnforceIndexes(engine.Indexes{"leads": {"createdAt"}})

	_, port := startRouter(t, store)
	conn, reader := dial(t, port)

	fmt.Fprintf(conn, "QUERY leads {\"order_by\":\"createdAt\",\"direction\":1}\n")
	line, _ := reader.ReadString('\n')
	want := "OK [{\"id\":\"b\",\"data\":{\"createdAt\":\"2024-02-01\"}},{\"id\":\"a\",\"data\":{\"createdAt\":\"2024-01-01\"}}]\n"
	if line != want {
		t.Errorf("Expected %q, got %q", want, line)
	}

	// A bare QUERY reads the whole collection
	fmt.Fprintf(conn, "QUERY leads\n")
	line, _ = reader.ReadString('\n')
	if !strings.HasPrefix(line, "OK [") {
		t.Errorf("Expected OK list, got %q", line)
	}

	fmt.Fprintf(conn, "QUERY leads {\"order_by\":\"name\"}\n")
	line, _ = reader.ReadString('\n')
	if !strings.HasPrefix(line, "ERR missing_index ") {
		t.Errorf("Expected ERR missing_index, got %q", line)
	}
}

func TestRouter_ConcurrentConnections(t *testing.T) {
	_, port := startRouter(t, engine.NewMemStore(nil, nil))

	// Open more connections than the semaphore admits
	conns := make([]net.Conn, 0)
	for i := 0; i < 110; i++ {
		conn, err := net.DialTimeout("tcp", "127.0.0.1:"+port, 100*time.Millisecond)
		if err == nil {
			conns = append(conns, conn)
		}
	}

	for _, c := range conns {
		c.Close()
	}
}

func TestRouter_MalformedCommands(t *testing.T) {
	_, port := startRouter(t, engine.NewMemStore(nil, nil))
	conn, reader := dial(t, port)

	tests := []struct {
		cmd  string
		want string
	}{
		{"SET blogs hello", "ERR invalid usage: SET"},
		{"SET blogs hello {invalid}", "ERR invalid invalid json document"},
		{"GET blogs", "ERR invalid usage: GET"},
		{"QUERY leads {nope", "ERR invalid invalid json query"},
		{"FROB", "ERR invalid unknown command FROB"},
		{"GET bad/name x", "ERR invalid "},
	}
	for _, tt := range tests {
		fmt.Fprintf(conn, "%s\n", tt.cmd)
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("%s: read failed: %v", tt.cmd, err)
		}
		if !strings.HasPrefix(line, tt.want) {
			t.Errorf("%s: expected prefix %q, got %q", tt.cmd, tt.want, line)
		}
	}

	// The connection survives bad input
	fmt.Fprintf(conn, "PING\n")
	line, _ := reader.ReadString('\n')
	if line != "PONG\n" {
		t.Error("Did not receive PONG")
	}
}

func TestRouter_Quit(t *testing.T) {
	_, port := startRouter(t, engine.NewMemStore(nil, nil))
	conn, reader := dial(t, port)

	fmt.Fprintf(conn, "QUIT\n")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := reader.ReadString('\n'); err == nil {
		t.Error("Expected the server to close the connection")
	}
}

func TestErrorCodeRoundTrip(t *testing.T) {
	for _, sentinel := range []error{docstore.ErrNotFound, docstore.ErrMissingIndex, docstore.ErrInvalidQuery} {
		wrapped := fmt.Errorf("ctx: %w", sentinel)
		decoded := DecodeError(ErrorCode(wrapped), wrapped.Error())
		if !errors.Is(decoded, sentinel) {
			t.Errorf("round trip lost %v: got %v", sentinel, decoded)
		}
	}
	if ErrorCode(errors.New("disk full")) != CodeInternal {
		t.Error("unknown errors should map to internal")
	}
}
