// Package sdk provides the client-side access to the CRM document store.
// It supports remote connections to docstored via TCP/TLS and selects among
// the embedded, remote, Firestore and MongoDB backends from configuration.
package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/trendingmotion/motion-crm/internal/server"
	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

const defaultCommandTimeout = 30 * time.Second

// A connection is redialed before it gets close to the daemon's idle timeout
// or lifetime, so the daemon never closes it under a command in flight.
const (
	defaultMaxIdle = server.IdleTimeout - 5*time.Second
	defaultMaxAge  = server.ConnLifetime - 30*time.Second
)

var _ docstore.Store = (*Client)(nil)

// Client is a remote client for the docstored daemon.
// It implements the docstore.Store interface.
type Client struct {
	addr   string
	useTLS bool
	conn   net.Conn
	reader *bufio.Reader
	closed bool
	mu     sync.Mutex // Protects concurrent access to the connection

	dialedAt time.Time
	lastUsed time.Time
	maxIdle  time.Duration
	maxAge   time.Duration
}

// Connect establishes a connection to a remote docstored daemon. With useTLS
// the daemon's self-signed certificate is accepted without verification.
func Connect(addr string, useTLS bool) (*Client, error) {
	c := &Client{addr: addr, useTLS: useTLS, maxIdle: defaultMaxIdle, maxAge: defaultMaxAge}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	if c.useTLS {
		config := &tls.Config{
			InsecureSkipVerify: true, // The daemon uses a self-signed cert for internal traffic
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	} else {
		conn, err = dialer.Dial("tcp", c.addr)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.dialedAt = time.Now()
	c.lastUsed = c.dialedAt
	return nil
}

// SetConnLimits sets how long a connection may stay idle and how old it may
// get before the next command redials. Both must stay below the daemon's
// timeouts.
func (c *Client) SetConnLimits(maxIdle, maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxIdle = maxIdle
	c.maxAge = maxAge
}

func (c *Client) stale(now time.Time) bool {
	return now.Sub(c.lastUsed) >= c.maxIdle || now.Sub(c.dialedAt) >= c.maxAge
}

// roundTrip sends one command and returns the payload of its reply. A stale
// connection is redialed before writing. A broken connection is dropped and
// re-dialed on the next call; the failed command itself is never re-sent.
func (c *Client) roundTrip(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", docstore.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.conn != nil && c.stale(time.Now()) {
		c.drop()
	}
	if c.conn == nil {
		if err := c.reconnect(); err != nil {
			return "", err
		}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCommandTimeout)
	}
	c.conn.SetDeadline(deadline)

	if _, err := fmt.Fprint(c.conn, cmd+"\n"); err != nil {
		c.drop()
		return "", fmt.Errorf("send command: %w", err)
	}
	resp, err := c.reader.ReadString('\n')
	if err != nil {
		c.drop()
		return "", fmt.Errorf("read reply: %w", err)
	}
	c.lastUsed = time.Now()

	return parseReply(strings.TrimSpace(resp))
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func parseReply(resp string) (string, error) {
	switch {
	case resp == "OK" || resp == "PONG":
		return "", nil
	case strings.HasPrefix(resp, "OK "):
		return strings.TrimPrefix(resp, "OK "), nil
	case strings.HasPrefix(resp, "ERR "):
		code, msg, _ := strings.Cut(strings.TrimPrefix(resp, "ERR "), " ")
		return "", server.DecodeError(code, msg)
	default:
		return "", fmt.Errorf("unexpected reply %q", resp)
	}
}

func (c *Client) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := checkKeys(collection, id); err != nil {
		return nil, err
	}
	payload, err := c.roundTrip(ctx, fmt.Sprintf("GET %s %s", collection, id))
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func (c *Client) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := checkKeys(collection, id); err != nil {
		return err
	}
	if data == nil {
		data = map[string]any{}
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = c.roundTrip(ctx, fmt.Sprintf("SET %s %s %s", collection, id, jsonData))
	return err
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := checkKeys(collection, id); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, fmt.Sprintf("DEL %s %s", collection, id))
	return err
}

func (c *Client) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidateKey(collection); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	jsonQuery, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	payload, err := c.roundTrip(ctx, fmt.Sprintf("QUERY %s %s", collection, jsonQuery))
	if err != nil {
		return nil, err
	}
	var docs []docstore.Document
	if err := json.Unmarshal([]byte(payload), &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

func (c *Client) Collections(ctx context.Context) ([]string, error) {
	payload, err := c.roundTrip(ctx, "COLLECTIONS")
	if err != nil {
		return nil, err
	}
	var list []string
	err = json.Unmarshal([]byte(payload), &list)
	return list, err
}

// Ping checks that the daemon is answering.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, "PING")
	return err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func checkKeys(collection, id string) error {
	if err := docstore.ValidateKey(collection); err != nil {
		return err
	}
	return docstore.ValidateKey(id)
}
