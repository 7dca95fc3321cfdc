// Package server exposes a document store over a line-oriented TCP protocol.
//
//	GET <collection> <id>            -> OK <document json>
//	SET <collection> <id> <json>     -> OK
//	DEL <collection> <id>            -> OK
//	QUERY <collection> <query json>  -> OK [<document>, ...]
//	COLLECTIONS                      -> OK [<name>, ...]
//	PING                             -> PONG
//	QUIT                             closes the connection
//
// Failures reply "ERR <code> <message>".
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

const (
	maxConnections = 100
	commandTimeout = 30 * time.Second
)

// Connection limits enforced by the daemon. Clients that keep connections
// open must redial before either is reached.
const (
	IdleTimeout  = 30 * time.Second
	ConnLifetime = 5 * time.Minute
)

type Router struct {
	store    docstore.Store
	cert     *tls.Certificate
	log      zerolog.Logger
	idle     time.Duration
	lifetime time.Duration

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

func NewRouter(s docstore.Store, log zerolog.Logger) *Router {
	return &Router{
		store:    s,
		log:      log.With().Str("component", "router").Logger(),
		idle:     IdleTimeout,
		lifetime: ConnLifetime,
	}
}

// SetTimeouts overrides how long a connection may wait between commands and
// how long it may live in total.
func (r *Router) SetTimeouts(idle, lifetime time.Duration) {
	r.idle = idle
	r.lifetime = lifetime
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound address once Listen has started, or nil.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	semaphore := make(chan struct{}, maxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			stopped := r.stopped
			r.mu.Unlock()
			if stopped || errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.HandleConnection(c)
		}(conn)
	}
}

// Stop closes the listener. Connections in flight finish their current command.
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.listener != nil {
		r.listener.Close()
	}
}

// HandleConnection serves commands from conn until the client quits or the
// connection fails.
func (r *Router) HandleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)
	expires := time.Now().Add(r.lifetime)

	for {
		// The next command must arrive within the idle timeout and before
		// the connection expires.
		deadline := time.Now().Add(r.idle)
		if expires.Before(deadline) {
			deadline = expires
		}
		conn.SetReadDeadline(deadline)

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		command, rest, _ := strings.Cut(line, " ")
		if strings.ToUpper(command) == "QUIT" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		reply := r.dispatch(ctx, strings.ToUpper(command), strings.TrimSpace(rest))
		cancel()

		conn.SetWriteDeadline(time.Now().Add(commandTimeout))
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}
}

func (r *Router) dispatch(ctx context.Context, command, rest string) string {
	switch command {
	case "PING":
		return "PONG"

	case "GET":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return usage("GET <collection> <id>")
		}
		doc, err := r.store.Get(ctx, parts[0], parts[1])
		if err != nil {
			return r.fail(command, err)
		}
		return ok(doc)

	case "SET":
		// The document is everything after the id
		collection, tail, _ := strings.Cut(rest, " ")
		id, body, _ := strings.Cut(strings.TrimSpace(tail), " ")
		if collection == "" || id == "" || strings.TrimSpace(body) == "" {
			return usage("SET <collection> <id> <json>")
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return "ERR " + CodeInvalid + " invalid json document"
		}
		if err := r.store.Set(ctx, collection, id, doc); err != nil {
			return r.fail(command, err)
		}
		return "OK"

	case "DEL":
		parts := strings.Fields(rest)
		if len(parts) != 2 {
			return usage("DEL <collection> <id>")
		}
		if err := r.store.Delete(ctx, parts[0], parts[1]); err != nil {
			return r.fail(command, err)
		}
		return "OK"

	case "QUERY":
		collection, body, _ := strings.Cut(rest, " ")
		if collection == "" {
			return usage("QUERY <collection> [json]")
		}
		var q docstore.Query
		if body = strings.TrimSpace(body); body != "" {
			if err := json.Unmarshal([]byte(body), &q); err != nil {
				return "ERR " + CodeInvalid + " invalid json query"
			}
		}
		docs, err := r.store.Query(ctx, collection, q)
		if err != nil {
			return r.fail(command, err)
		}
		return ok(docs)

	case "COLLECTIONS":
		list, err := r.store.Collections(ctx)
		if err != nil {
			return r.fail(command, err)
		}
		return ok(list)

	default:
		return "ERR " + CodeInvalid + " unknown command " + command
	}
}

func (r *Router) fail(command string, err error) string {
	code := ErrorCode(err)
	if code == CodeInternal {
		r.log.Error().Err(err).Str("command", command).Msg("store failure")
	}
	return "ERR " + code + " " + oneLine(err.Error())
}

func ok(v any) string {
	res, err := json.Marshal(v)
	if err != nil {
		return "ERR " + CodeInternal + " internal error"
	}
	return "OK " + string(res)
}

func usage(form string) string {
	return "ERR " + CodeInvalid + " usage: " + form
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
