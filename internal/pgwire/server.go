// Package pgwire serves DDL statements over the PostgreSQL simple-query
// protocol.
package pgwire

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"streamddl/internal/domain"
)

const (
	protocolVersion3  int32 = 196608
	sslRequestCode    int32 = 80877103
	cancelRequestCode int32 = 80877102
)

// Executor runs one statement for a session.
type Executor func(ctx context.Context, sess domain.Session, sql string) (*domain.DdlResult, error)

// Config configures a Server.
type Config struct {
	Addr   string
	Logger *slog.Logger
	// Execute runs every simple query.
	Execute Executor
	// DefaultSchema qualifies names when the client names no database or
	// search_path.
	DefaultSchema domain.SchemaName
	// StatementRate limits statements per second on each connection. Zero
	// disables the limit.
	StatementRate  float64
	StatementBurst int
}

// Server is a PostgreSQL wire listener that accepts one DDL statement per
// simple query.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	wg      sync.WaitGroup
	runMu   sync.Mutex
	running map[backendKey]context.CancelFunc
}

type backendKey struct {
	processID int32
	secretKey int32
}

// NewServer creates a Server. It does not listen until Start.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Execute == nil {
		cfg.Execute = func(context.Context, domain.Session, string) (*domain.DdlResult, error) {
			return nil, domain.ErrInternalExecution("pgwire executor is not configured")
		}
	}
	if cfg.StatementBurst <= 0 {
		cfg.StatementBurst = 1
	}
	return &Server{cfg: cfg, logger: cfg.Logger, running: make(map[backendKey]context.CancelFunc)}
}

// Start listens on the configured address and serves connections in the
// background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return fmt.Errorf("pgwire listener already started")
	}
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen pgwire: %w", err)
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop(ln)
	s.logger.Info("pgwire listener started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting connections and waits for the accept loop to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil {
		return fmt.Errorf("close pgwire listener: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pgwire shutdown: %w", ctx.Err())
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close() //nolint:errcheck
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	for {
		length, code, err := readStartupHeader(conn)
		if err != nil {
			return
		}
		if length < 8 {
			_ = writeError(conn, "08P01", "invalid startup packet")
			return
		}
		payload := make([]byte, int(length)-8)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}

		switch code {
		case sslRequestCode:
			if _, err := conn.Write([]byte{'N'}); err != nil {
				return
			}
		case cancelRequestCode:
			if len(payload) == 8 {
				s.cancel(backendKey{
					processID: int32(binary.BigEndian.Uint32(payload[0:4])),
					secretKey: int32(binary.BigEndian.Uint32(payload[4:8])),
				})
			}
			return
		case protocolVersion3:
			sess, err := s.session(parseStartupParams(payload))
			if err != nil {
				_ = writeError(conn, "28000", err.Error())
				return
			}
			key := newBackendKey()
			if err := writeStartupResponse(conn, key); err != nil {
				return
			}
			s.logger.Debug("pgwire session started", "user", sess.User, "database", sess.Database, "schema", sess.Schema)
			s.queryLoop(conn, sess, key)
			return
		default:
			_ = writeError(conn, "08P01", "unsupported startup protocol")
			return
		}
	}
}

// session builds the statement session from startup parameters. The first
// search_path entry overrides the default schema.
func (s *Server) session(params map[string]string) (domain.Session, error) {
	user := strings.TrimSpace(params["user"])
	if user == "" {
		return domain.Session{}, fmt.Errorf("startup user is required")
	}
	sess := domain.Session{User: user, Database: s.cfg.DefaultSchema.Database, Schema: s.cfg.DefaultSchema.Schema}
	if db := strings.TrimSpace(params["database"]); db != "" {
		sess.Database = db
	}
	if sp := strings.TrimSpace(params["search_path"]); sp != "" {
		sess.Schema = strings.TrimSpace(strings.Split(sp, ",")[0])
	}
	return sess, nil
}

func (s *Server) queryLoop(conn net.Conn, sess domain.Session, key backendKey) {
	limit := rate.Inf
	if s.cfg.StatementRate > 0 {
		limit = rate.Limit(s.cfg.StatementRate)
	}
	limiter := rate.NewLimiter(limit, s.cfg.StatementBurst)

	for {
		var header [5]byte
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return
		}
		length := int(binary.BigEndian.Uint32(header[1:5]))
		if length < 4 {
			_ = writeError(conn, "08P01", "invalid frontend message")
			return
		}
		payload := make([]byte, length-4)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}

		switch header[0] {
		case 'Q':
			sql := string(bytes.TrimSuffix(payload, []byte{0}))
			if !limiter.Allow() {
				_ = writeError(conn, "53400", "statement rate limit exceeded")
			} else if err := s.runQuery(conn, sess, key, sql); err != nil {
				return
			}
			if err := writeReadyForQuery(conn); err != nil {
				return
			}
		case 'S':
			_ = writeReadyForQuery(conn)
		case 'H':
		case 'X':
			return
		case 'P', 'B', 'D', 'E', 'C':
			_ = writeError(conn, "0A000", "extended query protocol is not supported; use simple query mode")
		default:
			_ = writeError(conn, "08P01", fmt.Sprintf("unsupported frontend message type %q", header[0]))
			_ = writeReadyForQuery(conn)
		}
	}
}

// runQuery executes sql and writes its outcome. A non-nil error means the
// connection is broken.
func (s *Server) runQuery(conn net.Conn, sess domain.Session, key backendKey, sql string) error {
	if strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), ";")) == "" {
		return writeEmptyQueryResponse(conn)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.track(key, cancel)
	result, err := s.cfg.Execute(ctx, sess, sql)
	s.untrack(key)

	if err != nil {
		return writeError(conn, sqlState(err), err.Error())
	}
	return writeCommandComplete(conn, result.Kind.CommandTag())
}

func (s *Server) track(key backendKey, cancel context.CancelFunc) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.running[key] = cancel
}

func (s *Server) untrack(key backendKey) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	delete(s.running, key)
}

func (s *Server) cancel(key backendKey) {
	s.runMu.Lock()
	cancel := s.running[key]
	s.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func newBackendKey() backendKey {
	return backendKey{processID: randomInt32(), secretKey: randomInt32()}
}

func randomInt32() int32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	if v := int32(binary.BigEndian.Uint32(b[:])); v != 0 {
		return v
	}
	return 1
}

// sqlState maps an error to the SQLSTATE reported to the client.
func sqlState(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "57014"
	}
	var coded domain.SQLStateError
	if errors.As(err, &coded) {
		return coded.SQLState()
	}
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return "42704"
	}
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return "23505"
	}
	return "XX000"
}
