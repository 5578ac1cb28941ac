package pgwire

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamddl/internal/domain"
)

var defaultSchema = domain.SchemaName{Database: "dev", Schema: "public"}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	if cfg.DefaultSchema == (domain.SchemaName{}) {
		cfg.DefaultSchema = defaultSchema
	}
	srv := NewServer(cfg)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

// connect performs the startup handshake and returns the backend key.
func connect(t *testing.T, srv *Server, params string) (net.Conn, uint32, uint32) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Write(startupPacket(t, params))
	require.NoError(t, err)

	typ, payload := readMessage(t, conn)
	require.Equal(t, byte('R'), typ)
	require.Equal(t, uint32(0), binary.BigEndian.Uint32(payload))
	typ, payload = readMessage(t, conn)
	require.Equal(t, byte('S'), typ)
	require.Contains(t, string(payload), "server_version")
	typ, _ = readMessage(t, conn)
	require.Equal(t, byte('S'), typ)
	typ, payload = readMessage(t, conn)
	require.Equal(t, byte('K'), typ)
	require.Len(t, payload, 8)
	processID, secretKey := binary.BigEndian.Uint32(payload[0:4]), binary.BigEndian.Uint32(payload[4:8])
	typ, payload = readMessage(t, conn)
	require.Equal(t, byte('Z'), typ)
	require.Equal(t, []byte{'I'}, payload)
	return conn, processID, secretKey
}

func TestServer_DDLCommandComplete(t *testing.T) {
	var got domain.Session
	srv := startServer(t, Config{Execute: func(_ context.Context, sess domain.Session, sql string) (*domain.DdlResult, error) {
		got = sess
		require.Equal(t, "DROP TABLE t", sql)
		return domain.NewDdlResult(domain.StatementDropTable), nil
	}})
	conn, _, _ := connect(t, srv, "user\x00alice\x00\x00")

	_, err := conn.Write(queryPacket(t, "DROP TABLE t"))
	require.NoError(t, err)
	typ, payload := readMessage(t, conn)
	require.Equal(t, byte('C'), typ)
	assert.Equal(t, "DROP TABLE\x00", string(payload))
	typ, _ = readMessage(t, conn)
	require.Equal(t, byte('Z'), typ)

	assert.Equal(t, domain.Session{User: "alice", Database: "dev", Schema: "public"}, got)
}

func TestServer_SessionFromStartupParams(t *testing.T) {
	sessions := make(chan domain.Session, 1)
	srv := startServer(t, Config{Execute: func(_ context.Context, sess domain.Session, _ string) (*domain.DdlResult, error) {
		sessions <- sess
		return domain.NewDdlResult(domain.StatementCreateMaterializedView), nil
	}})
	conn, _, _ := connect(t, srv, "user\x00bob\x00database\x00prod\x00search_path\x00sales, public\x00\x00")

	_, err := conn.Write(queryPacket(t, "CREATE MATERIALIZED VIEW v AS SELECT 1 AS x FROM t"))
	require.NoError(t, err)
	typ, payload := readMessage(t, conn)
	require.Equal(t, byte('C'), typ)
	assert.Equal(t, "CREATE MATERIALIZED VIEW\x00", string(payload))
	assert.Equal(t, domain.Session{User: "bob", Database: "prod", Schema: "sales"}, <-sessions)
}

func TestServer_ErrorCarriesSQLState(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"undefined", domain.ErrUndefinedEntity("relation %q does not exist", "t"), "42P01"},
		{"alias", domain.ErrInvalidColumnDefinition("An alias name must be specified"), "42611"},
		{"internal", domain.ErrInternalExecution("node failed"), "XX000"},
		{"dependent", domain.ErrDependentObject("drop the view"), "2BP01"},
		{"wrapped", fmt.Errorf("outer: %w", domain.ErrSyntax("bad")), "42601"},
		{"plain", errors.New("boom"), "XX000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := startServer(t, Config{Execute: func(context.Context, domain.Session, string) (*domain.DdlResult, error) {
				return nil, tc.err
			}})
			conn, _, _ := connect(t, srv, "user\x00alice\x00\x00")

			_, err := conn.Write(queryPacket(t, "DROP TABLE t"))
			require.NoError(t, err)
			typ, payload := readMessage(t, conn)
			require.Equal(t, byte('E'), typ)
			assert.Contains(t, string(payload), "C"+tc.code+"\x00")
			assert.Contains(t, string(payload), tc.err.Error())
			typ, _ = readMessage(t, conn)
			require.Equal(t, byte('Z'), typ)
		})
	}
}

func TestServer_EmptyQuery(t *testing.T) {
	srv := startServer(t, Config{Execute: func(context.Context, domain.Session, string) (*domain.DdlResult, error) {
		return nil, errors.New("empty query must not be executed")
	}})
	conn, _, _ := connect(t, srv, "user\x00alice\x00\x00")

	_, err := conn.Write(queryPacket(t, " ; "))
	require.NoError(t, err)
	typ, _ := readMessage(t, conn)
	require.Equal(t, byte('I'), typ)
	typ, _ = readMessage(t, conn)
	require.Equal(t, byte('Z'), typ)
}

func TestServer_StatementRateLimit(t *testing.T) {
	srv := startServer(t, Config{
		StatementRate:  0.001,
		StatementBurst: 1,
		Execute: func(context.Context, domain.Session, string) (*domain.DdlResult, error) {
			return domain.NewDdlResult(domain.StatementDropTable), nil
		},
	})
	conn, _, _ := connect(t, srv, "user\x00alice\x00\x00")

	_, err := conn.Write(queryPacket(t, "DROP TABLE a"))
	require.NoError(t, err)
	typ, _ := readMessage(t, conn)
	require.Equal(t, byte('C'), typ)
	_, _ = readMessage(t, conn)

	_, err = conn.Write(queryPacket(t, "DROP TABLE b"))
	require.NoError(t, err)
	typ, payload := readMessage(t, conn)
	require.Equal(t, byte('E'), typ)
	assert.Contains(t, string(payload), "C53400\x00")
}

func TestServer_MissingUser(t *testing.T) {
	srv := startServer(t, Config{})
	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck

	_, err = conn.Write(startupPacket(t, "database\x00dev\x00\x00"))
	require.NoError(t, err)
	typ, payload := readMessage(t, conn)
	require.Equal(t, byte('E'), typ)
	assert.Contains(t, string(payload), "C28000\x00")
}

func TestServer_RejectsExtendedProtocol(t *testing.T) {
	srv := startServer(t, Config{})
	conn, _, _ := connect(t, srv, "user\x00alice\x00\x00")

	_, err := conn.Write([]byte{'P', 0, 0, 0, 8, 0, 0, 0, 0})
	require.NoError(t, err)
	typ, payload := readMessage(t, conn)
	require.Equal(t, byte('E'), typ)
	assert.Contains(t, string(payload), "simple query")

	_, err = conn.Write([]byte{'S', 0, 0, 0, 4})
	require.NoError(t, err)
	typ, _ = readMessage(t, conn)
	require.Equal(t, byte('Z'), typ)
}

func TestServer_CancelRequest(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := startServer(t, Config{Execute: func(ctx context.Context, _ domain.Session, _ string) (*domain.DdlResult, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	conn, processID, secretKey := connect(t, srv, "user\x00alice\x00\x00")

	_, err := conn.Write(queryPacket(t, "DROP TABLE slow"))
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("statement did not start")
	}

	cancelConn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.NoError(t, err)
	defer cancelConn.Close() //nolint:errcheck
	_, err = cancelConn.Write(cancelPacket(t, processID, secretKey))
	require.NoError(t, err)

	typ, payload := readMessage(t, conn)
	require.Equal(t, byte('E'), typ)
	assert.Contains(t, string(payload), "C57014\x00")
	typ, _ = readMessage(t, conn)
	require.Equal(t, byte('Z'), typ)
}

func TestServer_PgxSimpleProtocol(t *testing.T) {
	srv := startServer(t, Config{Execute: func(_ context.Context, _ domain.Session, sql string) (*domain.DdlResult, error) {
		if sql == "DROP TABLE ghost" {
			return nil, domain.ErrUndefinedEntity("relation %q does not exist", "dev.public.ghost")
		}
		return domain.NewDdlResult(domain.StatementDropTable), nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := pgx.ParseConfig(fmt.Sprintf("postgres://alice@%s/dev?sslmode=disable", srv.Addr()))
	require.NoError(t, err)
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	conn, err := pgx.ConnectConfig(ctx, cfg)
	require.NoError(t, err)
	defer conn.Close(ctx) //nolint:errcheck

	tag, err := conn.Exec(ctx, "DROP TABLE t")
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE", tag.String())

	_, err = conn.Exec(ctx, "DROP TABLE ghost")
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "42P01", pgErr.Code)
}

func TestSQLState(t *testing.T) {
	assert.Equal(t, "57014", sqlState(context.Canceled))
	assert.Equal(t, "42704", sqlState(domain.ErrNotFound("x")))
	assert.Equal(t, "23505", sqlState(domain.ErrConflict("x")))
	assert.Equal(t, "22023", sqlState(domain.ErrValidation("x")))
	assert.Equal(t, "0A000", sqlState(domain.ErrUnsupportedStatement("x")))
}

func startupPacket(t *testing.T, params string) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	require.NoError(t, binary.Write(buf, binary.BigEndian, int32(8+len(params))))
	require.NoError(t, binary.Write(buf, binary.BigEndian, protocolVersion3))
	buf.WriteString(params)
	return buf.Bytes()
}

func queryPacket(t *testing.T, q string) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	buf.WriteByte('Q')
	require.NoError(t, binary.Write(buf, binary.BigEndian, int32(4+len(q)+1)))
	buf.WriteString(q)
	buf.WriteByte(0)
	return buf.Bytes()
}

func cancelPacket(t *testing.T, processID, secretKey uint32) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	require.NoError(t, binary.Write(buf, binary.BigEndian, int32(16)))
	require.NoError(t, binary.Write(buf, binary.BigEndian, cancelRequestCode))
	require.NoError(t, binary.Write(buf, binary.BigEndian, processID))
	require.NoError(t, binary.Write(buf, binary.BigEndian, secretKey))
	return buf.Bytes()
}

func readMessage(t *testing.T, conn net.Conn) (byte, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var header [5]byte
	_, err := io.ReadFull(conn, header[:])
	require.NoError(t, err)
	length := int(binary.BigEndian.Uint32(header[1:5]))
	require.GreaterOrEqual(t, length, 4)
	payload := make([]byte, length-4)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	return header[0], payload
}
