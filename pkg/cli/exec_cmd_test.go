package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamddl/internal/domain"
	"streamddl/internal/pgwire"
)

// coordinatorStub serves the wire protocol with a recording executor.
type coordinatorStub struct {
	mu       sync.Mutex
	sessions []domain.Session
	sqls     []string
}

func (c *coordinatorStub) execute(_ context.Context, sess domain.Session, sql string) (*domain.DdlResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, sess)
	c.sqls = append(c.sqls, sql)
	switch sql {
	case "DROP TABLE ghost":
		return nil, domain.ErrUndefinedEntity("relation %q does not exist", "dev.public.ghost")
	case "CREATE MATERIALIZED VIEW mv AS SELECT 1":
		return domain.NewDdlResult(domain.StatementCreateMaterializedView), nil
	default:
		return domain.NewDdlResult(domain.StatementDropTable), nil
	}
}

func startCoordinator(t *testing.T) (*coordinatorStub, string) {
	t.Helper()
	stub := &coordinatorStub{}
	srv := pgwire.NewServer(pgwire.Config{
		Addr:          "127.0.0.1:0",
		Execute:       stub.execute,
		DefaultSchema: domain.SchemaName{Database: "dev", Schema: "public"},
	})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return stub, fmt.Sprintf("postgres://ops@%s/dev?sslmode=disable", srv.Addr())
}

func TestExec(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	stub, url := startCoordinator(t)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{
			name: "drop table",
			args: []string{"--url", url, "exec", "DROP TABLE orders"},
			want: "DROP TABLE\n",
		},
		{
			name: "args joined",
			args: []string{"--url", url, "exec", "CREATE", "MATERIALIZED", "VIEW", "mv", "AS", "SELECT", "1"},
			want: "CREATE MATERIALIZED VIEW\n",
		},
		{
			name: "json",
			args: []string{"--url", url, "-o", "json", "exec", "DROP TABLE orders"},
			want: "{\n  \"command_tag\": \"DROP TABLE\",\n  \"status\": \"ok\"\n}\n",
		},
		{
			name:    "server error",
			args:    []string{"--url", url, "exec", "DROP TABLE ghost"},
			wantErr: "does not exist",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCLI(t, tt.args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, "42P01", sqlStateOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.NotEmpty(t, stub.sessions)
	assert.Equal(t, domain.Session{User: "ops", Database: "dev", Schema: "public"}, stub.sessions[0])
	assert.Contains(t, stub.sqls, "CREATE MATERIALIZED VIEW mv AS SELECT 1")
}

func TestExec_URLFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, url := startCoordinator(t)
	t.Setenv("DDLCTL_URL", url)

	out, err := runCLI(t, "exec", "DROP TABLE IF EXISTS orders")
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE\n", out)
}

func TestExec_RequiresStatement(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := runCLI(t, "exec")
	require.Error(t, err)
}

func TestExec_PasswordPromptNeedsTerminal(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, url := startCoordinator(t)

	rootCmd := newRootCmd()
	rootCmd.SetIn(strings.NewReader("secret\n"))
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"--url", url, "exec", "--password-prompt", "DROP TABLE orders"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interactive terminal")
}
