package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const execTimeout = 30 * time.Second

func newExecCmd(s *settings) *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run a DDL statement on the coordinator",
		Long: "Run one DROP TABLE or CREATE MATERIALIZED VIEW statement and print its command tag.\n" +
			"The statement is sent over the simple query protocol.",
		Example: `  ddlctl exec "DROP TABLE IF EXISTS orders"
  ddlctl exec "CREATE MATERIALIZED VIEW totals AS SELECT region, sum(amount) AS total FROM orders GROUP BY region"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := strings.Join(args, " ")
			if prompt {
				pw, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				s.password = pw
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), execTimeout)
			defer cancel()

			tag, err := execStatement(ctx, s, sql)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"status":      "ok",
					"command_tag": tag,
				})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tag)
			return nil
		},
	}

	cmd.Flags().BoolVar(&prompt, "password-prompt", false, "Prompt for the coordinator password")
	return cmd
}

// readPassword reads a password from in without echo. in must be a terminal.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("--password-prompt requires an interactive terminal")
	}
	_, _ = fmt.Fprint(prompt, "Password: ")
	pw, err := term.ReadPassword(int(f.Fd()))
	_, _ = fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// execStatement connects to the coordinator and runs sql in simple query mode.
func execStatement(ctx context.Context, s *settings, sql string) (string, error) {
	cfg, err := pgx.ParseConfig(s.url)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if s.password != "" {
		cfg.Password = s.password
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck

	tag, err := conn.Exec(ctx, sql)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// sqlStateOf returns the SQLSTATE of a server error, or "".
func sqlStateOf(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
