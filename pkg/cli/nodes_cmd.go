package cli

import (
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	internaldb "streamddl/internal/db"
	"streamddl/internal/db/repository"
	"streamddl/internal/domain"
)

func newNodesCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Manage the compute nodes drops are broadcast to",
		Long: "Manage worker node registrations in the catalog metastore.\n" +
			"A running coordinator picks up changes on its next membership refresh.",
	}
	cmd.AddCommand(newNodesAddCmd(s))
	cmd.AddCommand(newNodesListCmd(s))
	cmd.AddCommand(newNodesRemoveCmd(s))
	return cmd
}

// openNodeRepo opens the metastore and returns a node repository over it.
func openNodeRepo(s *settings) (*repository.WorkerNodeRepo, func(), error) {
	ms, err := internaldb.OpenMetastore(s.metastore, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("open metastore %s: %w", s.metastore, err)
	}
	return repository.NewWorkerNodeRepo(ms.Write), func() { _ = ms.Close() }, nil
}

func newNodesAddCmd(s *settings) *cobra.Command {
	var name, endpoint string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a compute node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeRepo, err := openNodeRepo(s)
			if err != nil {
				return err
			}
			defer closeRepo()

			node, err := repo.Create(cmd.Context(), domain.RegisterWorkerNodeRequest{Name: name, Endpoint: endpoint})
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), nodeJSON(*node))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Node %q registered at %s\n", node.Name, node.Endpoint)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Node name (required)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Node task service endpoint, e.g. grpc://10.0.0.5:9443 (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("endpoint")

	return cmd
}

func newNodesListCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered compute nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, closeRepo, err := openNodeRepo(s)
			if err != nil {
				return err
			}
			defer closeRepo()

			nodes, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				out := make([]map[string]any, len(nodes))
				for i, n := range nodes {
					out[i] = nodeJSON(n)
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			rows := make([][]string, len(nodes))
			for i, n := range nodes {
				rows[i] = []string{strconv.FormatInt(n.ID, 10), n.Name, n.Endpoint, n.CreatedAt.Format(time.RFC3339)}
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "ENDPOINT", "CREATED"}, rows)
			return nil
		},
	}
}

func newNodesRemoveCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister a compute node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := openNodeRepo(s)
			if err != nil {
				return err
			}
			defer closeRepo()

			if err := repo.DeleteByName(cmd.Context(), args[0]); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"status": "ok", "removed": args[0]})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Node %q removed\n", args[0])
			return nil
		},
	}
}

func nodeJSON(n domain.WorkerNode) map[string]any {
	return map[string]any{
		"id":         n.ID,
		"name":       n.Name,
		"endpoint":   n.Endpoint,
		"created_at": n.CreatedAt.Format(time.RFC3339),
	}
}
