// Package cli implements ddlctl, the operator CLI for the DDL coordinator.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

const (
	defaultURL       = "postgres://admin@localhost:5433/dev?sslmode=disable"
	defaultMetastore = "streamddl_meta.sqlite"
)

// settings holds the resolved connection settings shared by subcommands.
type settings struct {
	url       string
	password  string
	metastore string
	output    string
}

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{"error": err.Error()}
			if code := sqlStateOf(err); code != "" {
				errObj["sqlstate"] = code
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		s       settings
		profile string
	)

	rootCmd := &cobra.Command{
		Use:           "ddlctl",
		Short:         "DDL coordinator CLI",
		Long:          "Command-line interface for running DDL against the coordinator and managing compute nodes.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				// Config file is optional
				cfg = emptyUserConfig()
			}
			p := cfg.ActiveProfile(profile)

			// Apply precedence: flag > env > profile > default
			resolve(cmd, "url", &s.url, "DDLCTL_URL", p.URL)
			resolve(cmd, "password", &s.password, "DDLCTL_PASSWORD", p.Password)
			resolve(cmd, "metastore", &s.metastore, "DDLCTL_METASTORE", p.Metastore)
			resolve(cmd, "output", &s.output, "DDLCTL_OUTPUT", p.Output)

			if err := validateOutputFormat(s.output); err != nil {
				return err
			}
			// Subcommands read the format from the root flag.
			return cmd.Root().PersistentFlags().Set("output", s.output)
		},
	}

	rootCmd.PersistentFlags().StringVar(&s.url, "url", defaultURL, "Coordinator connection URL")
	rootCmd.PersistentFlags().StringVar(&s.password, "password", "", "Password for the coordinator connection")
	rootCmd.PersistentFlags().StringVar(&s.metastore, "metastore", defaultMetastore, "Path to the catalog metastore (node commands)")
	rootCmd.PersistentFlags().StringVarP(&s.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(newExecCmd(&s))
	rootCmd.AddCommand(newNodesCmd(&s))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// resolve fills *dst from env or the profile unless the flag was set.
func resolve(cmd *cobra.Command, flag string, dst *string, env, fromProfile string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	} else if fromProfile != "" {
		*dst = fromProfile
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
