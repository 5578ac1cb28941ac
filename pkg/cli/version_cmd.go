package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// buildCommit prefers the ldflags-stamped commit and falls back to the VCS
// revision the toolchain embeds in module builds.
func buildCommit() string {
	if commit != "none" {
		return commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return commit
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rev := buildCommit()
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version":  version,
					"commit":   rev,
					"go":       runtime.Version(),
					"protocol": "postgres simple query",
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ddlctl version %s (commit: %s, %s)\n", version, rev, runtime.Version())
			return nil
		},
	}
}
