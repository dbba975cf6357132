package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/readerscan/internal/service"
)

func newPluginsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the plugins found in the configured plugin paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			svc, err := service.New(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer svc.Close(ctx)

			list := svc.Plugins().Registry().List()
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no plugins in %s\n", strings.Join(c.cfg.PluginPaths, ", "))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tSITES\tWASM\tSHA256")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					p.Name(),
					p.Version(),
					strings.Join(p.Sites(), ","),
					p.Manifest.WasmPath(),
					p.Compiled.Digest[:12],
				)
			}
			return w.Flush()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "readerscan %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
