package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/readerscan/internal/reference"
	"github.com/woxQAQ/readerscan/internal/service"
	"go.uber.org/zap"
)

func newExtractCmd(c *cli) *cobra.Command {
	var (
		sel    service.Selector
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Extract image URLs from one chapter page",
		Long: `Extract the lazy-loaded image URLs from a chapter page's reader area.

The page is read from the file argument, or from stdin when no file is
given. The result is printed as a JSON array of strings.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runExtract(cmd, args, sel, verify)
		},
	}

	selectorFlags(cmd, &sel)
	cmd.Flags().BoolVar(&verify, "verify", false, "Cross-check the result with an HTML parser and report differences")

	return cmd
}

func (c *cli) runExtract(cmd *cobra.Command, args []string, sel service.Selector, verify bool) error {
	ctx := cmd.Context()

	var (
		html []byte
		err  error
	)
	if len(args) > 0 {
		html, err = os.ReadFile(args[0])
	} else {
		html, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	svc, err := service.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	p, err := svc.Resolve(ctx, sel)
	if err != nil {
		return err
	}

	images, err := svc.Extract(ctx, p, html)
	if err != nil {
		return err
	}

	if verify {
		report, err := reference.Compare(string(html), images)
		if err != nil {
			return err
		}
		if !report.Match() {
			c.logger.Warn("Result differs from reference parser",
				zap.String("plugin", p.Name()),
				zap.Strings("missing", report.Missing),
				zap.Strings("extra", report.Extra),
			)
			fmt.Fprintf(cmd.ErrOrStderr(), "reference mismatch: %d missing, %d extra\n",
				len(report.Missing), len(report.Extra))
		}
	}

	return writeImages(cmd.OutOrStdout(), images)
}
