package main

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"github.com/woxQAQ/readerscan/internal/service"
	"go.uber.org/zap"
)

type batchOptions struct {
	sel        service.Selector
	workers    int
	pattern    string
	outputExt  string
	noProgress bool
}

func newBatchCmd(c *cli) *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Extract image URLs from every chapter page under a directory",
		Long: `Walk a directory and extract every file matching --pattern.

Each result is written next to its input, with the input's extension
replaced by --ext. Files are spread over --workers guest instances.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBatch(cmd, args[0], opts)
		},
	}

	selectorFlags(cmd, &opts.sel)
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel guest instances (default from config)")
	cmd.Flags().StringVar(&opts.pattern, "pattern", "*.html", "File name pattern to extract")
	cmd.Flags().StringVar(&opts.outputExt, "ext", "", "Output file extension (default from config)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}

func (c *cli) runBatch(cmd *cobra.Command, dir string, opts batchOptions) error {
	ctx := cmd.Context()

	if opts.outputExt == "" {
		opts.outputExt = c.cfg.Batch.OutputExt
	}

	files, err := findFiles(dir, opts.pattern)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no files matching %q in %s\n", opts.pattern, dir)
		return nil
	}

	svc, err := service.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer svc.Close(ctx)

	p, err := svc.Resolve(ctx, opts.sel)
	if err != nil {
		return err
	}

	var progressOut io.Writer = cmd.ErrOrStderr()
	if opts.noProgress {
		progressOut = io.Discard
	}
	progress := mpb.NewWithContext(ctx,
		mpb.WithWidth(52),
		mpb.WithOutput(progressOut),
		mpb.WithRefreshRate(120*time.Millisecond),
	)
	bar := progress.New(int64(len(files)),
		mpb.BarStyle().Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(p.Name()+"  "),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncWidth),
			decor.CountersNoUnit(" | %d/%d pages", decor.WCSyncWidth),
		),
	)

	var failed atomic.Int64
	err = svc.ExtractFiles(ctx, p, files, opts.workers, func(r service.FileResult) {
		defer bar.Increment()

		if r.Err == nil {
			r.Err = writeResult(outputPath(r.Path, opts.outputExt), r)
		}
		if r.Err != nil {
			failed.Add(1)
			c.logger.Error("Failed to process file", zap.String("path", r.Path), zap.Error(r.Err))
		}
	})
	if err != nil {
		bar.Abort(false)
	}
	progress.Wait()
	if err != nil {
		return err
	}

	n := failed.Load()
	fmt.Fprintf(cmd.OutOrStdout(), "processed %d files with %s, %d failed\n", len(files), p.Name(), n)
	if n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(files))
	}
	return nil
}

// findFiles returns the regular files under dir whose base name matches
// pattern, in lexical order.
func findFiles(dir, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

func outputPath(input, ext string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}

func writeResult(path string, r service.FileResult) error {
	var buf bytes.Buffer
	if err := writeImages(&buf, r.Images); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
