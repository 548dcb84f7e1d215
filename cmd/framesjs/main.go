// Command framesjs writes the frames of an extracted job as a single bundle
// of base64 image descriptors, either an ES module or a JSON array.
//
// Usage:
//
//	framesjs -job <id> [-out images.js] [-format js|json] [-data-dir dir] [-publish]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/maauso/scrollframes/internal/bootstrap"
	"github.com/maauso/scrollframes/internal/config"
	"github.com/maauso/scrollframes/internal/encode"
	"github.com/maauso/scrollframes/internal/job"
)

var errUsage = errors.New("usage: framesjs -job <id> [-out file] [-format js|json] [-data-dir dir] [-publish]")

type options struct {
	jobID   string
	out     string
	format  string
	dataDir string
	publish bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("framesjs", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.jobID, "job", "", "job identifier to export (required)")
	fs.StringVar(&opts.out, "out", "", "output file; defaults to images.<format>, \"-\" for stdout")
	fs.StringVar(&opts.format, "format", "js", "bundle format: js or json")
	fs.StringVar(&opts.dataDir, "data-dir", "", "storage root; overrides DATA_DIR")
	fs.BoolVar(&opts.publish, "publish", false, "upload the bundle to S3 instead of writing a file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.jobID == "" {
		return nil, errUsage
	}
	return opts, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	format, err := encode.ParseBundleFormat(opts.format)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	// Logs go to stderr so the bundle can be piped from stdout.
	logger := cfg.NewLoggerTo(os.Stderr)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.publish {
		res, err := deps.Service.Export(ctx, opts.jobID, job.ExportInput{Format: format, Publish: true}, io.Discard)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "published %d images to %s\n", res.Images, res.URL)
		return nil
	}

	if opts.out == "-" {
		_, err := deps.Service.Export(ctx, opts.jobID, job.ExportInput{Format: format}, os.Stdout)
		return err
	}

	out := opts.out
	if out == "" {
		out = "images." + format.Ext()
	}
	n, err := writeFile(out, func(w io.Writer) (int, error) {
		res, err := deps.Service.Export(ctx, opts.jobID, job.ExportInput{Format: format}, w)
		if err != nil {
			return 0, err
		}
		return res.Images, nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d images to %s\n", n, out)
	return nil
}

// writeFile writes through a temporary file next to path and renames it
// into place only when write succeeds.
func writeFile(path string, write func(io.Writer) (int, error)) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".framesjs-*")
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := write(tmp)
	if err != nil {
		_ = tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close output: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return 0, fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("write output: %w", err)
	}
	return n, nil
}
