// ABOUTME: CLI command for ingesting Health Auto Export files.
// ABOUTME: Files are ingested concurrently; per-file failures are collected and reported together.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/models"
)

var ingestConcurrency int

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest Health Auto Export JSON files",
	Long: `Ingest one or more Health Auto Export JSON files.

Use - to read a payload from stdin. A file that was already ingested is
reported as a duplicate and nothing is written.

OUTPUT:

  Each line shows: STATUS  PAYLOAD  METRICS  WORKOUTS  FILE

  STATUS is success, partial_success (some metric groups or workouts were
  skipped as duplicates or malformed) or duplicate.

EXAMPLES:

  health-ingest ingest export.json
  health-ingest ingest exports/*.json --concurrency 8
  curl -s https://example/export | health-ingest ingest -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ingestFiles(cmd.Context(), cmd.OutOrStdout(), coordinator, args, ingestConcurrency)
	},
}

type fileResult struct {
	path string
	res  *ingest.Result
}

func ingestFiles(ctx context.Context, out io.Writer, ingester ingest.Ingester, paths []string, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu      sync.Mutex
		errs    *multierror.Error
		results = make([]fileResult, len(paths))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			res, err := ingestFile(ctx, ingester, path)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", path, err))
				mu.Unlock()
				return nil
			}
			results[i] = fileResult{path: path, res: res}
			return nil
		})
	}
	_ = g.Wait()

	faint := color.New(color.Faint)
	for _, r := range results {
		if r.res == nil {
			continue
		}
		fmt.Fprintf(out, "%s %s metrics %d/%d workouts %d/%d %s\n",
			statusLabel(r.res.Status),
			faint.Sprint(r.res.PayloadID.String()[:8]),
			r.res.MetricsProcessed, r.res.MetricsSkipped,
			r.res.WorkoutsProcessed, r.res.WorkoutsSkipped,
			faint.Sprint(r.path))
	}

	return errs.ErrorOrNil()
}

func ingestFile(ctx context.Context, ingester ingest.Ingester, path string) (*ingest.Result, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	p, err := models.DecodePayload(r)
	if err != nil {
		return nil, err
	}
	return ingester.Ingest(ctx, p)
}

func statusLabel(s ingest.Status) string {
	label := padRight(string(s), 15)
	switch s {
	case ingest.StatusSuccess:
		return color.GreenString(label)
	case ingest.StatusPartialSuccess:
		return color.YellowString(label)
	default:
		return color.New(color.Faint).Sprint(label)
	}
}

func init() {
	ingestCmd.Flags().IntVarP(&ingestConcurrency, "concurrency", "c", 4, "number of files ingested in parallel")
	rootCmd.AddCommand(ingestCmd)
}
