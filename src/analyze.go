package main

import (
	// stdlib
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	// internal
	"github.com/Robogera/kinematics/pkg/batch"
	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/filters"
	"github.com/Robogera/kinematics/pkg/metrics"

	// external
	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const output_suffix = ".kinematics.json"

type analyzeFlags struct {
	start, end float64
	skip       uint
	filter     string
	no_filter  bool
	output_dir string
	no_table   bool
}

func newAnalyzeCommand(a *app) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze VIDEO...",
		Short: "Track persons through whole videos and write their kinematics as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd, a.cfg)
			if err != nil {
				return err
			}
			return a.analyze(cmd, args, req, f)
		},
	}
	cmd.Flags().Float64Var(&f.start, "start", 0, "Start of the analyzed range, seconds")
	cmd.Flags().Float64Var(&f.end, "end", 0, "End of the analyzed range, seconds")
	cmd.Flags().UintVar(&f.skip, "skip", 0, "Analyze every n-th frame (default from config)")
	cmd.Flags().StringVar(&f.filter, "filter", "", "Smoothing filter: butterworth, gaussian or median (default from config)")
	cmd.Flags().BoolVar(&f.no_filter, "no-filter", false, "Don't smooth the results")
	cmd.Flags().StringVarP(&f.output_dir, "output-dir", "o", "", "Directory for the JSON results (default: next to each video)")
	cmd.Flags().BoolVar(&f.no_table, "no-table", false, "Don't print the per-person summary")
	return cmd
}

// request builds the job template from the flags over the config
func (f *analyzeFlags) request(cmd *cobra.Command, cfg *config.ConfigFile) (batch.Request, error) {
	req := batch.Request{
		SkipFrames:  int(cfg.Batch.SkipFrames),
		ApplyFilter: cfg.Batch.ApplyFilter && !f.no_filter,
		FilterKind:  filters.Kind(cfg.Filter.Kind),
	}
	if cmd.Flags().Changed("start") {
		req.Start = &f.start
	}
	if cmd.Flags().Changed("end") {
		req.End = &f.end
	}
	if f.skip > 0 {
		req.SkipFrames = int(f.skip)
	}
	if f.filter != "" {
		req.FilterKind = filters.Kind(f.filter)
	}
	switch req.FilterKind {
	case filters.Butterworth, filters.Gaussian, filters.Median:
	default:
		return req, fmt.Errorf("filter = %s: %w", req.FilterKind, config.ERR_VALUE)
	}
	return req, nil
}

func (a *app) analyze(cmd *cobra.Command, paths []string, template batch.Request, f *analyzeFlags) error {
	logger := a.logger.With("coroutine", "analyze")
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	eg, child_ctx := errgroup.WithContext(ctx)

	vp := batch.NewVideoProcessor(
		batch.FactoryFrom(a.cfg, a.logger),
		batch.OptionsFrom(a.cfg, a.logger),
		a.logger.With("component", "batch"))

	results := make([]*batch.Result, len(paths))
	failed := 0

	eg.Go(func() error {
		return control(child_ctx, a.logger)
	})

	eg.Go(func() error {
		defer cancel()
		var err error
		failed, err = runJobs(child_ctx, logger, vp, a.cfg, paths, template, results)
		return err
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	for i, r := range results {
		if r == nil {
			continue
		}
		out := outputPath(paths[i], f.output_dir)
		if err := writeResult(out, r); err != nil {
			return err
		}
		logger.Info("Results written", "video", paths[i], "output", out)
	}
	if !f.no_table {
		fmt.Fprintln(cmd.OutOrStdout(), summaryTable(paths, results))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(paths))
	}
	return nil
}

// runJobs analyzes every path on the pool and stores the results by
// position. Failed jobs leave a nil result.
func runJobs(
	ctx context.Context,
	logger *slog.Logger,
	vp *batch.VideoProcessor,
	cfg *config.ConfigFile,
	paths []string,
	template batch.Request,
	results []*batch.Result,
) (int, error) {
	pool := batch.NewPool(vp, int(cfg.Batch.Workers), len(paths), logger.With("component", "pool"))
	defer pool.Close()

	bar := pb.StartNew(0)
	defer bar.Finish()
	progress := newProgress(bar, len(paths))

	jobs := make([]*batch.Job, 0, len(paths))
	for i, path := range paths {
		req := template
		req.Path = path
		req.Progress = func(processed, total int) {
			progress.update(i, processed, total)
		}
		job, err := pool.Submit(ctx, req)
		if err != nil {
			for _, j := range jobs {
				j.Cancel()
			}
			return 0, err
		}
		jobs = append(jobs, job)
	}

	failed := 0
	for i, job := range jobs {
		r, err := job.Wait(ctx)
		if err != nil && ctx.Err() != nil {
			for _, j := range jobs[i:] {
				j.Cancel()
			}
			return failed, ctx.Err()
		}
		if err != nil {
			logger.Error("Video failed", "video", paths[i], "job", job.ID, "error", err)
			failed++
			continue
		}
		results[i] = r
	}
	return failed, nil
}

// progress merges the counters of concurrent jobs into one bar
type progress struct {
	mu        sync.Mutex
	bar       *pb.ProgressBar
	processed []int
	totals    []int
}

func newProgress(bar *pb.ProgressBar, jobs int) *progress {
	return &progress{
		bar:       bar,
		processed: make([]int, jobs),
		totals:    make([]int, jobs),
	}
}

func (p *progress) update(job, processed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed[job] = processed
	p.totals[job] = max(total, processed)
	var sum_processed, sum_total int64
	for i := range p.processed {
		sum_processed += int64(p.processed[i])
		sum_total += int64(p.totals[i])
	}
	p.bar.SetTotal(sum_total)
	p.bar.SetCurrent(sum_processed)
}

func outputPath(video, dir string) string {
	name := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video)) + output_suffix
	if dir == "" {
		dir = filepath.Dir(video)
	}
	return filepath.Join(dir, name)
}

func writeResult(path string, r *batch.Result) error {
	data, err := json.MarshalIndent(r.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("Can't encode results: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("Can't create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("Can't write %s: %w", path, err)
	}
	return nil
}

type personSummary struct {
	frames       int
	height_sum   float64
	speed_sum    float64
	speed_frames int
	sides        map[metrics.Side]int
}

// summaryTable has one row per track of every finished video
func summaryTable(paths []string, results []*batch.Result) string {
	headers := []string{"Video", "Person", "Frames", "Height, px", "Speed, px/s", "Side"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
	rows := [][]string{}
	for i, r := range results {
		if r == nil {
			rows = append(rows, []string{filepath.Base(paths[i]), "-", "failed", "", "", ""})
			continue
		}
		ids, persons := summarize(r)
		if len(ids) == 0 {
			rows = append(rows, []string{filepath.Base(paths[i]), "-", "0", "", "", ""})
		}
		for _, id := range ids {
			s := persons[id]
			speed := "-"
			if s.speed_frames > 0 {
				speed = strconv.FormatFloat(s.speed_sum/float64(s.speed_frames), 'f', 1, 64)
			}
			rows = append(rows, []string{
				filepath.Base(paths[i]),
				strconv.Itoa(id),
				strconv.Itoa(s.frames),
				strconv.FormatFloat(s.height_sum/float64(s.frames), 'f', 1, 64),
				speed,
				string(mostCommon(s.sides)),
			})
		}
	}
	return renderTable(headers, rows, aligns)
}

func summarize(r *batch.Result) ([]int, map[int]*personSummary) {
	ids := []int{}
	persons := make(map[int]*personSummary)
	for _, f := range r.Results {
		for _, p := range f.Persons {
			s, ok := persons[p.PersonId]
			if !ok {
				s = &personSummary{sides: make(map[metrics.Side]int)}
				persons[p.PersonId] = s
				ids = append(ids, p.PersonId)
			}
			s.frames++
			s.height_sum += p.Metrics.HeightPixels
			if v := p.Metrics.Velocity; v != (metrics.Velocity{}) {
				s.speed_sum += math.Hypot(v.X, v.Y)
				s.speed_frames++
			}
			s.sides[p.Metrics.VisibleSide]++
		}
	}
	return ids, persons
}

func mostCommon(sides map[metrics.Side]int) metrics.Side {
	var best metrics.Side
	best_count := 0
	for _, side := range []metrics.Side{metrics.SideLeft, metrics.SideRight, metrics.SideFront, metrics.SideUnknown} {
		if sides[side] > best_count {
			best, best_count = side, sides[side]
		}
	}
	return best
}
