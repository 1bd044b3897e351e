package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/detector"
	"github.com/Robogera/kinematics/pkg/filters"
	"github.com/Robogera/kinematics/pkg/frame"
	"github.com/Robogera/kinematics/pkg/indexed"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

var (
	ERR_BAD_RANGE = errors.New("Requested range is outside of the video")
)

// ProcessorFactory builds a fresh FrameProcessor for every job
type ProcessorFactory func() (*frame.Processor, error)

// FactoryFrom builds processors with their own detector as configured
func FactoryFrom(cfg *config.ConfigFile, logger *slog.Logger) ProcessorFactory {
	return func() (*frame.Processor, error) {
		d, err := detector.New(&cfg.Detector, logger.With("component", "detector"))
		if err != nil {
			return nil, err
		}
		return frame.New(d, frame.OptionsFrom(cfg), logger.With("component", "frame")), nil
	}
}

type Options struct {
	// decoded frames waiting for analysis
	QueueLength int
	Filters     *filters.Engine
	Interpolate bool
	MaxGap      int
	// OpenVideo when nil
	Open func(path string) (Source, error)
}

func OptionsFrom(cfg *config.ConfigFile, logger *slog.Logger) Options {
	return Options{
		QueueLength: int(cfg.Batch.QueueLength),
		Filters: filters.NewEngine(filters.Params{
			Order:        int(cfg.Filter.Order),
			CutoffHz:     cfg.Filter.CutoffHz,
			Sigma:        cfg.Filter.Sigma,
			MedianKernel: int(cfg.Filter.MedianKernel),
		}, logger.With("component", "filters")),
		Interpolate: cfg.Filter.Interpolate,
		MaxGap:      int(cfg.Filter.MaxGap),
		Open:        OpenPath(cfg.Input.FPS),
	}
}

type Request struct {
	Path string
	// seconds, whole video when nil
	Start, End *float64
	// Only every SkipFrames-th frame is analyzed. Filter cutoffs then
	// apply at the effective rate fps / SkipFrames.
	SkipFrames  int
	ApplyFilter bool
	FilterKind  filters.Kind
	// called after every analyzed frame, from the job's goroutine
	Progress func(processed, total int)
}

type VideoInfo struct {
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
	Duration    float64
}

type Result struct {
	JobId           uuid.UUID
	Info            VideoInfo
	ProcessedFrames int
	// frames that couldn't be analyzed and are missing from Results
	FailedFrames int
	Filtered     bool
	Results      []*frame.FrameResult
}

// VideoProcessor runs whole-video jobs. It keeps no state between jobs,
// so one instance can serve concurrent jobs.
type VideoProcessor struct {
	new_processor ProcessorFactory
	opts          Options
	logger        *slog.Logger
}

func NewVideoProcessor(new_processor ProcessorFactory, opts Options, logger *slog.Logger) *VideoProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Open == nil {
		opts.Open = OpenVideo
	}
	if opts.Filters == nil {
		opts.Filters = filters.NewEngine(filters.DefaultParams(), logger)
	}
	opts.QueueLength = max(1, opts.QueueLength)
	return &VideoProcessor{
		new_processor: new_processor,
		opts:          opts,
		logger:        logger,
	}
}

// Process runs the job on the calling goroutine
func (vp *VideoProcessor) Process(ctx context.Context, req Request) (*Result, error) {
	return vp.process(ctx, uuid.New(), req)
}

func (vp *VideoProcessor) process(ctx context.Context, job_id uuid.UUID, req Request) (*Result, error) {
	logger := vp.logger.With("job", job_id.String())
	started := time.Now()

	src, err := vp.opts.Open(req.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	size := src.Size()
	info := VideoInfo{
		FPS:         src.FPS(),
		TotalFrames: src.FrameCount(),
		Width:       size.X,
		Height:      size.Y,
	}
	if info.FPS > 0 {
		info.Duration = float64(info.TotalFrames) / info.FPS
	}

	start_frame, end_frame, err := frameRange(info, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	skip := max(1, req.SkipFrames)

	fp, err := vp.new_processor()
	if err != nil {
		return nil, fmt.Errorf("Can't create frame processor: %w", err)
	}
	defer fp.Close()
	if info.FPS > 0 {
		fp.SetFPS(info.FPS)
	}
	rate := fp.FPS()

	if start_frame > 0 {
		src.Seek(start_frame)
	}
	logger.Info("Job started", "path", req.Path, "from", start_frame, "to", end_frame, "skip", skip)

	total := 0
	if end_frame != math.MaxInt {
		total = (end_frame - start_frame + skip - 1) / skip
	}
	frames := make(chan indexed.Indexed[gocv.Mat], vp.opts.QueueLength)
	results := make([]*frame.FrameResult, 0, total)
	failed := 0

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(frames)
		for frame_count := 0; frame_count < end_frame-start_frame; frame_count++ {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Reciever of this is responsible for closing
			img := gocv.NewMat()
			if !src.Read(&img) {
				img.Close()
				return nil
			}
			if frame_count%skip != 0 {
				img.Close()
				continue
			}
			index := start_frame + frame_count
			select {
			case <-gctx.Done():
				img.Close()
				return gctx.Err()
			case frames <- indexed.NewIndexed(uint64(index), float64(index)/rate, img):
			}
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				for f := range frames {
					img := f.Value()
					img.Close()
				}
				return gctx.Err()
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				img := f.Value()
				ts := f.Timestamp()
				r, err := fp.Process(&img, &ts)
				img.Close()
				if err != nil {
					logger.Warn("Frame skipped", "frame", f.Id(), "error", err)
					failed++
					continue
				}
				results = append(results, r)
				if req.Progress != nil {
					req.Progress(len(results)+failed, total)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Job failed", "error", err)
		return nil, err
	}

	result := &Result{
		JobId:           job_id,
		Info:            info,
		ProcessedFrames: len(results),
		FailedFrames:    failed,
		Results:         results,
	}
	if req.ApplyFilter && len(results) >= MinFilterFrames {
		Smooth(results, SmoothOptions{
			Filter:      vp.opts.Filters.Get(req.FilterKind, sampleRate(rate, skip)),
			Interpolate: vp.opts.Interpolate,
			MaxGap:      vp.opts.MaxGap,
		})
		result.Filtered = true
	}
	logger.Info("Job finished",
		"frames", result.ProcessedFrames,
		"failed", failed,
		"filtered", result.Filtered,
		"took", time.Since(started).Round(time.Millisecond))
	return result, nil
}

// sampleRate of the analyzed frames of a video played at fps
func sampleRate(fps float64, skip int) float64 {
	return fps / float64(max(1, skip))
}

// frameRange converts the requested times to a half-open frame range.
// end is math.MaxInt for sources of unknown length.
func frameRange(info VideoInfo, start, end *float64) (int, int, error) {
	if (start != nil || end != nil) && info.FPS <= 0 {
		return 0, 0, fmt.Errorf("video has no frame rate: %w", ERR_BAD_RANGE)
	}
	start_frame := 0
	if start != nil {
		start_frame = int(*start * info.FPS)
	}
	end_frame := info.TotalFrames
	if end != nil {
		end_frame = int(*end * info.FPS)
	} else if info.TotalFrames <= 0 {
		end_frame = math.MaxInt
	}
	if info.TotalFrames > 0 {
		end_frame = min(end_frame, info.TotalFrames)
	}
	switch {
	case start_frame < 0,
		end_frame < start_frame,
		info.TotalFrames > 0 && start != nil && start_frame >= info.TotalFrames:
		return 0, 0, fmt.Errorf("frames [%d, %d) of %d: %w", start_frame, end_frame, info.TotalFrames, ERR_BAD_RANGE)
	}
	return start_frame, end_frame, nil
}
