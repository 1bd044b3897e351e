package main

import (
	// stdlib
	"context"
	"errors"
	"log/slog"
	"time"

	// internal
	"github.com/Robogera/kinematics/pkg/frame"
	"github.com/Robogera/kinematics/pkg/indexed"

	// external
	"gocv.io/x/gocv"
)

// Statistics of one processed frame
type Statistics struct {
	processing_time time.Duration
	persons         int
}

func processor(
	ctx context.Context,
	parent_logger *slog.Logger,
	fp *frame.Processor,
	mat_chan <-chan indexed.Indexed[gocv.Mat],
	out_chan chan<- indexed.Indexed[*frame.FrameResult],
	stats_chan chan<- Statistics,
) error {
	logger := parent_logger.With("coroutine", "processor")
	defer close(out_chan)

	for {
		select {
		case <-ctx.Done():
			for f := range mat_chan {
				img := f.Value()
				img.Close()
			}
			logger.Info("Processor cancelled by context")
			return context.Canceled
		case f, ok := <-mat_chan:
			if !ok {
				logger.Info("Input exhausted")
				return nil
			}
			img := f.Value()
			ts := f.Timestamp()
			started := time.Now()
			result, err := fp.Process(&img, &ts)
			img.Close()
			if errors.Is(err, frame.ERR_EMPTY_IMAGE) {
				logger.Warn("Frame skipped", "frame", f.Id(), "error", err)
				continue
			}
			if err != nil {
				logger.Error("Can't process frame", "frame", f.Id(), "error", err)
				return err
			}

			select {
			case stats_chan <- Statistics{processing_time: time.Since(started), persons: len(result.Persons)}:
			default:
			}

			select {
			case out_chan <- indexed.NewIndexed(f.Id(), result.Timestamp, result):
			default:
				logger.Warn("Result channel full. Droping the frame...", "frame", f.Id(), "capacity", cap(out_chan))
			}
		}
	}
}
