package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/Robogera/kinematics/pkg/gsma"
)

func stat(
	ctx context.Context,
	parent_logger *slog.Logger,
	stats <-chan Statistics,
	stat_period_sec uint,
	sma_window uint,
) error {
	logger := parent_logger.With("coroutine", "stat")
	processing, err := gsma.NewSMA[time.Duration](sma_window)
	if err != nil {
		return err
	}
	persons, err := gsma.NewSMA[int](sma_window)
	if err != nil {
		return err
	}

	var frames uint = 0
	var frames_since_last_tick uint = 0
	period := max(1, stat_period_sec)
	ticker := time.NewTicker(time.Second * time.Duration(period))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stat cancelled by context")
			return context.Canceled
		case s := <-stats:
			frames++
			frames_since_last_tick++
			processing.Recalc(s.processing_time)
			persons.Recalc(s.persons)
		case <-ticker.C:
			avg := time.Duration(processing.Show())
			processing_fps := 0.0
			if avg > 0 {
				processing_fps = float64(time.Second) / float64(avg)
			}
			logger.Info("Stats",
				"frames processed", frames,
				"frames per second", float64(frames_since_last_tick)/float64(period),
				"avg processing time", avg.Round(time.Microsecond),
				"processing fps", processing_fps,
				"avg persons", persons.Show())
			frames_since_last_tick = 0
		}
	}
}
