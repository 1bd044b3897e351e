package main

import (
	// stdlib
	"context"
	"log/slog"
	"time"

	// internal
	"github.com/Robogera/kinematics/pkg/batch"
	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/frame"
	"github.com/Robogera/kinematics/pkg/indexed"

	// external
	"gocv.io/x/gocv"
)

func streamreader(
	ctx context.Context,
	parent_logger *slog.Logger,
	cfg *config.InputConfig,
	src batch.Source,
	mat_chan chan<- indexed.Indexed[gocv.Mat],
) error {
	logger := parent_logger.With("coroutine", "streamreader")
	defer close(mat_chan)

	// recorded sources are timed by their frame rate, devices and
	// streams by the wall clock
	fps := src.FPS()
	if fps <= 0 {
		fps = cfg.FPS
	}
	if fps <= 0 {
		fps = frame.DefaultFPS
	}
	started := time.Now()
	timestamp := func(frame_id uint64) float64 {
		switch config.InputType(cfg.Type) {
		case config.InputTypeFile, config.InputTypeFolder:
			return float64(frame_id) / fps
		default:
			return time.Since(started).Seconds()
		}
	}

	var frame_id uint64 = 0
	logger.Info("Video loop started", "type", cfg.Type, "fps", fps)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Streamreader cancelled by context")
			return context.Canceled
		default:
			// Reciever of this is responsible for closing
			img := gocv.NewMat()
			if !src.Read(&img) {
				img.Close()
				logger.Info("Can't read next frame. Shutting down...", "stream", cfg.Path, "frames", frame_id)
				return nil
			}
			if img.Empty() {
				logger.Warn("Empty frame received, skipping", "stream", cfg.Path)
				img.Close()
				continue
			}

			select {
			case <-ctx.Done():
				img.Close()
				logger.Info("Streamreader cancelled by context")
				return context.Canceled
			case mat_chan <- indexed.NewIndexed(frame_id, timestamp(frame_id), img):
				frame_id++
			}
		}
	}
}
