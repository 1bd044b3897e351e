package main

import (
	// stdlib
	"context"
	"errors"
	"fmt"

	// internal
	"github.com/Robogera/kinematics/pkg/batch"
	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/frame"
	"github.com/Robogera/kinematics/pkg/indexed"

	// external
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

type liveFlags struct {
	input_type string
	path       string
	device     int
	fps        float64
	publish    bool
}

func newLiveCommand(a *app) *cobra.Command {
	f := &liveFlags{}
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Track persons in a camera, stream, video or image folder as frames arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, a.cfg)
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.live(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&f.input_type, "input", "i", "", "Input type: file, webcam, ipc or folder (default from config)")
	cmd.Flags().StringVarP(&f.path, "path", "p", "", "Video file, stream address or image folder")
	cmd.Flags().IntVar(&f.device, "device", 0, "Webcam device index")
	cmd.Flags().Float64Var(&f.fps, "fps", 0, "Frame rate of sources that don't report one")
	cmd.Flags().BoolVar(&f.publish, "publish", false, "Publish results to the MQTT broker")
	return cmd
}

func (f *liveFlags) apply(cmd *cobra.Command, cfg *config.ConfigFile) {
	if f.input_type != "" {
		cfg.Input.Type = f.input_type
	}
	if f.path != "" {
		cfg.Input.Path = f.path
	}
	if cmd.Flags().Changed("device") {
		cfg.Input.Device = f.device
	}
	if f.fps > 0 {
		cfg.Input.FPS = f.fps
	}
	if f.publish {
		cfg.Mqtt.Enabled = true
	}
}

func (a *app) live(ctx context.Context) error {
	logger := a.logger
	cfg := a.cfg

	src, err := batch.OpenInput(&cfg.Input)
	if err != nil {
		logger.Error(
			"Can't open input",
			"type", cfg.Input.Type,
			"address", cfg.Input.Path,
			"error", err)
		return fmt.Errorf("%w: %w", ERR_BAD_INPUT, err)
	}
	defer src.Close()

	fp, err := batch.FactoryFrom(cfg, logger)()
	if err != nil {
		return err
	}
	defer fp.Close()
	if fps := src.FPS(); fps > 0 {
		fp.SetFPS(fps)
	} else if cfg.Input.FPS > 0 {
		fp.SetFPS(cfg.Input.FPS)
	}

	logger.Info("Starting...")

	eg, child_ctx := errgroup.WithContext(ctx)
	queue := max(1, int(cfg.Batch.QueueLength))

	mat_chan := make(chan indexed.Indexed[gocv.Mat], queue)
	results_chan := make(chan indexed.Indexed[*frame.FrameResult], queue)
	stats_chan := make(chan Statistics, queue)

	eg.Go(func() error {
		return streamreader(child_ctx, logger, &cfg.Input, src, mat_chan)
	})

	eg.Go(func() error {
		return processor(child_ctx, logger, fp, mat_chan, results_chan, stats_chan)
	})

	eg.Go(func() error {
		err := mqttclient(child_ctx, logger, &cfg.Mqtt, subject(&cfg.Input), results_chan)
		if err == nil {
			// last stage drained, stop the rest
			return ERR_STREAM_ENDED
		}
		return err
	})

	eg.Go(func() error {
		return stat(
			child_ctx, logger, stats_chan,
			cfg.Logging.StatPeriodSec,
			cfg.Logging.SMAWindow)
	})

	eg.Go(func() error {
		return control(child_ctx, logger)
	})

	err = eg.Wait()
	switch {
	case errors.Is(err, ERR_STREAM_ENDED), errors.Is(err, ERR_INTERRUPTED_BY_USER):
		logger.Info("Stopped", "reason", err)
		return nil
	default:
		logger.Error("Stopped", "error", err)
		return err
	}
}

// subject names the stream in published messages
func subject(cfg *config.InputConfig) string {
	if config.InputType(cfg.Type) == config.InputTypeWebcam {
		return fmt.Sprintf("webcam:%d", cfg.Device)
	}
	return cfg.Path
}
