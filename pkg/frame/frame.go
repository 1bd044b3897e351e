package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"time"

	"github.com/Robogera/kinematics/pkg/angles"
	"github.com/Robogera/kinematics/pkg/assoc"
	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/detector"
	"github.com/Robogera/kinematics/pkg/metrics"
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/Robogera/kinematics/pkg/tracker"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

var (
	ERR_EMPTY_IMAGE = errors.New("Empty image")
)

const DefaultFPS = 30.0

type PersonFrameResult struct {
	PersonId           int
	TrackingConfidence float64
	Color              color.RGBA
	// detector keypoints plus the derived ones
	Pose    pose.Pose
	Angles  angles.Set
	Metrics metrics.Metrics
}

type FrameMetrics struct {
	DetectedPersons   int
	AverageConfidence float64
	ProcessingFPS     float64
}

type FrameResult struct {
	FrameId          int
	Timestamp        float64
	ProcessingTimeMs float64
	Persons          []PersonFrameResult
	FrameMetrics     FrameMetrics
}

// PoseOf makes a FrameResult usable as velocity history
func (f *FrameResult) PoseOf(person_id int) (pose.Pose, bool) {
	for i := range f.Persons {
		if f.Persons[i].PersonId == person_id {
			return f.Persons[i].Pose, true
		}
	}
	return pose.Pose{}, false
}

type Options struct {
	Tracker tracker.Options
	Angles  angles.Options
	// sample rate used when frames come without timestamps
	FPS float64
}

func DefaultOptions() Options {
	return Options{
		Tracker: tracker.DefaultOptions(),
		Angles:  angles.DefaultOptions(),
		FPS:     DefaultFPS,
	}
}

func OptionsFrom(cfg *config.ConfigFile) Options {
	opts := DefaultOptions()
	opts.Tracker.DistanceThreshold = cfg.Tracker.DistanceThreshold
	opts.Tracker.MaxFramesLost = int(cfg.Tracker.MaxFramesLost)
	if config.Assignment(cfg.Tracker.Assignment) == config.AssignmentHungarian {
		opts.Tracker.Solver = assoc.Hungarian
	}
	opts.Angles = angles.Options{
		FlipLeftRight: cfg.Angles.FlipLeftRight,
		Joint:         cfg.Angles.Joint,
		Segment:       cfg.Angles.Segment,
	}
	if cfg.Input.FPS > 0 {
		opts.FPS = cfg.Input.FPS
	}
	return opts
}

// Processor turns the frames of one stream into FrameResults. It owns the
// stream's tracker and previous frame, so every stream needs its own.
// Not safe for concurrent use.
type Processor struct {
	detector    detector.Detector
	tracker     *tracker.PersonTracker
	angles      *angles.Engine
	fps         float64
	frame_count int
	previous    *FrameResult
	logger      *slog.Logger
}

// New takes ownership of the detector, it's closed by Close
func New(d detector.Detector, opts Options, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	return &Processor{
		detector: d,
		tracker:  tracker.New(opts.Tracker, logger.With("component", "tracker")),
		angles:   angles.NewEngine(opts.Angles),
		fps:      opts.FPS,
		logger:   logger,
	}
}

// Process analyzes the next frame of the stream. Without a timestamp
// the frame is placed at frame_id / fps seconds.
func (fp *Processor) Process(img *gocv.Mat, timestamp *float64) (*FrameResult, error) {
	if img == nil || img.Empty() {
		return nil, fmt.Errorf("Frame %d: %w", fp.frame_count, ERR_EMPTY_IMAGE)
	}
	start := time.Now()

	ts := float64(fp.frame_count) / fp.fps
	if timestamp != nil {
		ts = *timestamp
	}

	detections, err := fp.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("Detection failed on frame %d: %w", fp.frame_count, err)
	}
	for i := range detections {
		detections[i] = detections[i].WithDerived()
	}
	tracked, _ := fp.tracker.Update(detections)

	dt := 1 / fp.fps
	if fp.previous != nil {
		if d := ts - fp.previous.Timestamp; d > 0 {
			dt = d
		}
	}

	size := image.Pt(img.Cols(), img.Rows())
	persons := make([]PersonFrameResult, 0, len(tracked))
	for _, t := range tracked {
		m := metrics.Compute(t.Pose, size)
		if fp.previous != nil {
			m.Velocity = metrics.ComputeVelocity(t.PersonId, t.Pose, fp.previous, dt)
		}
		persons = append(persons, PersonFrameResult{
			PersonId:           t.PersonId,
			TrackingConfidence: t.TrackingConfidence,
			Color:              t.Color,
			Pose:               t.Pose,
			Angles:             fp.angles.Compute(t.Pose),
			Metrics:            m,
		})
	}

	elapsed_ms := float64(time.Since(start).Microseconds()) / 1000
	result := &FrameResult{
		FrameId:          fp.frame_count,
		Timestamp:        ts,
		ProcessingTimeMs: round(elapsed_ms, 2),
		Persons:          persons,
		FrameMetrics:     frameMetrics(persons, elapsed_ms),
	}

	fp.previous = result
	fp.frame_count++
	return result, nil
}

// Reset prepares the processor for a new stream
func (fp *Processor) Reset() {
	fp.tracker.Reset()
	fp.previous = nil
	fp.frame_count = 0
}

func (fp *Processor) SetFPS(fps float64) {
	if fps <= 0 {
		fp.logger.Warn("Ignoring non-positive fps", "fps", fps)
		return
	}
	fp.fps = fps
}

func (fp *Processor) FPS() float64 { return fp.fps }

func (fp *Processor) Close() error {
	return fp.detector.Close()
}

func frameMetrics(persons []PersonFrameResult, elapsed_ms float64) FrameMetrics {
	confidences := []float64{}
	for i := range persons {
		persons[i].Pose.Each(func(_ pose.Landmark, k pose.Keypoint) {
			confidences = append(confidences, k.Confidence)
		})
	}
	fm := FrameMetrics{DetectedPersons: len(persons)}
	if len(confidences) > 0 {
		fm.AverageConfidence = round(stat.Mean(confidences, nil), 3)
	}
	if elapsed_ms > 0 {
		fm.ProcessingFPS = round(1000/elapsed_ms, 1)
	}
	return fm
}

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
