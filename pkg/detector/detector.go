package detector

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Robogera/kinematics/pkg/config"
	"github.com/Robogera/kinematics/pkg/pose"
	"gocv.io/x/gocv"
)

var (
	ERR_BAD_MODEL    = errors.New("Can't load model")
	ERR_UNKNOWN_KIND = errors.New("Unknown detector kind")
	ERR_BAD_RECORD   = errors.New("Bad replay record")
)

// Detector locates people in an image. Implementations are not safe for
// concurrent use, every stream owns its own.
type Detector interface {
	Detect(img *gocv.Mat) ([]pose.Pose, error)
	Close() error
}

// Candidate is a person as reported by a model, before validation
type Candidate struct {
	Score float64
	Pose  pose.Pose
}

type Thresholds struct {
	// confidence a keypoint needs to count towards the other two
	KeypointLikelihood float64
	// minimal share of confident keypoints
	KeypointNumber float64
	// minimal mean confidence of the confident keypoints
	AverageLikelihood float64
	MaxPersons        int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		KeypointLikelihood: 0.3,
		KeypointNumber:     0.3,
		AverageLikelihood:  0.5,
		MaxPersons:         5,
	}
}

func thresholdsFrom(cfg *config.DetectorConfig) Thresholds {
	return Thresholds{
		KeypointLikelihood: cfg.KeypointLikelihoodThreshold,
		KeypointNumber:     cfg.KeypointNumberThreshold,
		AverageLikelihood:  cfg.AverageLikelihoodThreshold,
		MaxPersons:         int(cfg.MaxPersons),
	}
}

// Accept reports whether a candidate pose is good enough to be tracked
func (th Thresholds) Accept(p *pose.Pose) bool {
	total := p.Len()
	if total == 0 {
		return false
	}
	valid := 0
	var sum float64
	p.Each(func(_ pose.Landmark, k pose.Keypoint) {
		if k.Confidence >= th.KeypointLikelihood {
			valid++
			sum += k.Confidence
		}
	})
	if float64(valid)/float64(total) < th.KeypointNumber {
		return false
	}
	var avg float64
	if valid > 0 {
		avg = sum / float64(valid)
	}
	return avg >= th.AverageLikelihood
}

// Select drops the candidates failing validation and keeps at most
// MaxPersons of the rest, best score first. Zero MaxPersons is no limit.
func (th Thresholds) Select(candidates []Candidate, logger *slog.Logger) []pose.Pose {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	persons := make([]pose.Pose, 0, len(sorted))
	for i := range sorted {
		if th.MaxPersons > 0 && len(persons) >= th.MaxPersons {
			break
		}
		if !th.Accept(&sorted[i].Pose) {
			if logger != nil {
				logger.Debug("Candidate rejected", "score", sorted[i].Score, "keypoints", sorted[i].Pose.Len())
			}
			continue
		}
		persons = append(persons, sorted[i].Pose)
	}
	return persons
}

// New builds the detector configured in cfg
func New(cfg *config.DetectorConfig, logger *slog.Logger) (Detector, error) {
	switch config.DetectorKind(cfg.Kind) {
	case config.DetectorKindYolo:
		return NewYolo(cfg, logger)
	case config.DetectorKindReplay:
		return OpenReplay(cfg.ReplayPath, thresholdsFrom(cfg), logger)
	default:
		return nil, fmt.Errorf("%q: %w", cfg.Kind, ERR_UNKNOWN_KIND)
	}
}
