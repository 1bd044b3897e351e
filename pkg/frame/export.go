package frame

import (
	"fmt"

	"github.com/Robogera/kinematics/pkg/angles"
	"github.com/Robogera/kinematics/pkg/pose"
)

// Export form of the results: plain values with the rounding consumers
// expect, ready for any serializer

type KeypointExport struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

type PointExport struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type MetricsExport struct {
	HeightPixels      float64     `json:"height_pixels"`
	HeightRatio       float64     `json:"height_ratio"`
	CenterOfMass      PointExport `json:"center_of_mass"`
	VisibleSide       string      `json:"visible_side"`
	MovementDirection string      `json:"movement_direction"`
	Velocity          PointExport `json:"velocity"`
}

type PersonExport struct {
	PersonId           int                       `json:"person_id"`
	TrackingConfidence float64                   `json:"tracking_confidence"`
	Color              string                    `json:"color"`
	Keypoints          map[string]KeypointExport `json:"keypoints"`
	// nil for angles that couldn't be measured
	JointAngles   map[string]*float64 `json:"joint_angles"`
	SegmentAngles map[string]*float64 `json:"segment_angles"`
	Metrics       MetricsExport       `json:"metrics"`
}

type FrameMetricsExport struct {
	DetectedPersons   int     `json:"detected_persons"`
	AverageConfidence float64 `json:"average_confidence"`
	ProcessingFPS     float64 `json:"processing_fps"`
}

type FrameExport struct {
	FrameId          int                `json:"frame_id"`
	Timestamp        float64            `json:"timestamp"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	Persons          []PersonExport     `json:"persons"`
	FrameMetrics     FrameMetricsExport `json:"frame_metrics"`
}

func (f *FrameResult) Export() FrameExport {
	persons := make([]PersonExport, len(f.Persons))
	for i := range f.Persons {
		persons[i] = f.Persons[i].Export()
	}
	return FrameExport{
		FrameId:          f.FrameId,
		Timestamp:        f.Timestamp,
		ProcessingTimeMs: f.ProcessingTimeMs,
		Persons:          persons,
		FrameMetrics: FrameMetricsExport{
			DetectedPersons:   f.FrameMetrics.DetectedPersons,
			AverageConfidence: f.FrameMetrics.AverageConfidence,
			ProcessingFPS:     f.FrameMetrics.ProcessingFPS,
		},
	}
}

func (p *PersonFrameResult) Export() PersonExport {
	keypoints := make(map[string]KeypointExport, p.Pose.Len())
	p.Pose.Each(func(l pose.Landmark, k pose.Keypoint) {
		keypoints[l.String()] = KeypointExport{
			X:          round(k.X, 2),
			Y:          round(k.Y, 2),
			Confidence: round(k.Confidence, 3),
		}
	})
	m := p.Metrics
	return PersonExport{
		PersonId:           p.PersonId,
		TrackingConfidence: p.TrackingConfidence,
		Color:              fmt.Sprintf("#%02x%02x%02x", p.Color.R, p.Color.G, p.Color.B),
		Keypoints:          keypoints,
		JointAngles:        exportAngles(p.Angles.Joint),
		SegmentAngles:      exportAngles(p.Angles.Segment),
		Metrics: MetricsExport{
			HeightPixels:      m.HeightPixels,
			HeightRatio:       m.HeightRatio,
			CenterOfMass:      PointExport{m.CenterOfMass.X, m.CenterOfMass.Y},
			VisibleSide:       string(m.VisibleSide),
			MovementDirection: string(m.MovementDirection),
			Velocity:          PointExport{m.Velocity.X, m.Velocity.Y},
		},
	}
}

func exportAngles(set map[string]angles.Angle) map[string]*float64 {
	out := make(map[string]*float64, len(set))
	for name, a := range set {
		out[name] = a.Ptr()
	}
	return out
}
