package tracker

import (
	"image/color"
	"log/slog"

	"github.com/Robogera/kinematics/pkg/assoc"
	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/muesli/gamut"
)

const (
	DefaultDistanceThreshold = 100.0
	DefaultMaxFramesLost     = 30
	// confidence of a detection that started a new track
	NewTrackConfidence = 0.5
)

type Point = assoc.Point

type Options struct {
	// Detections farther than this from a track's last center in pixels
	// can't continue it
	DistanceThreshold float64
	// Tracks unmatched for more frames than this are deleted
	MaxFramesLost int
	// Greedy when nil
	Solver assoc.Solver
}

func DefaultOptions() Options {
	return Options{
		DistanceThreshold: DefaultDistanceThreshold,
		MaxFramesLost:     DefaultMaxFramesLost,
		Solver:            assoc.Greedy,
	}
}

type Track struct {
	id               int
	last_center      Point
	frames_lost      int
	created_at_frame int
	last_seen_frame  int
	color            color.RGBA
}

func (t *Track) Id() int             { return t.id }
func (t *Track) LastCenter() Point   { return t.last_center }
func (t *Track) FramesLost() int     { return t.frames_lost }
func (t *Track) CreatedAtFrame() int { return t.created_at_frame }
func (t *Track) LastSeenFrame() int  { return t.last_seen_frame }
func (t *Track) Color() color.RGBA   { return t.color }

// Tracked is a detection with the identity the tracker assigned to it
type Tracked struct {
	PersonId           int
	TrackingConfidence float64
	Pose               pose.Pose
	Color              color.RGBA
}

// PersonTracker keeps identities of people across the frames of one
// stream. Not safe for concurrent use.
type PersonTracker struct {
	opts       Options
	logger     *slog.Logger
	tracks     []*Track
	next_id    int
	frame      int
	next_color color.Color
}

func New(opts Options, logger *slog.Logger) *PersonTracker {
	if opts.Solver == nil {
		opts.Solver = assoc.Greedy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PersonTracker{
		opts:       opts,
		logger:     logger,
		tracks:     make([]*Track, 0),
		next_color: color.RGBA{255, 0, 0, 255},
	}
}

// Update assigns an identity to every detection of the next frame.
// Continued tracks come first in track creation order, then the new
// ones in detection order. The statuses of every track touched in this
// frame are returned by track id.
func (pt *PersonTracker) Update(detections []pose.Pose) ([]Tracked, map[int]TrackStatus) {
	pt.frame++
	statuses := make(map[int]TrackStatus, len(pt.tracks)+len(detections))

	centers := make([]Point, len(detections))
	for i := range detections {
		centers[i] = Center(&detections[i])
	}
	last_centers := make([]Point, len(pt.tracks))
	for i, track := range pt.tracks {
		last_centers[i] = track.last_center
	}

	tracked := make([]Tracked, 0, len(detections))
	matched_tracks := make([]bool, len(pt.tracks))
	matched_dets := make([]bool, len(detections))

	if len(detections) > 0 && len(pt.tracks) > 0 {
		dist := assoc.DistanceMatrix(last_centers, centers)
		pt.logger.Debug("Distances", "frame", pt.frame, "matrix", dist)
		assocs := pt.opts.Solver(dist, pt.opts.DistanceThreshold)
		// solvers may return pairs in any order
		by_track := make(map[int]assoc.Assoc, len(assocs))
		for _, a := range assocs {
			by_track[a.Track] = a
		}
		for ind, track := range pt.tracks {
			a, ok := by_track[ind]
			if !ok {
				continue
			}
			matched_tracks[ind] = true
			matched_dets[a.Det] = true
			track.last_center = centers[a.Det]
			track.frames_lost = 0
			track.last_seen_frame = pt.frame
			tracked = append(tracked, Tracked{
				PersonId:           track.id,
				TrackingConfidence: 1 - a.Dist/pt.opts.DistanceThreshold,
				Pose:               detections[a.Det],
				Color:              track.color,
			})
			statuses[track.id] = TrackStatusAssociated{det: a.Det, dst: a.Dist}
		}
	}

	kept := pt.tracks[:0]
	for ind, track := range pt.tracks {
		if matched_tracks[ind] {
			kept = append(kept, track)
			continue
		}
		track.frames_lost++
		if track.frames_lost > pt.opts.MaxFramesLost {
			statuses[track.id] = TrackStatusDeleted{frames_lost: track.frames_lost, last_center: track.last_center}
			continue
		}
		statuses[track.id] = TrackStatusLost{frames_lost: track.frames_lost}
		kept = append(kept, track)
	}
	clear(pt.tracks[len(kept):])
	pt.tracks = kept

	for ind := range detections {
		if matched_dets[ind] {
			continue
		}
		track := pt.newTrack(centers[ind])
		tracked = append(tracked, Tracked{
			PersonId:           track.id,
			TrackingConfidence: NewTrackConfidence,
			Pose:               detections[ind],
			Color:              track.color,
		})
		statuses[track.id] = TrackStatusNew{det: ind, center: track.last_center}
	}

	for id, status := range statuses {
		pt.logger.Debug("Track", "id", id, "frame", pt.frame, "status", status)
	}
	return tracked, statuses
}

func (pt *PersonTracker) newTrack(center Point) *Track {
	pt.next_color = gamut.HueOffset(pt.next_color, 153)
	r, g, b, _ := pt.next_color.RGBA()
	track := &Track{
		id:               pt.next_id,
		last_center:      center,
		created_at_frame: pt.frame,
		last_seen_frame:  pt.frame,
		color:            color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), 255},
	}
	pt.next_id++
	pt.tracks = append(pt.tracks, track)
	return track
}

// Tracks currently alive, oldest first
func (pt *PersonTracker) Tracks() []*Track {
	return pt.tracks
}

// Frames seen since creation or the last Reset
func (pt *PersonTracker) Frame() int {
	return pt.frame
}

// Reset forgets every track. Ids keep increasing so that an id is never
// given to two different people by the same tracker.
func (pt *PersonTracker) Reset() {
	clear(pt.tracks)
	pt.tracks = pt.tracks[:0]
	pt.frame = 0
}

// Center of a detection: the hip center when present, otherwise the mean
// of every confident keypoint, otherwise the origin
func Center(p *pose.Pose) Point {
	if k, ok := p.Get(pose.HipCenter); ok {
		return Point{X: k.X, Y: k.Y}
	}
	var sx, sy float64
	n := 0
	p.Each(func(_ pose.Landmark, k pose.Keypoint) {
		if k.Valid() {
			sx += k.X
			sy += k.Y
			n++
		}
	})
	if n == 0 {
		return Point{}
	}
	return Point{X: sx / float64(n), Y: sy / float64(n)}
}
