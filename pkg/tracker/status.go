package tracker

import (
	"fmt"
)

type TrackStatus interface {
	String() string
}

type TrackStatusAssociated struct {
	det int
	dst float64
}

func (ts TrackStatusAssociated) String() string {
	return fmt.Sprintf("Associated with detection %d. Moved %.2fpx", ts.det, ts.dst)
}

type TrackStatusNew struct {
	det    int
	center Point
}

func (ts TrackStatusNew) String() string {
	return fmt.Sprintf("New: detection %d at %.1fx%.1f", ts.det, ts.center.X, ts.center.Y)
}

type TrackStatusLost struct {
	frames_lost int
}

func (ts TrackStatusLost) String() string {
	return fmt.Sprintf("Lost for %d frames", ts.frames_lost)
}

type TrackStatusDeleted struct {
	frames_lost int
	last_center Point
}

func (ts TrackStatusDeleted) String() string {
	return fmt.Sprintf("Deleted: lost for %d frames. Last known center: %.1fx%.1f",
		ts.frames_lost, ts.last_center.X, ts.last_center.Y)
}
