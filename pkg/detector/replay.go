package detector

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Robogera/kinematics/pkg/pose"
	"github.com/tidwall/gjson"
	"gocv.io/x/gocv"
)

// Replay plays back keypoints recorded one frame per line:
//
//	{"persons":[{"score":0.9,"keypoints":{"nose":{"x":1,"y":2,"confidence":0.8}}}]}
//
// Every Detect call consumes the next record regardless of the image.
// Past the last record every frame has no people.
type Replay struct {
	records    [][]byte
	next       int
	thresholds Thresholds
	logger     *slog.Logger
}

func OpenReplay(path string, thresholds Thresholds, logger *slog.Logger) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Can't open replay %s: %w", path, err)
	}
	defer f.Close()
	return NewReplay(f, thresholds, logger)
}

func NewReplay(r io.Reader, thresholds Thresholds, logger *slog.Logger) (*Replay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	records := make([][]byte, 0)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line_no := 0
	for scanner.Scan() {
		line_no++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			return nil, fmt.Errorf("line %d: %w", line_no, ERR_BAD_RECORD)
		}
		records = append(records, bytes.Clone(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Can't read replay: %w", err)
	}
	return &Replay{
		records:    records,
		thresholds: thresholds,
		logger:     logger,
	}, nil
}

func (r *Replay) Len() int { return len(r.records) }

func (r *Replay) Detect(_ *gocv.Mat) ([]pose.Pose, error) {
	if r.next >= len(r.records) {
		return []pose.Pose{}, nil
	}
	record := r.records[r.next]
	r.next++

	candidates := make([]Candidate, 0)
	gjson.GetBytes(record, "persons").ForEach(func(_, person gjson.Result) bool {
		points := make(map[string]pose.Keypoint)
		person.Get("keypoints").ForEach(func(name, k gjson.Result) bool {
			points[name.String()] = pose.Keypoint{
				X:          k.Get("x").Float(),
				Y:          k.Get("y").Float(),
				Confidence: k.Get("confidence").Float(),
			}
			return true
		})
		p, unknown := pose.FromMap(points)
		if len(unknown) > 0 {
			r.logger.Debug("Unknown landmarks ignored", "record", r.next-1, "names", unknown)
		}
		score := p.MeanConfidence()
		if s := person.Get("score"); s.Exists() {
			score = s.Float()
		}
		candidates = append(candidates, Candidate{Score: score, Pose: p})
		return true
	})
	return r.thresholds.Select(candidates, r.logger), nil
}

// Rewind starts the playback over
func (r *Replay) Rewind() { r.next = 0 }

func (r *Replay) Close() error { return nil }
