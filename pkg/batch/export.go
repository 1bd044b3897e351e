package batch

import "github.com/Robogera/kinematics/pkg/frame"

type VideoInfoExport struct {
	FPS         float64 `json:"fps"`
	TotalFrames int     `json:"total_frames"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Duration    float64 `json:"duration"`
}

type ResultExport struct {
	JobId           string              `json:"job_id"`
	VideoInfo       VideoInfoExport     `json:"video_info"`
	ProcessedFrames int                 `json:"processed_frames"`
	FailedFrames    int                 `json:"failed_frames"`
	Filtered        bool                `json:"filtered"`
	Results         []frame.FrameExport `json:"results"`
}

func (r *Result) Export() ResultExport {
	results := make([]frame.FrameExport, len(r.Results))
	for i, f := range r.Results {
		results[i] = f.Export()
	}
	return ResultExport{
		JobId: r.JobId.String(),
		VideoInfo: VideoInfoExport{
			FPS:         r.Info.FPS,
			TotalFrames: r.Info.TotalFrames,
			Width:       r.Info.Width,
			Height:      r.Info.Height,
			Duration:    r.Info.Duration,
		},
		ProcessedFrames: r.ProcessedFrames,
		FailedFrames:    r.FailedFrames,
		Filtered:        r.Filtered,
		Results:         results,
	}
}
