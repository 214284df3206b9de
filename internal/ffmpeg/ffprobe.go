// Package ffmpeg wraps the ffprobe binary for the technical-metadata probe
// the analyzer runs on every discovered file. Only the fields the analyzer
// actually persists are decoded; everything else in ffprobe's JSON is
// ignored.
package ffmpeg

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

type FFprobe struct{ Path string }

func NewFFprobe(path string) *FFprobe { return &FFprobe{Path: path} }

type ProbeResult struct {
	Format  formatInfo   `json:"format"`
	Streams []streamInfo `json:"streams"`
}

type formatInfo struct {
	Duration string `json:"duration"`
	Bitrate  string `json:"bit_rate"`
}

type streamInfo struct {
	CodecType      string         `json:"codec_type"`
	CodecName      string         `json:"codec_name"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	ColorTransfer  string         `json:"color_transfer"`
	ColorPrimaries string         `json:"color_primaries"`
	SideDataList   []sideDataItem `json:"side_data_list"`
}

type sideDataItem struct {
	SideDataType string `json:"side_data_type"`
}

func (f *FFprobe) Probe(filePath string) (*ProbeResult, error) {
	cmd := exec.Command(f.Path, "-v", "quiet", "-print_format", "json",
		"-show_format", "-show_streams", filePath)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

func (r *ProbeResult) videoStream() *streamInfo {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

func (r *ProbeResult) GetDurationSeconds() int {
	duration, _ := strconv.ParseFloat(r.Format.Duration, 64)
	return int(duration)
}

// GetResolution classifies by both dimensions: slightly letterboxed content
// (e.g. 1920x1036) still counts as 1080p.
func (r *ProbeResult) GetResolution() string {
	s := r.videoStream()
	if s == nil {
		return ""
	}
	switch {
	case s.Height >= 2160 || s.Width >= 3840:
		return "4K"
	case s.Height >= 900 || s.Width >= 1800:
		return "1080p"
	case s.Height >= 600 || s.Width >= 1200:
		return "720p"
	case s.Height >= 400:
		return "480p"
	default:
		return "SD"
	}
}

func (r *ProbeResult) GetVideoCodec() string {
	if s := r.videoStream(); s != nil {
		return s.CodecName
	}
	return ""
}

func (r *ProbeResult) GetAudioCodec() string {
	for _, s := range r.Streams {
		if s.CodecType == "audio" {
			return s.CodecName
		}
	}
	return ""
}

func (r *ProbeResult) GetWidth() int {
	if s := r.videoStream(); s != nil {
		return s.Width
	}
	return 0
}

func (r *ProbeResult) GetHeight() int {
	if s := r.videoStream(); s != nil {
		return s.Height
	}
	return 0
}

// GetHDRFormat returns "" for SDR content. Dolby Vision is detected via
// side data; PQ and HLG via the color transfer, with HDR10 requiring
// BT.2020 primaries on top of PQ.
func (r *ProbeResult) GetHDRFormat() string {
	s := r.videoStream()
	if s == nil {
		return ""
	}
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "DOVI configuration record" || sd.SideDataType == "Dolby Vision RPU Data" {
			return "Dolby Vision"
		}
	}
	switch s.ColorTransfer {
	case "smpte2084":
		if s.ColorPrimaries == "bt2020" {
			return "HDR10"
		}
		return "PQ"
	case "arib-std-b67":
		return "HLG"
	}
	return ""
}

func (r *ProbeResult) GetBitrate() int64 {
	br, _ := strconv.ParseInt(r.Format.Bitrate, 10, 64)
	return br
}
