package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ferrex-media/ferrex/internal/classify"
	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ffmpeg"
	"github.com/ferrex-media/ferrex/internal/ids"
	"github.com/ferrex-media/ferrex/internal/mediarepo"
	"github.com/ferrex-media/ferrex/internal/queue"
)

type MediaAnalyzeParams struct {
	FilePath string `json:"file_path"`
}

// technicalMeta is the shape stored in media_files.technical_metadata,
// populated from ffprobe's output.
type technicalMeta struct {
	DurationSeconds int    `json:"duration_seconds"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Resolution      string `json:"resolution"`
	VideoCodec      string `json:"video_codec"`
	AudioCodec      string `json:"audio_codec"`
	HDRFormat       string `json:"hdr_format,omitempty"`
	BitrateBps      int64  `json:"bitrate_bps"`
}

// handleMediaAnalyze probes the file's technical metadata with ffprobe,
// stores the media_files row, classifies the filename, and hands off to
// MetadataEnrich for the files classification found enough signal in.
func (w *Worker) handleMediaAnalyze(ctx context.Context, lease *queue.Lease) error {
	var params MediaAnalyzeParams
	if err := json.Unmarshal(lease.Job.Payload.Params, &params); err != nil {
		return ferrors.Wrap(ferrors.Internal, "unmarshal media-analyze params", err)
	}

	info, err := os.Stat(params.FilePath)
	if err != nil {
		return ferrors.Wrap(ferrors.Io, "stat media file", err)
	}

	probe, err := ffmpeg.NewFFprobe(w.ffprobePath).Probe(params.FilePath)
	if err != nil {
		return ferrors.Wrap(ferrors.Io, "ffprobe "+params.FilePath, err)
	}

	meta := technicalMeta{
		DurationSeconds: probe.GetDurationSeconds(),
		Width:           probe.GetWidth(),
		Height:          probe.GetHeight(),
		Resolution:      probe.GetResolution(),
		VideoCodec:      probe.GetVideoCodec(),
		AudioCodec:      probe.GetAudioCodec(),
		HDRFormat:       probe.GetHDRFormat(),
		BitrateBps:      probe.GetBitrate(),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return ferrors.Wrap(ferrors.Internal, "marshal technical metadata", err)
	}

	fileID, err := w.mediarepo.StoreMediaFile(ctx, mediarepo.MediaFile{
		LibraryID:     lease.Job.LibraryID,
		FilePath:      params.FilePath,
		Filename:      filepath.Base(params.FilePath),
		FileSize:      info.Size(),
		TechnicalMeta: metaJSON,
	})
	if err != nil {
		return err
	}

	parsed := classify.Classify(params.FilePath)
	if !classifyEligible(parsed) {
		return nil
	}

	return w.enqueueMetadataEnrich(ctx, lease.Job.LibraryID, fileID, params.FilePath, parsed)
}

func (w *Worker) enqueueMetadataEnrich(ctx context.Context, library ids.LibraryID, fileID mediarepo.FileID, filePath string, parsed classify.ParsedMediaInfo) error {
	params, err := json.Marshal(MetadataEnrichParams{FileID: fileID.String(), FilePath: filePath, Parsed: parsed})
	if err != nil {
		return ferrors.Wrap(ferrors.Internal, "marshal metadata-enrich params", err)
	}
	_, err = w.queue.Enqueue(ctx, queue.EnqueueRequest{
		Payload: queue.Payload{
			LibraryID: library,
			Kind:      queue.KindMetadataEnrich,
			Params:    params,
		},
		Priority:  queue.P1,
		DedupeKey: ids.DedupeKey(string(queue.KindMetadataEnrich), library, filePath),
	})
	return err
}
