package jobs

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ffmpeg"
	"github.com/ferrex-media/ferrex/internal/ids"
	"github.com/ferrex-media/ferrex/internal/imagepipeline"
	"github.com/ferrex-media/ferrex/internal/queue"
)

// ImageFetchParams carries everything handleImageFetch needs to materialize
// one variant: either an HTTP-sourced poster/backdrop/still, or — when
// VideoPath is set — a locally-generated episode thumbnail.
type ImageFetchParams struct {
	ImageID   string  `json:"image_id"`
	MediaKind string  `json:"media_kind"`
	MediaID   string  `json:"media_id"`
	Role      string  `json:"role"`
	Size      string  `json:"size"`
	VideoPath string  `json:"video_path,omitempty"`
	TargetPct float64 `json:"target_pct,omitempty"`
}

func (w *Worker) enqueueImageFetch(ctx context.Context, library ids.LibraryID, params ImageFetchParams) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return ferrors.Wrap(ferrors.Internal, "marshal image-fetch params", err)
	}
	_, err = w.queue.Enqueue(ctx, queue.EnqueueRequest{
		Payload: queue.Payload{
			LibraryID: library,
			Kind:      queue.KindImageFetch,
			Params:    payload,
		},
		Priority:  queue.P2,
		DedupeKey: ids.DedupeKey(string(queue.KindImageFetch), library, params.ImageID),
	})
	return err
}

// handleImageFetch materializes one image variant: a network fetch through
// the resolver for catalog artwork, or an ffmpeg frame extraction for
// episode thumbnails. A successfully fetched poster also has its theme
// color extracted and copied onto the owning movie/series/season row.
func (w *Worker) handleImageFetch(ctx context.Context, lease *queue.Lease) error {
	var params ImageFetchParams
	if err := json.Unmarshal(lease.Job.Payload.Params, &params); err != nil {
		return ferrors.Wrap(ferrors.Internal, "unmarshal image-fetch params", err)
	}

	imageUUID, err := uuid.Parse(params.ImageID)
	if err != nil {
		return ferrors.Wrap(ferrors.Internal, "parse image id", err)
	}
	imageID := ids.ImageID(imageUUID)
	size := imagepipeline.SizeDescriptor(params.Size)

	if params.VideoPath != "" {
		probe, err := ffmpeg.NewFFprobe(w.ffprobePath).Probe(params.VideoPath)
		if err != nil {
			return ferrors.Wrap(ferrors.Io, "ffprobe "+params.VideoPath, err)
		}
		if probe.GetWidth() <= 0 || probe.GetHeight() <= 0 {
			return ferrors.New(ferrors.InvalidMedia, "no video stream in "+params.VideoPath)
		}
		targetPct := params.TargetPct
		if targetPct <= 0 {
			targetPct = 0.3
		}
		_, err = w.images.GenerateEpisodeThumbnail(ctx, imageID, size, w.ffmpegPath, params.VideoPath,
			probe.GetDurationSeconds(), targetPct, probe.GetWidth(), probe.GetHeight())
		return err
	}

	if _, err := w.images.CachedImage(ctx, imageID, size, imagepipeline.Ensure); err != nil {
		return err
	}

	if params.Role != string(imagepipeline.RolePoster) {
		return nil
	}
	color, err := w.images.GeneratePosterThemeColor(ctx, imageID, size)
	if ferrors.Is(err, ferrors.InvalidMedia) {
		// Grayscale or transparent posters yield no usable samples; the
		// variant itself materialized fine, so don't fail the job over it.
		return nil
	}
	if err != nil {
		return err
	}
	mediaID, err := parseMediaID(params.MediaKind, params.MediaID)
	if err != nil {
		return err
	}
	if mediaID.Kind == ids.KindEpisode {
		return nil
	}
	return w.mediarepo.SetThemeColor(ctx, mediaID, color)
}

func parseMediaID(kind, idStr string) (ids.MediaID, error) {
	u, err := uuid.Parse(idStr)
	if err != nil {
		return ids.MediaID{}, ferrors.Wrap(ferrors.Internal, "parse media id", err)
	}
	switch ids.MediaKind(kind) {
	case ids.KindMovie:
		return ids.MovieMediaID(ids.MovieID(u)), nil
	case ids.KindSeries:
		return ids.SeriesMediaID(ids.SeriesID(u)), nil
	case ids.KindSeason:
		return ids.SeasonMediaID(ids.SeasonID(u)), nil
	case ids.KindEpisode:
		return ids.EpisodeMediaID(ids.EpisodeID(u)), nil
	default:
		return ids.MediaID{}, ferrors.New(ferrors.Internal, "unknown media kind: "+kind)
	}
}
