package imagepipeline

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

// Role names which kind of artwork an OriginalImage represents; distinct
// from SizeDescriptor, which names a rendered variant size of that role.
type Role string

const (
	RolePoster    Role = "poster"
	RoleBackdrop  Role = "backdrop"
	RoleStill     Role = "still"
	RoleThumbnail Role = "thumbnail"
)

// OriginalImage is the catalog-sourced or locally-generated "original" a
// variant is rendered from: an owning media entity, its role, and either a
// catalog-provider path (TMDB poster_path/backdrop_path) or, for episode
// thumbnails, nothing at all since those are generated from the video file
// directly rather than fetched.
type OriginalImage struct {
	ID          ids.ImageID
	MediaID     ids.MediaID
	Role        Role
	CatalogPath string
	IsPrimary   bool
}

type originalImageRepo struct {
	db *sql.DB
}

func newOriginalImageRepo(db *sql.DB) *originalImageRepo { return &originalImageRepo{db: db} }

// Create registers a new original image row, generating its ImageID.
func (r *originalImageRepo) Create(ctx context.Context, mediaID ids.MediaID, role Role, catalogPath string, isPrimary bool) (ids.ImageID, error) {
	imageID := ids.NewImageID()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO images (id, media_kind, media_id, role, catalog_path, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, uuid.UUID(imageID), string(mediaID.Kind), mediaID.String(), string(role), catalogPath, isPrimary)
	if err != nil {
		return ids.ImageID{}, ferrors.Wrap(ferrors.Database, "create original image", err)
	}
	return imageID, nil
}

// GetByMedia returns the primary original image for (media, role), if any.
func (r *originalImageRepo) GetByMedia(ctx context.Context, mediaID ids.MediaID, role Role) (*OriginalImage, error) {
	var img OriginalImage
	var imageUUID uuid.UUID
	img.MediaID = mediaID
	img.Role = role
	err := r.db.QueryRowContext(ctx, `
		SELECT id, catalog_path, is_primary FROM images
		WHERE media_kind = $1 AND media_id = $2 AND role = $3 AND is_primary = true
		ORDER BY created_at DESC LIMIT 1
	`, string(mediaID.Kind), mediaID.String(), string(role)).Scan(&imageUUID, &img.CatalogPath, &img.IsPrimary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get original image by media", err)
	}
	img.ID = ids.ImageID(imageUUID)
	return &img, nil
}

// Get looks up the original image row an ImageID belongs to, the half the
// resolver needs to turn it into a fetchable URL.
func (r *originalImageRepo) Get(ctx context.Context, imageID ids.ImageID) (OriginalImage, error) {
	var img OriginalImage
	var kind, mediaIDStr string
	img.ID = imageID
	err := r.db.QueryRowContext(ctx, `
		SELECT media_kind, media_id, role, catalog_path, is_primary FROM images WHERE id = $1
	`, uuid.UUID(imageID)).Scan(&kind, &mediaIDStr, &img.Role, &img.CatalogPath, &img.IsPrimary)
	if err == sql.ErrNoRows {
		return OriginalImage{}, ferrors.New(ferrors.NotFound, "original image not found")
	}
	if err != nil {
		return OriginalImage{}, ferrors.Wrap(ferrors.Database, "get original image", err)
	}
	img.MediaID = mediaIDFromParts(ids.MediaKind(kind), mediaIDStr)
	return img, nil
}

func mediaIDFromParts(kind ids.MediaKind, idStr string) ids.MediaID {
	u, err := uuid.Parse(idStr)
	if err != nil {
		return ids.MediaID{}
	}
	switch kind {
	case ids.KindMovie:
		return ids.MovieMediaID(ids.MovieID(u))
	case ids.KindSeries:
		return ids.SeriesMediaID(ids.SeriesID(u))
	case ids.KindSeason:
		return ids.SeasonMediaID(ids.SeasonID(u))
	case ids.KindEpisode:
		return ids.EpisodeMediaID(ids.EpisodeID(u))
	default:
		return ids.MediaID{}
	}
}
