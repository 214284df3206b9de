package imagepipeline

import (
	"context"
	"database/sql"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

// imageRepo is the durable half of a variant: image_variants rows record
// whether the cache attests a (image, size) pair is materialized, so Ensure
// can answer without touching the network or the blob store.
type imageRepo struct {
	db *sql.DB
}

func newImageRepo(db *sql.DB) *imageRepo {
	return &imageRepo{db: db}
}

func (r *imageRepo) get(ctx context.Context, imageID ids.ImageID, size SizeDescriptor) (Record, error) {
	var rec Record
	rec.ImageID, rec.Size = imageID, size
	var digest, token, theme, lastErr sql.NullString
	var byteLen sql.NullInt64
	var updatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT digest, token, byte_len, theme_color, last_error, updated_at
		FROM image_variants WHERE image_id = $1 AND size_param = $2
	`, uuidOf(imageID), string(size)).Scan(&digest, &token, &byteLen, &theme, &lastErr, &updatedAt)
	if err == sql.ErrNoRows {
		return Record{}, ferrors.New(ferrors.NotFound, "image variant record not found")
	}
	if err != nil {
		return Record{}, ferrors.Wrap(ferrors.Database, "fetch image variant record", err)
	}

	rec.Digest, rec.Token, rec.ThemeColor, rec.LastError = digest.String, token.String, theme.String, lastErr.String
	rec.ByteLen = byteLen.Int64
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}
	return rec, nil
}

// upsert records a successful materialization.
func (r *imageRepo) upsert(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO image_variants (image_id, size_param, digest, token, byte_len, theme_color, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', now())
		ON CONFLICT (image_id, size_param) DO UPDATE SET
			digest = EXCLUDED.digest, token = EXCLUDED.token, byte_len = EXCLUDED.byte_len,
			theme_color = CASE WHEN EXCLUDED.theme_color <> '' THEN EXCLUDED.theme_color ELSE image_variants.theme_color END,
			last_error = '', updated_at = now()
	`, uuidOf(rec.ImageID), string(rec.Size), rec.Digest, rec.Token, rec.ByteLen, rec.ThemeColor)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "upsert image variant record", err)
	}
	return nil
}

// recordFailure leaves any previously-cached record in place (the original
// keeps a stale-but-readable record on repeated refresh failure; confirmed
// as the intended behavior rather than invalidating it) but stamps the
// last error for operator visibility.
func (r *imageRepo) recordFailure(ctx context.Context, imageID ids.ImageID, size SizeDescriptor, cause string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO image_variants (image_id, size_param, digest, token, byte_len, theme_color, last_error, updated_at)
		VALUES ($1, $2, '', '', 0, '', $3, now())
		ON CONFLICT (image_id, size_param) DO UPDATE SET last_error = $3, updated_at = now()
	`, uuidOf(imageID), string(size), cause)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "record image variant failure", err)
	}
	return nil
}

// allDigests returns the set of blob digests any image_variants row still
// references, used by housekeeping to find orphaned blob-store entries.
func (r *imageRepo) allDigests(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT digest FROM image_variants WHERE digest <> ''`)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "list image variant digests", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var digest string
		if err := rows.Scan(&digest); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan image variant digest", err)
		}
		out[digest] = true
	}
	return out, rows.Err()
}

func uuidOf(id ids.ImageID) string { return id.String() }
