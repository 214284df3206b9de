package imagepipeline

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ferrex-media/ferrex/internal/ferrors"
	"github.com/ferrex-media/ferrex/internal/ids"
)

// TMDBResolver implements SourceResolver against the TMDB image CDN: a
// configurable base URL, a size segment derived from the SizeDescriptor,
// and the catalog path looked up in the originalImageRepo.
type TMDBResolver struct {
	baseURL   string
	originals *originalImageRepo
}

// NewTMDBResolver wires baseURL (e.g. "https://image.tmdb.org/t/p") and the
// same *sql.DB the pipeline's image repo uses, so the resolver can look up
// the catalog path an ImageID was registered with.
func NewTMDBResolver(db *sql.DB, baseURL string) *TMDBResolver {
	return &TMDBResolver{baseURL: strings.TrimRight(baseURL, "/"), originals: newOriginalImageRepo(db)}
}

// sizeParam maps a SizeDescriptor like "poster@500" or "backdrop@1280" to
// the TMDB size path segment ("w500", "w1280").
func sizeParam(size SizeDescriptor) string {
	parts := strings.SplitN(string(size), "@", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "original"
	}
	return "w" + parts[1]
}

func (t *TMDBResolver) ImageURL(ctx context.Context, imageID ids.ImageID, size SizeDescriptor) (string, error) {
	original, err := t.originals.Get(ctx, imageID)
	if err != nil {
		return "", err
	}
	if original.CatalogPath == "" {
		return "", ferrors.New(ferrors.InvalidMedia, "original image has no catalog path")
	}
	return t.baseURL + "/" + sizeParam(size) + original.CatalogPath, nil
}
