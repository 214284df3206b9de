package imagepipeline

import (
	"testing"

	"github.com/ferrex-media/ferrex/internal/ids"
)

func TestVariantKeyIsStablePerImageAndSize(t *testing.T) {
	id := ids.NewImageID()
	k1 := variantKey(id, "poster@500")
	k2 := variantKey(id, "poster@500")
	if k1 != k2 {
		t.Fatal("variantKey should be deterministic for the same inputs")
	}
	if variantKey(id, "poster@342") == k1 {
		t.Fatal("variantKey should differ across sizes")
	}
}

func TestBlobKeyNamespacesVariantKey(t *testing.T) {
	id := ids.NewImageID()
	if blobKey(id, "still@780") == variantKey(id, "still@780") {
		t.Fatal("blobKey should namespace the raw variant key, not equal it")
	}
}
