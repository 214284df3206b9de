// Package imagepipeline turns an (image, size, policy) request into a
// cached, materialized, integrity-checked file and an ImageReady event.
package imagepipeline

import (
	"time"

	"github.com/ferrex-media/ferrex/internal/ids"
)

// SizeDescriptor names a rendered variant, e.g. "poster@500" or "still@780".
type SizeDescriptor string

type Policy int

const (
	// Ensure returns the existing record if the DB attests the variant is
	// cached; Refresh always forces a fetch.
	Ensure Policy = iota
	Refresh
)

func (p Policy) String() string {
	if p == Refresh {
		return "refresh"
	}
	return "ensure"
}

// Record is the durable row backing one (image, size) variant: the blob
// digest and file-store token once materialized, or empty if never
// successfully fetched.
type Record struct {
	ImageID    ids.ImageID
	Size       SizeDescriptor
	Digest     string
	Token      string
	ByteLen    int64
	ThemeColor string // six hex digits, posters only
	LastError  string
	UpdatedAt  time.Time
}

func (r Record) cached() bool {
	return r.Token != "" && r.Digest != ""
}
