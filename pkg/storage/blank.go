package storage

import (
	"bytes"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// minimalMP4 is an ftyp box (major brand isom) followed by an empty mdat
// header and padding. It is not playable but sniffs as video/mp4.
var minimalMP4 = append([]byte(
	"\x00\x00\x00\x20ftypisom\x00\x00\x00\x00"+
		"isomiso2avc1mp41"+
		"\x00\x00\x00\x00mdat"),
	make([]byte, 100)...)

// BlankVideo returns the placeholder payload
func BlankVideo() []byte {
	return bytes.Clone(minimalMP4)
}

// IsPlayable reports whether data sniffs as a video container
func IsPlayable(data []byte) bool {
	return strings.HasPrefix(mimetype.Detect(data).String(), "video/")
}
