// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package imagecache

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// MIME types reported by SniffMIME.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEGIF  = "image/gif"
	MIMEWEBP = "image/webp"
)

var (
	pngSignature = []byte{0x89, 'P', 'N', 'G'}
	gifSignature = []byte("GIF8")
	riffTag      = []byte("RIFF")
	webpTag      = []byte("WEBP")
)

// ContentHash returns the hex SHA-256 digest of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SniffMIME guesses the MIME type of image bytes from their signature.
// Anything unrecognised is reported as JPEG.
func SniffMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pngSignature):
		return MIMEPNG
	case bytes.HasPrefix(data, gifSignature):
		return MIMEGIF
	case len(data) >= 12 && bytes.Equal(data[:4], riffTag) && bytes.Equal(data[8:12], webpTag):
		return MIMEWEBP
	default:
		return MIMEJPEG
	}
}

// DataURI inlines data as a base64 data URI with a sniffed MIME type.
func DataURI(data []byte) string {
	mime := SniffMIME(data)
	enc := base64.StdEncoding
	buf := make([]byte, 0, len("data:;base64,")+len(mime)+enc.EncodedLen(len(data)))
	buf = append(buf, "data:"...)
	buf = append(buf, mime...)
	buf = append(buf, ";base64,"...)
	buf = enc.AppendEncode(buf, data)
	return string(buf)
}
