// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package imagecache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WEBP with image.Decode
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultEarlyMaxDimension bounds the longest side of a pending attachment.
	DefaultEarlyMaxDimension = 2048

	// DefaultEarlyQuality is the JPEG quality used at attachment time.
	DefaultEarlyQuality = 0.82

	// DefaultQuality is used when a caller passes a non-positive quality.
	DefaultQuality = 0.8

	// RetryQuality is the fixed quality of the second compression attempt.
	RetryQuality = 0.6

	// ShrinkFactor scales the longest side before compression.
	ShrinkFactor = 0.85
)

// ErrDecode is returned when bytes are not a supported raster format.
var ErrDecode = errors.New("unsupported or corrupt image")

// ErrInvalidSize is returned for a non-positive thumbnail size.
var ErrInvalidSize = errors.New("invalid pixel size")

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Codec.
type Options struct {
	Decoded    PoolLimits
	Thumbnails PoolLimits
	Compressed PoolLimits
	Logger     *slog.Logger
}

// DefaultOptions returns pool ceilings sized for a phone-class device.
func DefaultOptions() Options {
	return Options{
		Decoded:    PoolLimits{MaxEntries: 16, MaxBytes: 128 * 1024 * 1024},
		Thumbnails: PoolLimits{MaxEntries: 200, MaxBytes: 32 * 1024 * 1024},
		Compressed: PoolLimits{MaxEntries: 32, MaxBytes: 64 * 1024 * 1024},
	}
}

// =============================================================================
// CODEC
// =============================================================================

// Codec decodes, scales and re-encodes images and caches every artifact.
// Codec is safe for concurrent use.
type Codec struct {
	decoded    *lruPool[image.Image]
	thumbnails *lruPool[image.Image]
	compressed *lruPool[[]byte]

	flights singleflight.Group
	decodes atomic.Int64
	logger  *slog.Logger
}

// Stats holds statistics for all pools.
type Stats struct {
	Decoded    PoolStats
	Thumbnails PoolStats
	Compressed PoolStats

	// Decodes counts real decodes, excluding cache hits.
	Decodes int64
}

// NewCodec creates a codec with the given pool ceilings.
func NewCodec(opts Options) *Codec {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Codec{
		decoded:    newPool[image.Image]("decoded", opts.Decoded),
		thumbnails: newPool[image.Image]("thumbnails", opts.Thumbnails),
		compressed: newPool[[]byte]("compressed", opts.Compressed),
		logger:     logger.With("component", "imagecache"),
	}
}

// Stats returns a snapshot of cache statistics.
func (c *Codec) Stats() Stats {
	return Stats{
		Decoded:    c.decoded.stats(),
		Thumbnails: c.thumbnails.stats(),
		Compressed: c.compressed.stats(),
		Decodes:    c.decodes.Load(),
	}
}

// Purge drops every cached artifact, for example under memory pressure.
func (c *Codec) Purge() {
	c.decoded.purge()
	c.thumbnails.purge()
	c.compressed.purge()
	c.logger.Debug("image caches purged")
}

// Decode returns the full-resolution raster with EXIF orientation applied.
func (c *Codec) Decode(data []byte) (image.Image, error) {
	return c.decode(ContentHash(data), data)
}

func (c *Codec) decode(hash string, data []byte) (image.Image, error) {
	key := hash + "/decoded"
	if img, ok := c.decoded.get(key); ok {
		return img, nil
	}

	v, err, _ := c.flights.Do(key, func() (any, error) {
		if img, ok := c.decoded.get(key); ok {
			return img, nil
		}
		c.decodes.Add(1)
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		c.decoded.put(key, img, rasterSize(img))
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Thumbnail returns a copy of the image scaled so its longest side is at most
// maxPixel. Aspect ratio is preserved and small images are never upscaled.
func (c *Codec) Thumbnail(data []byte, maxPixel int) (image.Image, error) {
	if maxPixel <= 0 {
		return nil, fmt.Errorf("thumbnail %d: %w", maxPixel, ErrInvalidSize)
	}
	hash := ContentHash(data)
	key := fmt.Sprintf("%s/thumbnail@%d", hash, maxPixel)
	if img, ok := c.thumbnails.get(key); ok {
		return img, nil
	}

	v, err, _ := c.flights.Do(key, func() (any, error) {
		if img, ok := c.thumbnails.get(key); ok {
			return img, nil
		}
		src, err := c.decode(hash, data)
		if err != nil {
			return nil, err
		}
		thumb := imaging.Fit(src, maxPixel, maxPixel, imaging.Lanczos)
		c.thumbnails.put(key, thumb, rasterSize(thumb))
		return thumb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Compress returns data unchanged when it already fits in maxBytes. Otherwise
// it re-encodes the image as JPEG at ShrinkFactor of its longest side and the
// given quality, retrying once at RetryQuality if still too large, and returns
// the smallest result. Compress never fails: undecodable input is returned
// as is.
func (c *Codec) Compress(data []byte, maxBytes int, quality float64) []byte {
	if len(data) <= maxBytes {
		return data
	}
	quality = normalizeQuality(quality, DefaultQuality)
	hash := ContentHash(data)
	key := fmt.Sprintf("%s/compressed@%d+%.2f", hash, maxBytes, quality)
	if out, ok := c.compressed.get(key); ok {
		return out
	}

	v, _, _ := c.flights.Do(key, func() (any, error) {
		if out, ok := c.compressed.get(key); ok {
			return out, nil
		}
		src, err := c.decode(hash, data)
		if err != nil {
			c.logger.Debug("compress passthrough", "hash", hash[:12], "error", err)
			return data, nil
		}

		target := scaledDimension(src, ShrinkFactor)
		resized := imaging.Fit(src, target, target, imaging.Lanczos)

		best := data
		for _, q := range []float64{quality, RetryQuality} {
			encoded, err := encodeJPEG(resized, q)
			if err != nil {
				c.logger.Warn("jpeg encode failed", "hash", hash[:12], "quality", q, "error", err)
				continue
			}
			if len(encoded) < len(best) {
				best = encoded
			}
			if len(encoded) <= maxBytes {
				break
			}
		}

		c.logger.Debug("image compressed",
			"hash", hash[:12],
			"from_bytes", len(data),
			"to_bytes", len(best),
			"max_bytes", maxBytes,
		)
		c.compressed.put(key, best, int64(len(best)))
		return best, nil
	})
	return v.([]byte)
}

// EarlyDownscale bounds a freshly attached photo to maxDim on its longest side
// and re-encodes it as JPEG. Non-positive arguments select
// DefaultEarlyMaxDimension and DefaultEarlyQuality. Undecodable input is
// returned unchanged.
func (c *Codec) EarlyDownscale(data []byte, maxDim int, quality float64) []byte {
	if maxDim <= 0 {
		maxDim = DefaultEarlyMaxDimension
	}
	quality = normalizeQuality(quality, DefaultEarlyQuality)
	hash := ContentHash(data)
	key := fmt.Sprintf("%s/early@%d+%.2f", hash, maxDim, quality)
	if out, ok := c.compressed.get(key); ok {
		return out
	}

	v, _, _ := c.flights.Do(key, func() (any, error) {
		if out, ok := c.compressed.get(key); ok {
			return out, nil
		}
		src, err := c.decode(hash, data)
		if err != nil {
			c.logger.Debug("early downscale passthrough", "hash", hash[:12], "error", err)
			return data, nil
		}
		encoded, err := encodeJPEG(imaging.Fit(src, maxDim, maxDim, imaging.Lanczos), quality)
		if err != nil {
			c.logger.Warn("jpeg encode failed", "hash", hash[:12], "error", err)
			return data, nil
		}
		c.compressed.put(key, encoded, int64(len(encoded)))
		return encoded, nil
	})
	return v.([]byte)
}

// =============================================================================
// HELPERS
// =============================================================================

// encodeJPEG flattens transparency onto white and encodes img as JPEG.
func encodeJPEG(img image.Image, quality float64) ([]byte, error) {
	if o, ok := img.(interface{ Opaque() bool }); !ok || !o.Opaque() {
		b := img.Bounds()
		bg := imaging.New(b.Dx(), b.Dy(), color.White)
		img = imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// jpegQuality maps a 0..1 quality to the 1..100 JPEG scale.
func jpegQuality(q float64) int {
	n := int(math.Round(q * 100))
	return max(1, min(100, n))
}

func normalizeQuality(q, fallback float64) float64 {
	if q <= 0 || math.IsNaN(q) {
		return fallback
	}
	return min(q, 1)
}

// scaledDimension returns factor times the longest side, at least 1.
func scaledDimension(img image.Image, factor float64) int {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	return max(1, int(float64(longest)*factor))
}

// rasterSize approximates the in-memory size of a decoded image.
func rasterSize(img image.Image) int64 {
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
