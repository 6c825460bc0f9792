// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imagecache decodes, downsamples and re-encodes chat photos and
// caches the results keyed by content hash.
//
// A Codec owns three independent LRU pools, each bounded by entry count and
// total bytes:
//
//   - decoded: full-resolution decoded rasters
//   - thumbnails: proportionally scaled previews, keyed by pixel size
//   - compressed: upload-ready JPEG bytes, keyed by byte budget and quality
//
// Every artifact is a pure function of the input bytes and parameters, so
// entries can be evicted at any time and recomputed on demand. Concurrent
// requests for the same artifact share one computation.
//
// # Usage
//
//	codec := imagecache.NewCodec(imagecache.DefaultOptions())
//	small := codec.EarlyDownscale(raw, 0, 0)
//	upload := codec.Compress(small, 1_500_000, 0.8)
//	uri := imagecache.DataURI(upload)
package imagecache
