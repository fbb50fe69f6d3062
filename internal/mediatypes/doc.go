// Package mediatypes maps artifact names to types and MIME types.
//
// It has no dependencies beyond the standard library so that storage,
// transcoding and delivery code can share it without import cycles.
//
//	mediatypes.ForName("720p_004.ts")              // "video/mp2t"
//	mediatypes.GetFileType(mediatypes.Ext("a.m3u8")) // FileTypePlaylist
//
// Unknown extensions are served as application/octet-stream.
package mediatypes
