// Package storage is the gateway to the video file tree.
//
// Every key is resolved against one configured root and rejected with
// jobs.ErrPathViolation if it would land outside of it. Layout:
//
//	{root}/{ownerId}/videos/raw/{uuid}.{ext}
//	{root}/{ownerId}/videos/processed/{jobId}/thumbnail.jpg
//	{root}/{ownerId}/videos/processed/{jobId}/hls/master.m3u8
//	{root}/{ownerId}/videos/processed/{jobId}/hls/{profile}.m3u8
//	{root}/{ownerId}/videos/processed/{jobId}/hls/{profile}_{n}.ts
//
// DeleteTree keeps going past files it cannot remove and reports them in a
// TreeDeleteResult.
package storage
