// Package playlist reads and writes HLS playlists.
//
// WriteMaster produces the master playlist that lists one rendition per
// transcoded profile:
//
//	#EXTM3U
//	#EXT-X-VERSION:3
//	#EXT-X-STREAM-INF:BANDWIDTH=896000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
//	360p.m3u8
//
// RewriteWithToken is used by the delivery handlers to append a stream access
// token to every URI line, so nested playlists and segments are fetched with
// the same credential.
package playlist
