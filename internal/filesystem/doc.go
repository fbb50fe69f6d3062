/*
Package filesystem wraps the os calls made by the storage gateway with retry
logic for NFS stale file handle errors.

Video storage is commonly an NFS export shared between the upload service,
the transcode workers and the delivery nodes. A file replaced or removed on
another node can surface as ESTALE (errno 116) on this one until the client
refreshes its handle, so Stat, Open, ReadDir and Remove are retried with
exponential backoff:

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Defaults: 3 retries, 50ms initial backoff, 500ms cap. Errors other than
ESTALE are returned immediately.

Metrics are labeled by volume ("storage", "database") through a
VolumeResolver and recorded through an Observer installed at startup with
SetObserver.
*/
package filesystem
