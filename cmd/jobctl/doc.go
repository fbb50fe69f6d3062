// Command jobctl inspects and repairs video processing jobs.
//
// It opens the same job store and storage root as the service and is meant
// for operators recovering from crashes: a job whose worker died stays
// PROCESSING, and events that were acknowledged but never run during a
// shutdown leave their job UPLOADED.
//
// # Usage
//
//	jobctl status <jobId>
//	jobctl stuck [-age 1h]
//	jobctl requeue [-y] [-force] [-age 1h] [-notify addr] <jobId>
//	jobctl purge [-y] <jobId>
//
// requeue refuses READY jobs and jobs whose raw upload is gone. A PROCESSING
// job updated within -age may still be running and needs -force. It removes
// partial output, resets the job to UPLOADED and publishes a fresh
// processing event to AMQP_QUEUE. The notification goes to the address
// stored on the job unless -notify names another. purge deletes processed artifacts and the
// raw upload but keeps the job record.
//
// Destructive commands ask for confirmation on a terminal; when stdin is not
// a terminal they fail unless -y is given.
//
// # Environment Variables
//
//   - DATABASE_DRIVER: sqlite (default) or postgres
//   - DATABASE_DIR: Directory containing jobs.db (default: /database)
//   - DATABASE_URL: PostgreSQL DSN
//   - STORAGE_ROOT: Storage root (default: /data/videos)
//   - AMQP_URL, AMQP_QUEUE: Broker used by requeue
package main
