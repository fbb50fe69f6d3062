// Package database provides the SQL job store for the pipeline.
//
// Two drivers are supported behind one implementation of jobs.Store:
//   - SQLite (default): a single file in DATABASE_DIR, WAL mode, writers
//     serialized with immediate transactions.
//   - PostgreSQL: DATABASE_URL, with SELECT ... FOR UPDATE row locks so the
//     claim step is safe across dispatcher replicas.
//
// Jobs live in one table; resolution artifacts are stored as a JSON object.
// The schema is created automatically on open.
package database
