// Package backup exports PostgreSQL table data and schema structure into a
// portable, restartable SQL artifact.
//
// The Manager walks the tables of a source namespace inside one
// snapshot-consistent transaction, emitting pre-data DDL, a streamed
// bulk-copy payload and post-data DDL per table. Payloads stream through a
// fixed-size buffer, so memory use is independent of table size. An optional
// sanitizing pass rewrites the assembled text to strip client-only
// directives and namespace prefixes without ever touching payload bytes, and
// an optional sink uploads the finished file to local or object storage.
package backup
