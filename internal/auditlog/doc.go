// Package auditlog provides an append-only structured event sink with an
// in-memory buffer, periodic and forced flushing, and size-based rotation of
// the durable destination file.
//
// Entries are buffered and written in bulk; error-level entries bypass
// batching and flush immediately so they are never lost to a crash.
package auditlog
