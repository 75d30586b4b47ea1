// Package memory defines the [Store] interface for durable conversation
// history and the errors shared by its implementations.
//
// Messages are persisted through the MessagePack codec in the codec
// subpackage. The implementations live in sibling packages:
//
//   - filememory: one file per conversation, whole-file atomic replace
//   - pgmemory: one PostgreSQL row per message (pgx)
//   - sqlitememory: one SQLite row per message (database/sql)
//   - boltmemory: one bbolt bucket per conversation
//   - inmemory: process-local, for tests and ephemeral sessions
//
// The backend subpackage selects and opens one of them from configuration.
package memory
