// Package pgmemory provides a PostgreSQL-backed implementation of
// [memory.Store]. Every message is one row of the chat_memory_message table
// (id, conversation_id, role, message_bytes, created_at), and reads order by
// id so history comes back in append order.
//
// The main entry point is [New], which accepts any pgx executor (typically a
// *pgxpool.Pool). Use [PgMemory.EnsureSchema] during development to
// auto-create the table; production deployments should manage schema
// migrations with dedicated tooling (goose, migrate, etc.).
package pgmemory
