// Package sqlitememory stores conversation history in a SQLite database via
// github.com/mattn/go-sqlite3. The table layout mirrors pgmemory so both
// table backends can share tooling.
package sqlitememory
