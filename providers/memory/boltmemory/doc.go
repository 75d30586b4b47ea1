// Package boltmemory keeps conversation history in one embedded bbolt file.
// Use it when a single process needs durable history without a database
// server.
package boltmemory
