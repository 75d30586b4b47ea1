// Package filememory provides a file-backed implementation of
// [memory.Store]. Each conversation is one file, <dir>/<conversationID>.msgpack,
// holding the whole history as a MessagePack list.
//
// Appends are read-modify-write with an atomic rename, which makes them
// O(history) per call; pick a table backend for very long conversations.
package filememory
