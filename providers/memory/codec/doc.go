// Package codec converts [ai.Message] values to and from bytes for storage.
//
// The format is MessagePack (github.com/vmihailenco/msgpack/v5) with maps
// keyed by field name, so stored records stay readable after fields are added.
// Encoders and decoders are borrowed from the library's pools and reset onto
// call-local buffers; every function is safe for concurrent use.
//
// Decode normalizes CreatedAt to UTC. Failures are reported as [*Error].
package codec
