// Package utils provides shared low-level helpers: [DoPostSync] for JSON
// round-trips, [DoPostStream] together with [SSEScanner] for Server-Sent
// Events, [ParseJSONAs] for lenient JSON decoding and [TruncateString] for
// log-safe previews.
package utils
