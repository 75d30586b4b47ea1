// Package multimodal prepares provider input for a chat turn.
//
// [ImageResolver] normalizes image references: http(s) URLs and data URIs
// are kept, readable local files are inlined as base64 data URIs, and
// anything else is passed through with a logged warning.
//
// [RequestBuilder] turns stored history plus the new text and images into
// the ordered []ai.ContentBlock a provider expects. History is replayed as
// text only unless [WithHistoryMedia] is set.
package multimodal
