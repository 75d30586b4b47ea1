package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/leofalp/mmchat/providers/ai"
)

// Error is returned when a message cannot be encoded or when stored bytes
// do not decode to a valid message.
type Error struct {
	Op  string // "encode" or "decode"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	errTrailingBytes = errors.New("trailing bytes after message")
	errEmptyPayload  = errors.New("empty payload")
)

// Encode serializes one message. The output is self-describing: a MessagePack
// map keyed by field name, so no type registration is needed to read it back.
func Encode(message ai.Message) ([]byte, error) {
	if err := validate(message); err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}

	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)

	if err := enc.Encode(&message); err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode. Malformed input, trailing bytes
// and invalid roles yield *Error.
func Decode(data []byte) (ai.Message, error) {
	if len(data) == 0 {
		return ai.Message{}, &Error{Op: "decode", Err: errEmptyPayload}
	}

	reader := bytes.NewReader(data)
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(reader)

	message, err := decodeMessage(dec)
	if err != nil {
		return ai.Message{}, &Error{Op: "decode", Err: err}
	}
	if reader.Len() > 0 {
		return ai.Message{}, &Error{Op: "decode", Err: errTrailingBytes}
	}
	return message, nil
}

// EncodeList serializes an ordered history as a MessagePack array of
// messages. A nil or empty list encodes to an empty array.
func EncodeList(messages []ai.Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)

	if err := enc.EncodeArrayLen(len(messages)); err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}
	for i := range messages {
		if err := validate(messages[i]); err != nil {
			return nil, &Error{Op: "encode", Err: fmt.Errorf("message %d: %w", i, err)}
		}
		if err := enc.Encode(&messages[i]); err != nil {
			return nil, &Error{Op: "encode", Err: fmt.Errorf("message %d: %w", i, err)}
		}
	}
	return buf.Bytes(), nil
}

// DecodeList parses bytes produced by EncodeList. The result is never nil.
func DecodeList(data []byte) ([]ai.Message, error) {
	if len(data) == 0 {
		return nil, &Error{Op: "decode", Err: errEmptyPayload}
	}

	reader := bytes.NewReader(data)
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(reader)

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}
	if n < 0 {
		n = 0
	}
	if n > reader.Len() {
		// Every element takes at least one byte; a larger header is corrupt.
		return nil, &Error{Op: "decode", Err: fmt.Errorf("array length %d exceeds payload", n)}
	}

	messages := make([]ai.Message, 0, n)
	for i := 0; i < n; i++ {
		message, err := decodeMessage(dec)
		if err != nil {
			return nil, &Error{Op: "decode", Err: fmt.Errorf("message %d: %w", i, err)}
		}
		messages = append(messages, message)
	}
	if reader.Len() > 0 {
		return nil, &Error{Op: "decode", Err: errTrailingBytes}
	}
	return messages, nil
}

func decodeMessage(dec *msgpack.Decoder) (ai.Message, error) {
	var message ai.Message
	if err := dec.Decode(&message); err != nil {
		return ai.Message{}, err
	}
	if err := validate(message); err != nil {
		return ai.Message{}, err
	}
	message.CreatedAt = message.CreatedAt.UTC()
	return message, nil
}

func validate(message ai.Message) error {
	if !message.Role.Valid() {
		return fmt.Errorf("unknown role %q", message.Role)
	}
	for i, media := range message.Media {
		switch media.Kind {
		case ai.MediaURL, ai.MediaInlineData, ai.MediaLocalPath:
		default:
			return fmt.Errorf("media %d: unknown kind %q", i, media.Kind)
		}
	}
	return nil
}
