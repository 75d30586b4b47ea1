package utils

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leofalp/mmchat/providers/observability"
)

// DoPostStream performs an HTTP POST request and returns the raw response with body
// left open for SSE reading. The caller is responsible for closing the response body
// when done reading. On error paths the body is read and closed before returning.
func DoPostStream(ctx context.Context, client *http.Client, url string, apiKey string, body any, headers ...HeaderOption) (*http.Response, error) {
	httpClient := client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, bodySize, err := newJSONRequest(ctx, url, apiKey, body, headers)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	observability.AddEvent(ctx, observability.EventHTTPPrepared,
		observability.String(observability.AttrHTTPMethod, http.MethodPost),
		observability.String(observability.AttrHTTPURL, url),
		observability.Int(observability.AttrHTTPRequestBodySize, bodySize),
	)

	requestStart := time.Now()
	response, err := httpClient.Do(req)
	requestDuration := time.Since(requestStart)

	if err != nil {
		observability.AddEvent(ctx, observability.EventHTTPError,
			observability.Error(err),
			observability.Duration(observability.AttrHTTPDuration, requestDuration),
		)
		return response, fmt.Errorf("error sending stream request: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer CloseWithLog(response.Body)
		errorBody, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodySize))
		if readErr != nil {
			return response, fmt.Errorf("non-2xx status %d (failed to read body: %v)", response.StatusCode, readErr)
		}
		return response, &StatusError{StatusCode: response.StatusCode, Body: string(errorBody)}
	}

	observability.AddEvent(ctx, observability.EventStreamStarted,
		observability.Int(observability.AttrHTTPStatusCode, response.StatusCode),
		observability.Duration(observability.AttrHTTPDuration, requestDuration),
	)

	return response, nil
}

// maxSSELineSize is the maximum size of a single SSE line (1 MB). Inline
// images are echoed back by some gateways, so the 64 KiB bufio default is
// not enough.
const maxSSELineSize = 1 * 1024 * 1024

// maxResponseBodySize caps error and sync response bodies (10 MB).
const maxResponseBodySize int64 = 10 * 1024 * 1024

// SSEEvent is one dispatched Server-Sent Event.
type SSEEvent struct {
	ID    string
	Event string // "message" when the server sent no event field
	Data  string // data lines joined with "\n"
}

// SSEScanner reads Server-Sent Events from an io.Reader. Comment lines
// (starting with ':') and the retry field are skipped. The stream ends at
// EOF or at an OpenAI-style "[DONE]" data line.
type SSEScanner struct {
	scanner *bufio.Scanner
}

// NewSSEScanner creates an SSEScanner that reads SSE events from the given reader.
// Lines exceeding maxSSELineSize make Next return an error wrapping bufio.ErrTooLong.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &SSEScanner{scanner: scanner}
}

// Next returns the next event that carried at least one data line.
// Returns io.EOF when no more events are available.
func (sseScanner *SSEScanner) Next() (SSEEvent, error) {
	var current SSEEvent
	var dataLines []string

	flush := func() SSEEvent {
		current.Data = strings.Join(dataLines, "\n")
		if current.Event == "" {
			current.Event = "message"
		}
		return current
	}

	for sseScanner.scanner.Scan() {
		line := sseScanner.scanner.Text()

		if line == "" {
			if len(dataLines) > 0 {
				return flush(), nil
			}
			current = SSEEvent{}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimSpace(value)

		switch field {
		case "data":
			if value == "[DONE]" {
				return SSEEvent{}, io.EOF
			}
			dataLines = append(dataLines, value)
		case "event":
			current.Event = value
		case "id":
			current.ID = value
		}
	}

	if err := sseScanner.scanner.Err(); err != nil {
		return SSEEvent{}, fmt.Errorf("SSE scanner error: %w", err)
	}

	// The last event may not be followed by a blank line.
	if len(dataLines) > 0 {
		return flush(), nil
	}

	return SSEEvent{}, io.EOF
}
