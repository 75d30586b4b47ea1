package utils

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// ParseJSONAs unmarshals content into T. When the payload is not valid JSON
// (truncated chunk, single quotes, trailing commas) it is repaired with
// jsonrepair and unmarshaled again.
//
// Example usage:
//
//	chunk, err := ParseJSONAs[streamChunk](`{"output": {"choices": [],}`)
func ParseJSONAs[T any](content string) (T, error) {
	var result T

	err := json.Unmarshal([]byte(content), &result)
	if err == nil {
		return result, nil
	}

	repairedJSON, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return result, fmt.Errorf("failed to unmarshal content as %T and failed to repair JSON: unmarshal error: %w, repair error: %v", result, err, repairErr)
	}

	var repaired T
	if err := json.Unmarshal([]byte(repairedJSON), &repaired); err != nil {
		return result, fmt.Errorf("failed to unmarshal repaired JSON as %T: %w (original content: %s)", result, err, TruncateString(content, DefaultMaxStringLength))
	}
	return repaired, nil
}
