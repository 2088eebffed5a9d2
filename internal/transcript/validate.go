package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidShape reports input that is not a message array, or an
	// array entry that is not a message object.
	ErrInvalidShape = errors.New("invalid input shape")

	// ErrMissingID reports a message without the required id field.
	ErrMissingID = errors.New("missing required field")
)

// ValidateMessages checks that every message carries an id, naming the
// position of the first offender.
func ValidateMessages(msgs []Message) error {
	for i, m := range msgs {
		if m.ID == "" {
			return fmt.Errorf("%w: message at index %d has no id", ErrMissingID, i)
		}
	}
	return nil
}

// ParseMessages decodes a JSON message array enforcing the input shape:
// the payload must be an array, every entry must be an object, and every
// entry must carry an id. Shape errors name the offending position.
func ParseMessages(data []byte) ([]Message, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: expected a message array", ErrInvalidShape)
	}
	msgs := make([]Message, 0, len(raw))
	for i, entry := range raw {
		trimmed := bytes.TrimSpace(entry)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, fmt.Errorf("%w: entry at index %d is not a message object", ErrInvalidShape, i)
		}
		var m Message
		if err := json.Unmarshal(entry, &m); err != nil {
			return nil, fmt.Errorf("%w: entry at index %d: %v", ErrInvalidShape, i, err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("%w: message at index %d has no id", ErrMissingID, i)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
