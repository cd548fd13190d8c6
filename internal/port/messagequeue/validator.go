package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownSubject is returned by Decode for subjects outside the push set.
var ErrUnknownSubject = errors.New("messagequeue: unknown subject")

// Decode parses data into the payload type associated with subject and
// checks required fields. The result is one of *PushUserPayload,
// *PushBatchPayload or *PushBroadcastPayload.
func Decode(subject string, data []byte) (any, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectPushUser:
		var p PushUserPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: user_id is required", subject)
		}
		return &p, nil
	case SubjectPushBatch:
		var p PushBatchPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if len(p.UserIDs) == 0 {
			return nil, fmt.Errorf("%s: user_ids is required", subject)
		}
		return &p, nil
	case SubjectPushBroadcast:
		var p PushBroadcastPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
}
