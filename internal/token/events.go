package token

import (
	"encoding/json"
	"time"
)

func marshalEvent(eventType string, payload map[string]any) (EventLog, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return EventLog{}, err
	}
	return EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now(),
	}, nil
}
