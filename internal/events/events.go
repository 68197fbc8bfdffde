package events

import (
	"encoding/json"
	"time"
)

// Event types published around feed runs.
const (
	Ping        = "ping"
	RunStarted  = "run_started"
	RunFinished = "run_finished"
	RunFailed   = "run_failed"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MakeEvent encodes one envelope. data that fails to marshal is dropped.
func MakeEvent(reqID, typ string, data any) string {
	var raw json.RawMessage
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	b, _ := json.Marshal(Event{
		Type:      typ,
		Version:   1,
		At:        time.Now().UTC().Truncate(time.Second),
		RequestID: reqID,
		Data:      raw,
	})
	return string(b)
}
