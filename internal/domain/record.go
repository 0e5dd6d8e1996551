package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionRecord is the persisted view of the last connected session.
type SessionRecord struct {
	Address   string
	Name      string
	Timestamp time.Time
}

type sessionRecordJSON struct {
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (r SessionRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionRecordJSON{
		Address:   r.Address,
		Name:      r.Name,
		Timestamp: r.Timestamp.UnixMilli(),
	})
}

func (r *SessionRecord) UnmarshalJSON(data []byte) error {
	var raw sessionRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw.Address) == "" {
		return fmt.Errorf("session record address is required")
	}

	r.Address = raw.Address
	r.Name = raw.Name
	r.Timestamp = time.UnixMilli(raw.Timestamp).UTC()
	return nil
}
