package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timeLayouts are accepted when reading timestamps. Records written by older
// tooling carry zone-less ISO timestamps, which are read as local time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses a timestamp in any accepted layout. An empty string
// yields the zero time.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("models: unrecognised timestamp %q", raw)
}

type messageJSON Message

// UnmarshalJSON accepts zone-less timestamps.
func (m *Message) UnmarshalJSON(data []byte) error {
	aux := struct {
		*messageJSON
		Timestamp string `json:"timestamp"`
	}{messageJSON: (*messageJSON)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := ParseTime(aux.Timestamp)
	if err != nil {
		return err
	}
	m.Timestamp = t
	return nil
}

type sessionJSON Session

// UnmarshalJSON accepts zone-less timestamps.
func (s *Session) UnmarshalJSON(data []byte) error {
	aux := struct {
		*sessionJSON
		CreatedAt string `json:"created_at"`
	}{sessionJSON: (*sessionJSON)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := ParseTime(aux.CreatedAt)
	if err != nil {
		return err
	}
	s.CreatedAt = t
	return nil
}
