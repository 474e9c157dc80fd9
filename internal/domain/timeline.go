package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimelineEntry is one evaluated forecast point sent to companion.
// Params: point time, verdict outcome, and reasons.
// Returns: serializable timeline tuple.
type TimelineEntry struct {
	Time    time.Time `json:"time"`
	Outcome Outcome   `json:"outcome"`
	Reasons []string  `json:"reasons"`
}

// Label returns short header text for one entry.
// Params: none.
// Returns: "Yes" for favorable, "No" otherwise.
func (e TimelineEntry) Label() string {
	if e.Outcome == OutcomeFavorable {
		return "Yes"
	}
	return "No"
}

// Validate validates one timeline entry.
// Params: none.
// Returns: validation error when entry is incomplete.
func (e TimelineEntry) Validate() error {
	if e.Time.IsZero() {
		return errors.New("time is required")
	}
	if err := e.Outcome.Validate(); err != nil {
		return err
	}
	if len(e.Reasons) == 0 {
		return errors.New("reasons are required")
	}
	return nil
}

// TimelinePayload is the companion transfer unit.
// Params: unique payload ID, generation time, and ordered entries.
// Returns: payload published to companion transports.
type TimelinePayload struct {
	ID   string          `json:"id"`
	Time time.Time       `json:"time"`
	Data []TimelineEntry `json:"data"`
}

// DecodeTimelinePayload decodes and validates one payload.
// Params: JSON document bytes.
// Returns: validated payload or decode/validation error.
func DecodeTimelinePayload(raw []byte) (TimelinePayload, error) {
	var payload TimelinePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return TimelinePayload{}, fmt.Errorf("decode timeline payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return TimelinePayload{}, err
	}
	return payload, nil
}

// Validate validates payload against companion contract.
// Params: none.
// Returns: validation error when payload is malformed.
func (p TimelinePayload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("id is required")
	}
	if p.Time.IsZero() {
		return errors.New("time is required")
	}
	for i := range p.Data {
		if err := p.Data[i].Validate(); err != nil {
			return fmt.Errorf("data[%d]: %w", i, err)
		}
	}
	return nil
}
