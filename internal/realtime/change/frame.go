package change

import (
	"encoding/json"
	"fmt"
)

// Frame is the JSON envelope a change event travels in on the wire.
type Frame struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation"`
	ScopeKey   string          `json:"scope_key,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

// Decode translates a wire frame into its typed event variant.
func Decode(frame Frame) (Event, error) {
	op, err := operationFromWire(frame.Operation)
	if err != nil {
		return nil, err
	}

	switch frame.Collection {
	case CollectionProfiles:
		before, err := decodeProfileRecord(frame.Before)
		if err != nil {
			return nil, fmt.Errorf("decode profile before: %w", err)
		}
		after, err := decodeProfileRecord(frame.After)
		if err != nil {
			return nil, fmt.Errorf("decode profile after: %w", err)
		}
		return ProfileEvent{Operation: op, ScopeKey: frame.ScopeKey, Before: before, After: after}, nil

	case CollectionMentorshipRequests:
		before, err := decodeRequestRecord(frame.Before)
		if err != nil {
			return nil, fmt.Errorf("decode request before: %w", err)
		}
		after, err := decodeRequestRecord(frame.After)
		if err != nil {
			return nil, fmt.Errorf("decode request after: %w", err)
		}
		return RequestEvent{Operation: op, ScopeKey: frame.ScopeKey, Before: before, After: after}, nil

	default:
		return nil, fmt.Errorf("unknown change collection %q", frame.Collection)
	}
}

// DecodeBytes parses a JSON frame and translates it into its typed event.
func DecodeBytes(data []byte) (Event, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode change frame: %w", err)
	}
	return Decode(frame)
}

// Encode renders a typed event back into its wire frame.
func Encode(event Event) (Frame, error) {
	switch e := event.(type) {
	case ProfileEvent:
		before, err := encodeRecord(e.Before)
		if err != nil {
			return Frame{}, fmt.Errorf("encode profile before: %w", err)
		}
		after, err := encodeRecord(e.After)
		if err != nil {
			return Frame{}, fmt.Errorf("encode profile after: %w", err)
		}
		return Frame{
			Collection: CollectionProfiles,
			Operation:  e.Operation.String(),
			ScopeKey:   e.ScopeKey,
			Before:     before,
			After:      after,
		}, nil

	case RequestEvent:
		before, err := encodeRecord(e.Before)
		if err != nil {
			return Frame{}, fmt.Errorf("encode request before: %w", err)
		}
		after, err := encodeRecord(e.After)
		if err != nil {
			return Frame{}, fmt.Errorf("encode request after: %w", err)
		}
		return Frame{
			Collection: CollectionMentorshipRequests,
			Operation:  e.Operation.String(),
			ScopeKey:   e.ScopeKey,
			Before:     before,
			After:      after,
		}, nil

	default:
		return Frame{}, fmt.Errorf("unknown event type %T", event)
	}
}

func decodeProfileRecord(raw json.RawMessage) (*ProfileRecord, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var record ProfileRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func decodeRequestRecord(raw json.RawMessage) (*RequestRecord, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var record RequestRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func encodeRecord[T any](record *T) (json.RawMessage, error) {
	if record == nil {
		return nil, nil
	}
	return json.Marshal(record)
}
