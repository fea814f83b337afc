package eventstore

import "time"

// Event is one record in a release's event stream. ID gives total order
// within the store; Payload is the type-specific JSON body.
type Event interface {
	ID() int64
	ReleaseID() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
	Metadata() map[string]string
}

// BaseEvent is the storage-backed Event used when reading streams back.
// Typed events embed it and add constructors that fill the payload.
type BaseEvent struct {
	EventID        int64
	EventReleaseID string
	EventType      string
	EventTimestamp time.Time
	EventPayload   []byte
	EventMetadata  map[string]string
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) ReleaseID() string           { return e.EventReleaseID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
