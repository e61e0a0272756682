package ledger

import (
	"bytes"
	"sync"

	"github.com/ugorji/go/codec"
)

// Event is the envelope for everything the contracts emit. Events are the de
// facto API for off-chain indexers: the attribute map carries the
// event-specific fields (ids, addresses, amounts) as strings.
type Event struct {
	Seq        int               `json:"seq"`
	Time       int64             `json:"time"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

//Marshal - json encoding of Event
func (e *Event) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(e); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (e *Event) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(e); err != nil {
		return err
	}

	return nil
}

// EventLog is an append-only, sequence-numbered log of events shared by all
// the contracts on a node. Sequence numbers start at 1 and never repeat.
type EventLog struct {
	sync.RWMutex
	events []Event
}

// NewEventLog creates an empty EventLog.
func NewEventLog() *EventLog {
	return &EventLog{
		events: []Event{},
	}
}

// Emit appends a new event to the log and returns it with its sequence number
// assigned.
func (l *EventLog) Emit(time int64, eventType string, attributes map[string]string) Event {
	l.Lock()
	defer l.Unlock()

	event := Event{
		Seq:        len(l.events) + 1,
		Time:       time,
		Type:       eventType,
		Attributes: attributes,
	}

	l.events = append(l.events, event)

	return event
}

// Events returns a copy of the whole log in emission order.
func (l *EventLog) Events() []Event {
	return l.EventsSince(0)
}

// EventsSince returns a copy of all events with Seq > seq, in emission order.
func (l *EventLog) EventsSince(seq int) []Event {
	l.RLock()
	defer l.RUnlock()

	if seq < 0 {
		seq = 0
	}

	if seq >= len(l.events) {
		return []Event{}
	}

	res := make([]Event, len(l.events)-seq)
	copy(res, l.events[seq:])

	return res
}

// Count returns the number of events in the log.
func (l *EventLog) Count() int {
	l.RLock()
	defer l.RUnlock()

	return len(l.events)
}
