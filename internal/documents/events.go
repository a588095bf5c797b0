package documents

import (
	"time"
)

// EventType labels the activity feed entries emitted after a successful save.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventIssued  EventType = "issued"
	EventVoided  EventType = "voided"
	EventPaid    EventType = "paid"
	EventClosed  EventType = "closed"
)

// Association ties an event to a related entity for activity timelines.
type Association struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// Event is the structured record handed to the event collaborator. Object
// and Previous are ToMap snapshots.
type Event struct {
	Type         EventType      `json:"type"`
	Object       map[string]any `json:"object"`
	Previous     map[string]any `json:"previous,omitempty"`
	Associations []Association  `json:"associations,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Fields that do not describe the document's financial or lifecycle meaning.
// A save touching only these alongside a transition must not double-emit an
// "updated" event.
var nonSemanticFields = map[string]bool{
	"sent":       true,
	"chase":      true,
	"updated_at": true,
	"client_id":  true,
}

// buildSaveEvents derives the event list for a completed save. prev is nil
// for creations.
func buildSaveEvents(prev, next *Document, now time.Time) []Event {
	assoc := []Association{{Kind: "customer", ID: next.CustomerID}}
	snapshot := next.ToMap()

	if prev == nil {
		return []Event{{Type: EventCreated, Object: snapshot, Associations: assoc, OccurredAt: now}}
	}
	previous := prev.ToMap()

	var events []Event
	transition := false
	emit := func(t EventType) {
		transition = true
		events = append(events, Event{Type: t, Object: snapshot, Previous: previous, Associations: assoc, OccurredAt: now})
	}

	switch {
	case !prev.Voided && next.Voided:
		emit(EventVoided)
	case prev.Status() != StatusPaid && next.Status() == StatusPaid:
		emit(EventPaid)
	case prev.Draft && !next.Draft:
		emit(EventIssued)
	case !prev.Closed && next.Closed:
		emit(EventClosed)
	}

	if semanticChange(previous, snapshot) && !transition {
		events = append(events, Event{Type: EventUpdated, Object: snapshot, Previous: previous, Associations: assoc, OccurredAt: now})
	}
	return events
}

// deleteEvent records a document removal.
func deleteEvent(doc *Document, now time.Time) Event {
	return Event{
		Type:         EventDeleted,
		Object:       doc.ToMap(),
		Associations: []Association{{Kind: "customer", ID: doc.CustomerID}},
		OccurredAt:   now,
	}
}

func semanticChange(prev, next map[string]any) bool {
	for k, v := range next {
		if nonSemanticFields[k] {
			continue
		}
		pv, ok := prev[k]
		if !ok || !valueEqual(pv, v) {
			return true
		}
	}
	for k := range prev {
		if nonSemanticFields[k] {
			continue
		}
		if _, ok := next[k]; !ok {
			return true
		}
	}
	return false
}

func valueEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ma, ok := a.(map[string]string); ok {
		mb, ok := b.(map[string]string)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, v := range ma {
			if mb[k] != v {
				return false
			}
		}
		return true
	}
	return a == b
}
