package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a change to the record store.
type EventType string

const (
	ExpenseCreated EventType = "expense.created"
	ExpenseUpdated EventType = "expense.updated"
	ExpenseDeleted EventType = "expense.deleted"
	LabelRenamed   EventType = "label.renamed"
	LabelDeleted   EventType = "label.deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case ExpenseCreated, ExpenseUpdated, ExpenseDeleted, LabelRenamed, LabelDeleted:
		return true
	}
	return false
}

// ExpenseEvent is a lightweight change notification. Expense events carry only
// the ID and version; consumers fetch the record itself from the store.
type ExpenseEvent struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id,omitempty"`
	Label     string    `json:"label,omitempty"`
	NewLabel  string    `json:"newLabel,omitempty"`
	Version   int64     `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent builds an event about a single record.
func NewExpenseEvent(t EventType, id string, version int64) ExpenseEvent {
	return ExpenseEvent{
		Type:      t,
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// NewLabelEvent builds a bulk label event. newLabel is empty for deletions.
func NewLabelEvent(t EventType, label, newLabel string) ExpenseEvent {
	return ExpenseEvent{
		Type:      t,
		Label:     label,
		NewLabel:  newLabel,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes and checks an event.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ExpenseEvent{}, err
	}
	if !ev.Type.Valid() {
		return ExpenseEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	switch ev.Type {
	case LabelRenamed:
		if ev.Label == "" || ev.NewLabel == "" {
			return ExpenseEvent{}, fmt.Errorf("%s event without labels", ev.Type)
		}
	case LabelDeleted:
		if ev.Label == "" {
			return ExpenseEvent{}, fmt.Errorf("%s event without label", ev.Type)
		}
	default:
		if ev.ID == "" {
			return ExpenseEvent{}, fmt.Errorf("%s event without id", ev.Type)
		}
	}
	return ev, nil
}
