package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType doubles as the routing key of the published message.
type EventType string

const (
	EventTransactionCreated    EventType = "transaction.created"
	EventGoalContribution      EventType = "goal.contribution"
	EventGoalCompleted         EventType = "goal.completed"
	EventBudgetOverLimit       EventType = "budget.over_limit"
	EventRecurringMaterialized EventType = "recurring.materialized"
)

// EventTypes lists every routing key the queue is bound to.
var EventTypes = []EventType{
	EventTransactionCreated,
	EventGoalContribution,
	EventGoalCompleted,
	EventBudgetOverLimit,
	EventRecurringMaterialized,
}

// Event is a lightweight ledger notification. It carries ids only; consumers
// fetch the full entity from the store.
type Event struct {
	Type          EventType `json:"type"`
	UserID        string    `json:"userId"`
	EntityID      string    `json:"entityId"`
	TransactionID string    `json:"transactionId,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewEvent(typ EventType, userID, entityID string) *Event {
	return &Event{
		Type:      typ,
		UserID:    userID,
		EntityID:  entityID,
		Timestamp: time.Now(),
	}
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes and sanity checks a message body.
func EventFromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Type == "" || ev.EntityID == "" {
		return nil, errors.New("event type and entity id are required")
	}
	return &ev, nil
}
