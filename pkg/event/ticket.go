package event

import (
	"fmt"
	"time"
)

const (
	// TicketStatusTopic carries status reports from station displays.
	TicketStatusTopic = "tickets.status"

	// TicketStreamSubjects matches every per-station broadcast subject.
	TicketStreamSubjects = "tickets.*.*"

	EventTicketCreated       = "ticket.created"
	EventTicketStatusChanged = "ticket.status_changed"
	EventTicketRemoved       = "ticket.removed"
)

// TicketTopic returns the broadcast subject for a restaurant station.
func TicketTopic(restaurantID, station string) string {
	return fmt.Sprintf("tickets.%s.%s", restaurantID, station)
}

type TicketEvent struct {
	Event     string        `json:"event"`
	Ticket    TicketPayload `json:"ticket"`
	Timestamp time.Time     `json:"timestamp"`
	OldStatus string        `json:"old_status,omitempty"`
	NewStatus string        `json:"new_status,omitempty"`
}

type TicketPayload struct {
	ID        string       `json:"id"`
	Station   string       `json:"station"`
	Status    string       `json:"status"`
	Sequence  int          `json:"sequence"`
	OrderID   string       `json:"order_id"`
	Table     string       `json:"table"`
	CreatedAt time.Time    `json:"created_at"`
	Items     []TicketItem `json:"items"`
}

type TicketItem struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Notes []string `json:"notes"`
}

// TicketStatusReport is sent by a station display when staff move a ticket.
type TicketStatusReport struct {
	OrderID    string    `json:"order_id"`
	TicketID   string    `json:"ticket_id"`
	Status     string    `json:"status"`
	Station    string    `json:"station,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
