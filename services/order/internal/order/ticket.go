package order

import (
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/enums/ticketstatus"
)

// StationTicket groups the items of one submission for a single station.
type StationTicket struct {
	ID          uuid.UUID `json:"id" bson:"_id"`
	OrderID     uuid.UUID `json:"order_id" bson:"order_id"`
	Station     string    `json:"station" bson:"station"`
	Status      string    `json:"status" bson:"status"`
	Sequence    int       `json:"sequence" bson:"sequence"`
	SubmittedAt time.Time `json:"submitted_at" bson:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

func NewStationTicket(orderID uuid.UUID, station string, sequence int) *StationTicket {
	now := time.Now().UTC()
	return &StationTicket{
		ID:          aqm.GenerateNewID(),
		OrderID:     orderID,
		Station:     station,
		Status:      ticketstatus.Statuses.Ordered.Code(),
		Sequence:    sequence,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// IsDone reports whether the station has finished the ticket.
// A collected ticket was ready before it was picked up.
func (t *StationTicket) IsDone() bool {
	return t.Status == ticketstatus.Statuses.Ready.Code() ||
		t.Status == ticketstatus.Statuses.Collected.Code()
}
