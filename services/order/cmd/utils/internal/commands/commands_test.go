package commands

import (
	"testing"
	"time"

	"github.com/appetiteclub/orderflow/pkg/event"
)

func TestFormatTicketEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 20, 15, 0, 0, time.UTC)

	tests := []struct {
		name string
		evt  event.TicketEvent
		want string
	}{
		{
			name: "created",
			evt: event.TicketEvent{
				Event:     event.EventTicketCreated,
				Timestamp: ts,
				Ticket: event.TicketPayload{
					Station:  "kitchen",
					Status:   "created",
					Sequence: 1,
					Table:    "4",
					Items:    []event.TicketItem{{Name: "Soup"}, {Name: "Steak"}},
				},
			},
			want: "2026-03-01T20:15:00Z ticket.created table=4 kitchen#1 status=created items=2",
		},
		{
			name: "statusChanged",
			evt: event.TicketEvent{
				Event:     event.EventTicketStatusChanged,
				Timestamp: ts,
				OldStatus: "created",
				NewStatus: "ready",
				Ticket: event.TicketPayload{
					Station:  "bar",
					Status:   "ready",
					Sequence: 2,
					Table:    "7",
				},
			},
			want: "2026-03-01T20:15:00Z ticket.status_changed table=7 bar#2 status=ready items=0 (created -> ready)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTicketEvent(tt.evt); got != tt.want {
				t.Errorf("formatTicketEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}
