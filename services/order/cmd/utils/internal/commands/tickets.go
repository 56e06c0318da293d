package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aquamarinepk/aqm"

	"github.com/appetiteclub/orderflow/pkg"
	"github.com/appetiteclub/orderflow/pkg/event"
)

// Tickets prints ticket events retained in the JetStream stream.
func Tickets(ctx context.Context, config *aqm.Config, logger aqm.Logger, out io.Writer) error {
	stream, err := pkg.NewNATSStream(ctx, pkg.NATSStreamConfig{
		URL:          config.GetStringOrDef("nats.url", "nats://localhost:4222"),
		StreamName:   "TICKET_EVENTS",
		Subjects:     []string{event.TicketStreamSubjects},
		ConsumerName: config.GetStringOrDef("nats.stream.consumer", "orderflow-utils"),
		MaxAge:       24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("connect to stream: %w", err)
	}
	defer stream.Close()

	msgs, err := stream.Fetch(ctx, 500)
	if err != nil {
		return fmt.Errorf("fetch ticket events: %w", err)
	}

	for _, msg := range msgs {
		var evt event.TicketEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			logger.Errorf("skipping message %d: %v", msg.Sequence, err)
			continue
		}
		fmt.Fprintf(out, "#%d %s\n", msg.Sequence, formatTicketEvent(evt))
	}

	logger.Infof("Fetched %d ticket events", len(msgs))
	return nil
}

func formatTicketEvent(evt event.TicketEvent) string {
	line := fmt.Sprintf("%s %s table=%s %s#%d status=%s items=%d",
		evt.Timestamp.Format(time.RFC3339), evt.Event, evt.Ticket.Table,
		evt.Ticket.Station, evt.Ticket.Sequence, evt.Ticket.Status, len(evt.Ticket.Items))
	if evt.OldStatus != "" || evt.NewStatus != "" {
		line += fmt.Sprintf(" (%s -> %s)", evt.OldStatus, evt.NewStatus)
	}
	return line
}
