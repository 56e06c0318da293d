package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/google/uuid"

	"github.com/appetiteclub/orderflow/pkg/event"
)

// TicketStatusSubscriber applies status reports sent by station displays.
type TicketStatusSubscriber struct {
	subscriber events.Subscriber
	router     *Router
	logger     aqm.Logger
}

func NewTicketStatusSubscriber(sub events.Subscriber, router *Router, logger aqm.Logger) *TicketStatusSubscriber {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &TicketStatusSubscriber{
		subscriber: sub,
		router:     router,
		logger:     logger,
	}
}

func (s *TicketStatusSubscriber) Start(ctx context.Context) error {
	s.log().Info("starting ticket status subscriber", "topic", event.TicketStatusTopic)
	if s.subscriber == nil {
		return fmt.Errorf("ticket status subscriber not configured")
	}
	return s.subscriber.Subscribe(ctx, event.TicketStatusTopic, s.handleEvent)
}

func (s *TicketStatusSubscriber) Stop(ctx context.Context) error {
	return nil
}

func (s *TicketStatusSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	var report event.TicketStatusReport
	if err := json.Unmarshal(msg, &report); err != nil {
		s.log().Info("invalid ticket status report", "error", err)
		return nil
	}

	orderID, err := uuid.Parse(report.OrderID)
	if err != nil {
		s.log().Info("invalid order_id in ticket status report", "order_id", report.OrderID)
		return nil
	}

	ticketID, err := uuid.Parse(report.TicketID)
	if err != nil {
		s.log().Info("invalid ticket_id in ticket status report", "ticket_id", report.TicketID)
		return nil
	}

	_, err = s.router.UpdateTicketStatus(ctx, orderID, ticketID, report.Status)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrTicketNotFound), errors.Is(err, ErrInvalidStatus):
		s.log().Info("ticket status report rejected",
			"order_id", orderID,
			"ticket_id", ticketID,
			"status", report.Status,
			"error", err,
		)
		return nil
	default:
		return err
	}
}

func (s *TicketStatusSubscriber) log() aqm.Logger {
	return s.logger.With("component", "TicketStatusSubscriber")
}
