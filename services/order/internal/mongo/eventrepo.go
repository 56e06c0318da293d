package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/appetiteclub/orderflow/services/order/internal/order"
)

const (
	eventsCollection = "order_events"
	appendAttempts   = 5
)

var ErrDuplicateSequence = errors.New("event sequence already taken")

// EventRepo reads and appends the per-order event log kept in MongoDB.
type EventRepo struct {
	collection *mongo.Collection
	logger     aqm.Logger
}

type eventDocument struct {
	ID         string    `bson:"_id"`
	OrderID    string    `bson:"order_id"`
	Sequence   int64     `bson:"sequence"`
	EventType  string    `bson:"event_type"`
	Payload    string    `bson:"payload,omitempty"`
	EntityID   string    `bson:"entity_id,omitempty"`
	OccurredAt time.Time `bson:"occurred_at"`
	CreatedAt  time.Time `bson:"created_at"`
}

func NewEventRepo(db *mongo.Database, logger aqm.Logger) *EventRepo {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	return &EventRepo{
		collection: db.Collection(eventsCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the unique (order_id, sequence) index.
func (r *EventRepo) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "sequence", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("cannot create order_id/sequence index: %w", err)
	}
	return nil
}

func (r *EventRepo) EventsAfter(ctx context.Context, orderID uuid.UUID, after int64) ([]*order.OrderEvent, error) {
	filter := bson.M{
		"order_id": orderID.String(),
		"sequence": bson.M{"$gt": after},
	}
	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cannot decode events: %w", err)
	}

	evts := make([]*order.OrderEvent, 0, len(docs))
	for _, doc := range docs {
		ev, err := doc.toEvent()
		if err != nil {
			return nil, err
		}
		evts = append(evts, ev)
	}
	return evts, nil
}

// Append stores ev. A zero sequence is replaced by the next free one.
func (r *EventRepo) Append(ctx context.Context, ev *order.OrderEvent) error {
	if ev == nil {
		return fmt.Errorf("event is nil")
	}
	if ev.ID == uuid.Nil {
		ev.ID = aqm.GenerateNewID()
	}
	now := time.Now().UTC()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}

	assign := ev.Sequence == 0
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		if assign {
			last, err := r.lastSequence(ctx, ev.OrderID)
			if err != nil {
				return err
			}
			ev.Sequence = last + 1
		}

		_, err := r.collection.InsertOne(ctx, toDocument(ev))
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("cannot insert event: %w", err)
		}
		if !assign {
			return fmt.Errorf("order %s sequence %d: %w", ev.OrderID, ev.Sequence, ErrDuplicateSequence)
		}
		r.logger.Debug("retrying event append", "order_id", ev.OrderID.String(), "attempt", attempt)
	}
	return fmt.Errorf("order %s: %w", ev.OrderID, ErrDuplicateSequence)
}

func (r *EventRepo) lastSequence(ctx context.Context, orderID uuid.UUID) (int64, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "sequence", Value: -1}})

	var doc eventDocument
	err := r.collection.FindOne(ctx, bson.M{"order_id": orderID.String()}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("cannot read last sequence: %w", err)
	}
	return doc.Sequence, nil
}

// DeleteAll drops every event. Used by the utilities.
func (r *EventRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("cannot delete events: %w", err)
	}
	return nil
}

func toDocument(ev *order.OrderEvent) eventDocument {
	doc := eventDocument{
		ID:         ev.ID.String(),
		OrderID:    ev.OrderID.String(),
		Sequence:   ev.Sequence,
		EventType:  ev.EventType,
		Payload:    string(ev.Payload),
		OccurredAt: ev.OccurredAt.UTC(),
		CreatedAt:  ev.CreatedAt.UTC(),
	}
	if ev.EntityID != nil {
		doc.EntityID = ev.EntityID.String()
	}
	return doc
}

func (d eventDocument) toEvent() (*order.OrderEvent, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", d.ID, err)
	}
	orderID, err := uuid.Parse(d.OrderID)
	if err != nil {
		return nil, fmt.Errorf("invalid order id %q: %w", d.OrderID, err)
	}

	ev := &order.OrderEvent{
		ID:         id,
		OrderID:    orderID,
		Sequence:   d.Sequence,
		EventType:  d.EventType,
		OccurredAt: d.OccurredAt.UTC(),
		CreatedAt:  d.CreatedAt.UTC(),
	}
	if d.Payload != "" {
		ev.Payload = json.RawMessage(d.Payload)
	}
	if d.EntityID != "" {
		entity, err := uuid.Parse(d.EntityID)
		if err != nil {
			return nil, fmt.Errorf("invalid entity id %q: %w", d.EntityID, err)
		}
		ev.EntityID = &entity
	}
	return ev, nil
}

// DeleteOrders removes the events of the given orders.
func (r *EventRepo) DeleteOrders(ctx context.Context, orderIDs []uuid.UUID) error {
	if len(orderIDs) == 0 {
		return nil
	}
	ids := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = id.String()
	}
	if _, err := r.collection.DeleteMany(ctx, bson.M{"order_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("cannot delete order events: %w", err)
	}
	return nil
}
