package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/stripeapp-backend/pkg/db"
	"github.com/angelmondragon/stripeapp-backend/pkg/db/models"
	"github.com/angelmondragon/stripeapp-backend/pkg/enums"
	"github.com/angelmondragon/stripeapp-backend/pkg/logger"
)

type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	DedupeKey     string
	Source        *SourceRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit queues event inside tx. It reports false without error when a row with
// the same dedupe key already exists.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if strings.TrimSpace(event.DedupeKey) == "" {
		return false, errors.New("dedupe key required")
	}
	if strings.TrimSpace(event.AggregateID) == "" {
		return false, errors.New("aggregate id required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return false, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt.UTC(),
		Source:     event.Source,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return false, err
	}
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		DedupeKey:     event.DedupeKey,
		Payload:       json.RawMessage(payloadJSON),
	}

	// A failed insert aborts the surrounding postgres transaction, so the
	// duplicate lookup runs in a savepoint.
	err = tx.Transaction(func(sp *gorm.DB) error {
		return s.repo.Insert(sp, row)
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"outbox_event_id": envelope.EventID,
			"event_type":      event.EventType,
			"aggregate_id":    event.AggregateID,
			"aggregate_type":  event.AggregateType,
			"dedupe_key":      event.DedupeKey,
		})
		s.logg.Info(logCtx, "outbox event queued")
	}
	return true, nil
}
