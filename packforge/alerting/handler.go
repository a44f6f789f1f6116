package alerting

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/packforge/packforge/packforge/bus"
	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

// ArchiveStore persists the raw payload outside the queue.
type ArchiveStore interface {
	Store(ctx context.Context, queue, messageID, body string) (string, error)
}

// AlertNotifier tells an operator about a new failure record.
type AlertNotifier interface {
	Notify(ctx context.Context, record *models.DeadLetter) error
}

// Handler is the sole consumer of a dead-letter queue. It writes a durable
// failure record and notifies an operator; it never performs any business
// mutation.
type Handler struct {
	queue       string
	deadLetters repositories.DeadLetterRepository
	archive     ArchiveStore
	notifier    AlertNotifier
	now         func() time.Time
}

// NewHandler builds a handler for one dead-letter queue. archive and
// notifier may be nil when not configured.
func NewHandler(queue string, deadLetters repositories.DeadLetterRepository, archive ArchiveStore, notifier AlertNotifier) *Handler {
	return &Handler{
		queue:       queue,
		deadLetters: deadLetters,
		archive:     archive,
		notifier:    notifier,
		now:         time.Now,
	}
}

// WithClock replaces the handler's time source.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// Handle implements bus.HandlerFunc for a dead-letter queue.
func (h *Handler) Handle(ctx context.Context, msg types.Message) (bus.Result, error) {
	messageID := derefOrEmpty(msg.MessageId)
	body := derefOrEmpty(msg.Body)

	archiveKey := ""
	if h.archive != nil {
		key, err := h.archive.Store(ctx, h.queue, messageID, body)
		if err != nil {
			// Archive loss is acceptable; the record below still carries
			// the full body.
			slog.Warn("Dead-letter archive failed",
				slog.String("type", "alert"),
				slog.String("queue", h.queue),
				slog.String("message_id", messageID),
				slog.String("error", err.Error()))
		} else {
			archiveKey = key
		}
	}

	record := &models.DeadLetter{
		Queue:         h.queue,
		MessageID:     messageID,
		Body:          body,
		FailureReason: "exceeded max receive count",
		ReceiveCount:  bus.ReceiveCount(msg),
		ArchiveKey:    archiveKey,
		ReceivedAt:    h.now(),
	}

	if err := h.deadLetters.Create(ctx, record); err != nil {
		// Without a durable record the alert is lost; leave the message
		// for another attempt.
		return bus.Retry, err
	}

	slog.Error("Message dead-lettered",
		slog.String("type", "alert"),
		slog.String("queue", h.queue),
		slog.String("message_id", messageID),
		slog.Int("receive_count", record.ReceiveCount))

	if h.notifier != nil {
		if err := h.notifier.Notify(ctx, record); err != nil {
			slog.Warn("Dead-letter notification failed",
				slog.String("type", "alert"),
				slog.String("queue", h.queue),
				slog.String("error", err.Error()))
		}
	}

	return bus.Ack, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
