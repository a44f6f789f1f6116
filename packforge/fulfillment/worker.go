package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/packforge/packforge/packforge/bus"
	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

// Worker turns grant-pack messages into persisted packs and instances.
// Delivery is at-least-once; the fulfillment_events table is what makes a
// second delivery of a completed grant a no-op.
type Worker struct {
	packTypeRepo repositories.PackTypeRepository
	userRepo     repositories.UserRepository
	packRepo     repositories.PackRepository
	eventRepo    repositories.FulfillmentEventRepository
	resolver     *Resolver
	allocator    *Allocator
	factory      *InstanceFactory
	policy       RarityPolicy
	now          func() time.Time
}

func NewWorker(
	packTypeRepo repositories.PackTypeRepository,
	userRepo repositories.UserRepository,
	packRepo repositories.PackRepository,
	eventRepo repositories.FulfillmentEventRepository,
	resolver *Resolver,
	allocator *Allocator,
	factory *InstanceFactory,
	policy RarityPolicy,
) *Worker {
	return &Worker{
		packTypeRepo: packTypeRepo,
		userRepo:     userRepo,
		packRepo:     packRepo,
		eventRepo:    eventRepo,
		resolver:     resolver,
		allocator:    allocator,
		factory:      factory,
		policy:       policy,
		now:          time.Now,
	}
}

// WithClock replaces the worker's time source.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Handle implements bus.HandlerFunc for the grant-pack queue.
func (w *Worker) Handle(ctx context.Context, msg types.Message) (bus.Result, error) {
	grant, err := bus.DecodeGrantPack(stringOrEmpty(msg.Body))
	if err != nil {
		// Malformed payloads never reach business logic. Redelivery cannot
		// fix them; the maxReceiveCount ceiling routes them to the DLQ
		// where the alert handler records them for an operator.
		return bus.Retry, err
	}

	if err := w.Fulfill(ctx, grant); err != nil {
		if errors.Is(err, repositories.ErrEventAlreadyProcessed) {
			slog.Info("Skipping already fulfilled grant",
				slog.String("type", "worker"),
				slog.String("event_id", grant.EventID))
			return bus.Ack, nil
		}
		return bus.Retry, err
	}
	return bus.Ack, nil
}

// Fulfill processes one grant end to end. It returns
// repositories.ErrEventAlreadyProcessed when the idempotency token shows
// the work is already done.
func (w *Worker) Fulfill(ctx context.Context, grant *bus.GrantPackMessage) error {
	start := w.now()

	if _, err := w.eventRepo.GetByEventID(ctx, grant.EventID); err == nil {
		return repositories.ErrEventAlreadyProcessed
	} else if !repositories.IsNotFound(err) {
		return err
	}

	packType, err := w.packTypeRepo.GetByID(ctx, grant.PackTypeID)
	if err != nil {
		return err
	}

	if err := w.userRepo.CreateIfAbsent(ctx, &models.User{
		UserID:   grant.UserID,
		Username: grant.Username,
	}); err != nil {
		return err
	}

	// A crashed run may have persisted packs without reaching the event
	// record. Reuse those instead of minting fresh ones so a redelivery
	// after a crash tops the grant up rather than doubling it.
	existing, err := w.packRepo.GetByEventID(ctx, grant.EventID)
	if err != nil {
		return err
	}
	packIDs := make([]string, 0, grant.PackCount)
	for _, pack := range existing {
		packIDs = append(packIDs, pack.PackID)
	}
	if len(packIDs) > 0 {
		slog.Info("Resuming partially fulfilled grant",
			slog.String("type", "worker"),
			slog.String("event_id", grant.EventID),
			slog.Int("existing_packs", len(packIDs)))
	}

	for i := len(packIDs); i < grant.PackCount; i++ {
		packID, err := w.fulfillOnePack(ctx, grant, packType)
		if err != nil {
			return fmt.Errorf("pack %d of %d: %w", i+1, grant.PackCount, err)
		}
		packIDs = append(packIDs, packID)
	}

	// Recording the event is the commit point: the token and the pack
	// counter land together, and only after every pack is durable.
	err = w.eventRepo.Record(ctx, &models.FulfillmentEvent{
		EventID:     grant.EventID,
		Outcome:     models.FulfillmentOutcomeCompleted,
		PackIDs:     packIDs,
		ProcessedAt: w.now(),
	}, grant.UserID, int64(len(packIDs)))
	if err != nil {
		return err
	}

	slog.Info("Fulfilled pack grant",
		slog.String("type", "worker"),
		slog.String("event_id", grant.EventID),
		slog.String("user_id", grant.UserID),
		slog.String("pack_type_id", grant.PackTypeID),
		slog.Int("packs", len(packIDs)),
		slog.Duration("took", time.Since(start)))

	return nil
}

func (w *Worker) fulfillOnePack(ctx context.Context, grant *bus.GrantPackMessage, packType *models.PackType) (string, error) {
	pool, err := w.resolver.ResolvePool(ctx, packType)
	if err != nil {
		return "", err
	}

	selections, err := w.policy.SelectCards(pool, packType.CardCount)
	if err != nil {
		return "", err
	}

	packID, err := newPackID(packType.PackTypeID)
	if err != nil {
		return "", err
	}

	instances := make([]*models.CardInstance, 0, len(selections))
	designNames := make(map[string]string)
	for _, selection := range selections {
		design, ok := pool.Design(selection.DesignID)
		if !ok {
			return "", fmt.Errorf("policy selected design %s outside the pool", selection.DesignID)
		}
		designNames[design.DesignID] = design.Name

		// Cards are owned by nobody while the pack is unopened; the minter
		// tag records who triggered the grant.
		instance, err := w.factory.CreateInstance(ctx, design, selection.RarityID, nil, grant.UserID, packID)
		if err != nil {
			return "", err
		}
		instances = append(instances, instance)
	}

	w.allocator.SortRarestFirst(instances, designNames)
	cardIDs := make([]string, len(instances))
	for i, instance := range instances {
		cardIDs[i] = instance.InstanceID
	}

	userID := grant.UserID
	if err := w.packRepo.Create(ctx, &models.Pack{
		PackID:     packID,
		UserID:     &userID,
		PackTypeID: packType.PackTypeID,
		CardIDs:    cardIDs,
		EventID:    grant.EventID,
	}); err != nil {
		return "", err
	}
	return packID, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
