package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

type fakeTradeRepo struct {
	mu     sync.Mutex
	trades map[string]*models.Trade
}

func newFakeTradeRepo(trades ...*models.Trade) *fakeTradeRepo {
	repo := &fakeTradeRepo{trades: make(map[string]*models.Trade)}
	for _, trade := range trades {
		repo.trades[trade.TradeID] = trade
	}
	return repo
}

func (r *fakeTradeRepo) Create(_ context.Context, trade *models.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *trade
	r.trades[trade.TradeID] = &copied
	return nil
}

func (r *fakeTradeRepo) GetByTradeID(_ context.Context, tradeID string) (*models.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trade, ok := r.trades[tradeID]
	if !ok {
		return nil, &repositories.NotFoundError{Entity: "trade", ID: tradeID}
	}
	copied := *trade
	return &copied, nil
}

func (r *fakeTradeRepo) TransitionStatus(_ context.Context, tradeID string, from, to models.TradeStatus, message models.TradeMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	trade, ok := r.trades[tradeID]
	if !ok || trade.Status != from {
		return false, nil
	}
	trade.Status = to
	trade.Messages = append(trade.Messages, message)
	return true, nil
}

type fakePublisher struct {
	published []string
	err       error
}

func (p *fakePublisher) PublishTradeAccepted(_ context.Context, tradeID string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, tradeID)
	return nil
}

func pendingTrade(tradeID string) *models.Trade {
	return &models.Trade{
		TradeID:          tradeID,
		SenderUserID:     "sender",
		ReceiverUserID:   "receiver",
		OfferedCardIDs:   []string{"card-a"},
		RequestedCardIDs: []string{"card-b"},
		Status:           models.TradePending,
	}
}

func TestStateMachine_Accept(t *testing.T) {
	trades := newFakeTradeRepo(pendingTrade("tr-1"))
	publisher := &fakePublisher{}
	at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	sm := NewStateMachine(trades, publisher).WithClock(fixedClock(at))

	require.NoError(t, sm.Accept(context.Background(), "tr-1", "receiver"))

	trade, _ := trades.GetByTradeID(context.Background(), "tr-1")
	assert.Equal(t, models.TradeAccepted, trade.Status)
	assert.Equal(t, []string{"tr-1"}, publisher.published)

	require.Len(t, trade.Messages, 1)
	assert.Equal(t, models.TradeMessageStatusUpdate, trade.Messages[0].Kind)
	assert.Equal(t, string(models.TradeAccepted), trade.Messages[0].Value)
	assert.Equal(t, "receiver", trade.Messages[0].ActorUserID)
	assert.True(t, trade.Messages[0].At.Equal(at))
}

func TestStateMachine_Authorization(t *testing.T) {
	tests := []struct {
		name    string
		action  func(sm *StateMachine) error
		wantErr error
	}{
		{
			name: "sender cannot accept",
			action: func(sm *StateMachine) error {
				return sm.Accept(context.Background(), "tr-1", "sender")
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "stranger cannot accept",
			action: func(sm *StateMachine) error {
				return sm.Accept(context.Background(), "tr-1", "nosy")
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "sender cannot reject",
			action: func(sm *StateMachine) error {
				return sm.Reject(context.Background(), "tr-1", "sender")
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "receiver cannot cancel",
			action: func(sm *StateMachine) error {
				return sm.Cancel(context.Background(), "tr-1", "receiver")
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "receiver may reject",
			action: func(sm *StateMachine) error {
				return sm.Reject(context.Background(), "tr-1", "receiver")
			},
		},
		{
			name: "sender may cancel",
			action: func(sm *StateMachine) error {
				return sm.Cancel(context.Background(), "tr-1", "sender")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine(newFakeTradeRepo(pendingTrade("tr-1")), &fakePublisher{})
			err := tt.action(sm)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStateMachine_NoTransitionOffTerminalOrAccepted(t *testing.T) {
	trades := newFakeTradeRepo(pendingTrade("tr-1"))
	sm := NewStateMachine(trades, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, sm.Accept(ctx, "tr-1", "receiver"))

	// Once accepted, the synchronous machine is done with the trade.
	assert.ErrorIs(t, sm.Cancel(ctx, "tr-1", "sender"), ErrInvalidTransition)
	assert.ErrorIs(t, sm.Reject(ctx, "tr-1", "receiver"), ErrInvalidTransition)
	assert.ErrorIs(t, sm.Accept(ctx, "tr-1", "receiver"), ErrInvalidTransition)
}

func TestStateMachine_UnauthorizedBeforeState(t *testing.T) {
	trades := newFakeTradeRepo(pendingTrade("tr-1"))
	sm := NewStateMachine(trades, &fakePublisher{})
	ctx := context.Background()

	require.NoError(t, sm.Reject(ctx, "tr-1", "receiver"))

	// A stranger poking at a terminal trade gets the authorization error,
	// not a hint about the trade's progress.
	err := sm.Accept(ctx, "tr-1", "nosy")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}

func TestStateMachine_AcceptKeepsStatusWhenPublishFails(t *testing.T) {
	trades := newFakeTradeRepo(pendingTrade("tr-1"))
	publisher := &fakePublisher{err: errors.New("queue unreachable")}
	sm := NewStateMachine(trades, publisher)

	err := sm.Accept(context.Background(), "tr-1", "receiver")
	require.Error(t, err)

	// The durable transition is not rolled back by a publish failure.
	trade, _ := trades.GetByTradeID(context.Background(), "tr-1")
	assert.Equal(t, models.TradeAccepted, trade.Status)
}

func TestStateMachine_UnknownTrade(t *testing.T) {
	sm := NewStateMachine(newFakeTradeRepo(), &fakePublisher{})

	err := sm.Accept(context.Background(), "missing", "receiver")
	assert.True(t, repositories.IsNotFound(err))
}
