package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packforge/packforge/packforge/bus"
	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

type fakeDeadLetterRepo struct {
	records []*models.DeadLetter
	err     error
}

func (r *fakeDeadLetterRepo) Create(_ context.Context, record *models.DeadLetter) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, record)
	return nil
}

var _ repositories.DeadLetterRepository = (*fakeDeadLetterRepo)(nil)

type fakeArchive struct {
	key string
	err error
}

func (a *fakeArchive) Store(_ context.Context, _, _, _ string) (string, error) {
	return a.key, a.err
}

type fakeNotifier struct {
	notified []*models.DeadLetter
	err      error
}

func (n *fakeNotifier) Notify(_ context.Context, record *models.DeadLetter) error {
	if n.err != nil {
		return n.err
	}
	n.notified = append(n.notified, record)
	return nil
}

func deadMessage() types.Message {
	return types.Message{
		MessageId:     aws.String("m-1"),
		ReceiptHandle: aws.String("rh-1"),
		Body:          aws.String(`{"event_id":"evt-1"}`),
		Attributes: map[string]string{
			string(types.MessageSystemAttributeNameApproximateReceiveCount): "6",
		},
	}
}

func TestHandler_Handle(t *testing.T) {
	deadLetters := &fakeDeadLetterRepo{}
	archive := &fakeArchive{key: "dead-letters/grant-pack-dlq/2026-08-29/m-1.json"}
	notifier := &fakeNotifier{}
	receivedAt := time.Date(2026, 8, 29, 23, 30, 0, 0, time.UTC)
	handler := NewHandler("grant-pack-dlq", deadLetters, archive, notifier).
		WithClock(func() time.Time { return receivedAt })

	result, err := handler.Handle(context.Background(), deadMessage())
	require.NoError(t, err)
	assert.Equal(t, bus.Ack, result)

	require.Len(t, deadLetters.records, 1)
	record := deadLetters.records[0]
	assert.Equal(t, "grant-pack-dlq", record.Queue)
	assert.Equal(t, "m-1", record.MessageID)
	assert.Equal(t, `{"event_id":"evt-1"}`, record.Body)
	assert.Equal(t, 6, record.ReceiveCount)
	assert.Equal(t, archive.key, record.ArchiveKey)
	assert.True(t, record.ReceivedAt.Equal(receivedAt))

	require.Len(t, notifier.notified, 1)
	assert.Same(t, record, notifier.notified[0])
}

func TestHandler_Handle_ArchiveFailureStillRecords(t *testing.T) {
	deadLetters := &fakeDeadLetterRepo{}
	handler := NewHandler("grant-pack-dlq", deadLetters, &fakeArchive{err: errors.New("bucket gone")}, nil)

	result, err := handler.Handle(context.Background(), deadMessage())
	require.NoError(t, err)
	assert.Equal(t, bus.Ack, result)

	require.Len(t, deadLetters.records, 1)
	assert.Empty(t, deadLetters.records[0].ArchiveKey)
}

func TestHandler_Handle_RecordFailureRetries(t *testing.T) {
	deadLetters := &fakeDeadLetterRepo{err: errors.New("db down")}
	handler := NewHandler("grant-pack-dlq", deadLetters, nil, nil)

	result, err := handler.Handle(context.Background(), deadMessage())
	assert.Equal(t, bus.Retry, result)
	assert.Error(t, err)
}

func TestHandler_Handle_NotifyFailureStillAcks(t *testing.T) {
	deadLetters := &fakeDeadLetterRepo{}
	handler := NewHandler("grant-pack-dlq", deadLetters, nil, &fakeNotifier{err: errors.New("webhook 500")})

	result, err := handler.Handle(context.Background(), deadMessage())
	require.NoError(t, err)
	assert.Equal(t, bus.Ack, result)
	assert.Len(t, deadLetters.records, 1)
}
