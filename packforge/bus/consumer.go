package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/semaphore"
)

// Result is the handler's verdict for one message.
type Result int

const (
	// Ack removes the message from the queue. Used both for success and for
	// terminal business outcomes recorded on the entity itself.
	Ack Result = iota
	// Retry leaves the message unacknowledged; the visibility timeout
	// redelivers it and the queue's maxReceiveCount is the retry ceiling.
	Retry
)

// HandlerFunc processes a single message. The returned error is for
// logging only; the Result decides the message's fate.
type HandlerFunc func(ctx context.Context, msg types.Message) (Result, error)

const (
	defaultMaxMessages = 10
	defaultWaitSeconds = 20
	receiveErrorPause  = 5 * time.Second
)

// Consumer pulls messages from one queue and dispatches them to a handler.
// In-flight handling is bounded by a weighted semaphore; messages across a
// batch are processed concurrently, each message strictly sequentially.
type Consumer struct {
	name        string
	client      *Client
	queueURL    string
	handler     HandlerFunc
	sem         *semaphore.Weighted
	maxMessages int32
	waitSeconds int32
}

func NewConsumer(name string, client *Client, queueURL string, maxInFlight int64, handler HandlerFunc) *Consumer {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxMessages
	}
	return &Consumer{
		name:        name,
		client:      client,
		queueURL:    queueURL,
		handler:     handler,
		sem:         semaphore.NewWeighted(maxInFlight),
		maxMessages: defaultMaxMessages,
		waitSeconds: defaultWaitSeconds,
	}
}

// Run long-polls until the context is canceled, then drains in-flight
// handlers before returning.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("Consumer started",
		slog.String("type", "bus"),
		slog.String("consumer", c.name),
		slog.String("queue", c.queueURL))

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Consumer stopping",
				slog.String("type", "bus"),
				slog.String("consumer", c.name))
			return ctx.Err()
		default:
		}

		messages, err := c.client.Receive(ctx, c.queueURL, c.maxMessages, c.waitSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			slog.Error("Receive failed",
				slog.String("type", "bus"),
				slog.String("consumer", c.name),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(receiveErrorPause):
			}
			continue
		}

		for _, msg := range messages {
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			wg.Add(1)
			go func(msg types.Message) {
				defer wg.Done()
				defer c.sem.Release(1)
				c.dispatch(ctx, msg)
			}(msg)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg types.Message) {
	start := time.Now()
	result, err := c.handler(ctx, msg)

	attrs := []any{
		slog.String("type", "bus"),
		slog.String("consumer", c.name),
		slog.String("message_id", stringOrEmpty(msg.MessageId)),
		slog.Int("receive_count", ReceiveCount(msg)),
		slog.Duration("took", time.Since(start)),
	}

	switch result {
	case Ack:
		if err != nil {
			slog.Warn("Message acknowledged with terminal outcome",
				append(attrs, slog.String("error", err.Error()))...)
		}
		if delErr := c.client.Delete(ctx, c.queueURL, stringOrEmpty(msg.ReceiptHandle)); delErr != nil {
			// The handler already committed; a failed delete means one more
			// delivery, which every handler tolerates.
			slog.Error("Failed to acknowledge message",
				append(attrs, slog.String("error", delErr.Error()))...)
		}
	case Retry:
		slog.Warn("Message left for redelivery",
			append(attrs, slog.String("error", errString(err)))...)
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
