package alerting

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	"github.com/disgoorg/snowflake/v2"
	"github.com/packforge/packforge/packforge/database/models"
)

// Notifier posts dead-letter alerts to an operator channel webhook.
type Notifier struct {
	client webhook.Client
}

func NewNotifier(webhookID snowflake.ID, token string) *Notifier {
	return &Notifier{client: webhook.New(webhookID, token)}
}

func (n *Notifier) Notify(ctx context.Context, record *models.DeadLetter) error {
	content := fmt.Sprintf(
		"⚠️ Dead-lettered message on `%s`\nMessage: `%s`\nReceive count: %d\nReason: %s",
		record.Queue, record.MessageID, record.ReceiveCount, record.FailureReason)

	_, err := n.client.CreateMessage(discord.WebhookMessageCreate{
		Content: content,
	}, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to send dead-letter notification: %w", err)
	}
	return nil
}
