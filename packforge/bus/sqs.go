package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Client is a thin wrapper over SQS. The queues are assumed to be declared
// with a redrive policy (maxReceiveCount + dead-letter queue); this client
// only receives, acknowledges and sends.
type Client struct {
	sqs *sqs.Client
}

func NewClient(ctx context.Context, accessKey, secretKey, region, endpoint string) (*Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	if endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load SQS config: %w", err)
	}

	return &Client{sqs: sqs.NewFromConfig(cfg)}, nil
}

func (c *Client) Receive(ctx context.Context, queueURL string, maxMessages int32, waitSeconds int32) ([]types.Message, error) {
	out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive from %s: %w", queueURL, err)
	}
	return out.Messages, nil
}

// Delete acknowledges a message. An unacknowledged message reappears after
// the visibility timeout and eventually dead-letters.
func (c *Client) Delete(ctx context.Context, queueURL string, receiptHandle string) error {
	_, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message from %s: %w", queueURL, err)
	}
	return nil
}

func (c *Client) Send(ctx context.Context, queueURL string, body string) error {
	_, err := c.sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", queueURL, err)
	}
	return nil
}

// ReceiveCount reads the approximate receive count attribute, defaulting to
// 1 when the attribute is absent.
func ReceiveCount(msg types.Message) int {
	raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return count
}

// Publisher sends the typed messages this system produces.
type Publisher struct {
	client           *Client
	grantPackURL     string
	tradeAcceptedURL string
}

func NewPublisher(client *Client, grantPackURL, tradeAcceptedURL string) *Publisher {
	return &Publisher{
		client:           client,
		grantPackURL:     grantPackURL,
		tradeAcceptedURL: tradeAcceptedURL,
	}
}

func (p *Publisher) PublishGrantPack(ctx context.Context, msg *GrantPackMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode grant-pack message: %w", err)
	}
	return p.client.Send(ctx, p.grantPackURL, string(body))
}

func (p *Publisher) PublishTradeAccepted(ctx context.Context, tradeID string) error {
	msg := TradeAcceptedMessage{TradeID: tradeID}
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode trade-accepted message: %w", err)
	}
	return p.client.Send(ctx, p.tradeAcceptedURL, string(body))
}
