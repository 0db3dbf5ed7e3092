package forward

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"graphrelay/internal/config"
	"graphrelay/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSForwarder enqueues normalized messages on an SQS queue for asynchronous
// consumers.
type SQSForwarder struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSForwarder creates a forwarder around an existing SQS client.
func NewSQSForwarder(client SQSSender, cfg config.ForwardConfig, logger *slog.Logger) (*SQSForwarder, error) {
	if cfg.QueueURL == "" {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "forward queue url is required in sqs mode", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSForwarder{client: client, queueURL: cfg.QueueURL, logger: logger}, nil
}

// NewSQSClient builds the production SQS client from AWS configuration. A
// non-empty endpoint override points at a local emulator.
func NewSQSClient(ctx context.Context, cfg config.ForwardConfig) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalConfig, "loading aws configuration", err)
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	}), nil
}

// Forward serializes the payload and sends it to the queue. Routing metadata
// rides along as message attributes so consumers can filter without decoding
// the body.
func (f *SQSForwarder) Forward(ctx context.Context, item types.NotificationItem, msg *types.Message) error {
	body, err := json.Marshal(payload{
		SubscriptionID: item.SubscriptionID,
		ChangeType:     item.ChangeType,
		Resource:       item.Resource,
		TenantID:       item.TenantID,
		Message:        msg,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "marshaling forward payload", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"subscription_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(item.SubscriptionID),
			},
			"change_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(item.ChangeType)),
			},
		},
	}

	if _, err := f.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "sending message to queue", err)
	}

	messageID := ""
	if msg != nil {
		messageID = msg.ID
	}
	f.logger.InfoContext(ctx, "message enqueued",
		"queue_url", redactQueueURL(f.queueURL),
		"subscription_id", item.SubscriptionID,
		"message_id", messageID,
	)
	return nil
}

// redactQueueURL keeps only the queue name portion for logs.
func redactQueueURL(u string) string {
	if i := strings.LastIndex(u, "/"); i >= 0 && i < len(u)-1 {
		return u[i+1:]
	}
	return u
}
