package sqsqueue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"concierge/internal/domain"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// EnqueueInbound publishes one accepted webhook delivery for the worker.
// FIFO grouping by chat key keeps one conversation's messages ordered on the
// queue; the dedup id doubles down on the Redis idempotency gate for the
// 5-minute SQS dedup window.
func (p *Producer) EnqueueInbound(ctx context.Context, job domain.InboundMessageJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(job.ChatKey),
		MessageDeduplicationId: str(job.MessageID),
	})
	return err
}

func str(s string) *string { return &s }
