package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/pipeline"
	"github.com/OFFIS-RIT/newsgraph/pkg/progress"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DefaultMaxRetries = 10
	DefaultMaxWait    = 2 * time.Second

	retriesHeader = "x-retries"
	errorHeader   = "x-error"
)

// BatchProcessor is satisfied by *pipeline.Orchestrator.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, articles []common.Article) ([]pipeline.ArticleResult, error)
}

type ConsumerParams struct {
	Publisher  Publisher
	Processor  BatchProcessor
	Queue      string
	BatchSize  int
	MaxWait    time.Duration
	MaxRetries int
}

// Consumer groups deliveries into batches, runs them through the pipeline
// and settles every delivery according to its article's outcome.
type Consumer struct {
	pub        Publisher
	proc       BatchProcessor
	queue      string
	batchSize  int
	maxWait    time.Duration
	maxRetries int
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Publisher == nil || params.Processor == nil {
		return nil, errors.New("queue: publisher and processor are required")
	}
	c := &Consumer{
		pub:        params.Publisher,
		proc:       params.Processor,
		queue:      params.Queue,
		batchSize:  params.BatchSize,
		maxWait:    params.MaxWait,
		maxRetries: params.MaxRetries,
	}
	if c.queue == "" {
		c.queue = ArticleQueue
	}
	if c.batchSize <= 0 {
		c.batchSize = pipeline.DefaultBatchSize
	}
	if c.maxWait <= 0 {
		c.maxWait = DefaultMaxWait
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	return c, nil
}

// Run consumes deliveries until ctx is done or the channel is closed. The
// batch in hand when ctx is cancelled is still processed and settled.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp091.Delivery) error {
	for {
		batch, open := c.collect(ctx, deliveries)
		if len(batch) > 0 {
			c.handle(ctx, batch)
		}
		if !open {
			logger.Info("[Queue] Delivery channel closed", "queue", c.queue)
			return nil
		}
		if ctx.Err() != nil {
			logger.Info("[Queue] Stopping consumer", "queue", c.queue)
			return nil
		}
	}
}

// collect blocks for the first delivery, then gathers more until the batch
// is full or maxWait has passed.
func (c *Consumer) collect(ctx context.Context, deliveries <-chan amqp091.Delivery) ([]amqp091.Delivery, bool) {
	batch := make([]amqp091.Delivery, 0, c.batchSize)
	select {
	case <-ctx.Done():
		return nil, true
	case d, ok := <-deliveries:
		if !ok {
			return nil, false
		}
		batch = append(batch, d)
	}

	timer := time.NewTimer(c.maxWait)
	defer timer.Stop()
	for len(batch) < c.batchSize {
		select {
		case <-ctx.Done():
			return batch, true
		case <-timer.C:
			return batch, true
		case d, ok := <-deliveries:
			if !ok {
				return batch, false
			}
			batch = append(batch, d)
		}
	}
	return batch, true
}

func (c *Consumer) handle(ctx context.Context, batch []amqp091.Delivery) {
	articles := make([]common.Article, 0, len(batch))
	owners := make([]amqp091.Delivery, 0, len(batch))
	for _, d := range batch {
		var a common.Article
		if err := json.Unmarshal(d.Body, &a); err != nil {
			logger.Warn("[Queue] Undecodable message", "queue", c.queue, "message_id", d.MessageId, "err", err)
			c.deadLetter(ctx, d, "decode: "+err.Error())
			continue
		}
		articles = append(articles, a)
		owners = append(owners, d)
	}
	if len(articles) == 0 {
		return
	}

	start := time.Now()
	results, err := c.proc.ProcessBatch(ctx, articles)
	if err != nil {
		// Nothing of this batch is durably checkpointed; redeliver it all.
		logger.Error("[Queue] Batch failed", "queue", c.queue, "size", len(articles), "err", err)
		for _, d := range owners {
			c.retry(ctx, d, err)
		}
		return
	}

	for i, r := range results {
		c.settle(ctx, owners[i], r)
	}
	logger.Info("[Queue] Batch processed", "queue", c.queue, "size", len(articles), "duration", time.Since(start).Round(time.Millisecond))
}

func (c *Consumer) settle(ctx context.Context, d amqp091.Delivery, r pipeline.ArticleResult) {
	switch r.Category {
	case progress.Succeeded, progress.Skipped:
		if err := d.Ack(false); err != nil {
			logger.Error("[Queue] Failed to ack message", "article_id", r.ArticleID, "err", err)
		}
	case progress.ValidationFailed, progress.PermanentFailure, progress.ExtractionRejected:
		c.deadLetter(ctx, d, errString(r.Err))
	case "":
		// Never started because the worker is shutting down.
		if err := d.Nack(false, true); err != nil {
			logger.Error("[Queue] Failed to requeue message", "article_id", r.ArticleID, "err", err)
		}
	default:
		c.retry(ctx, d, r.Err)
	}
}

func (c *Consumer) retry(ctx context.Context, d amqp091.Delivery, cause error) {
	retries := retriesOf(d)
	if retries >= c.maxRetries {
		c.deadLetter(ctx, d, errString(cause))
		return
	}

	headers := amqp091.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)

	retryName := RetryQueue(c.queue)
	err := publish(context.WithoutCancel(ctx), c.pub, retryName, amqp091.Publishing{
		ContentType:  d.ContentType,
		MessageId:    d.MessageId,
		Body:         d.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", err)
		_ = d.Nack(false, true)
		return
	}
	logger.Debug("[Queue] Message scheduled for retry", "message_id", d.MessageId, "retries", retries+1)
	_ = d.Ack(false)
}

func (c *Consumer) deadLetter(ctx context.Context, d amqp091.Delivery, reason string) {
	headers := amqp091.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[errorHeader] = reason

	dlqName := DeadLetterQueue(c.queue)
	err := publish(context.WithoutCancel(ctx), c.pub, dlqName, amqp091.Publishing{
		ContentType:  d.ContentType,
		MessageId:    d.MessageId,
		Body:         d.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", err)
		_ = d.Nack(false, true)
		return
	}
	logger.Warn("[Queue] Message sent to DLQ", "dlq", dlqName, "message_id", d.MessageId, "reason", reason)
	_ = d.Ack(false)
}

func retriesOf(d amqp091.Delivery) int {
	switch v := d.Headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
