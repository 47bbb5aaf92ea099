package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ArticleQueue = "article_queue"

	retryDelay = 10 * time.Second
)

func RetryQueue(name string) string { return name + "_retry" }
func DeadLetterQueue(name string) string { return name + "_dlq" }

// Publisher is the part of *amqp091.Channel used to publish messages.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Init dials RabbitMQ with the RABBITMQ_* environment variables.
func Init() (*amqp091.Connection, error) {
	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnvString("RABBITMQ_USER", "guest"),
		util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		util.GetEnvString("RABBITMQ_HOST", "localhost"),
		util.GetEnvString("RABBITMQ_PORT", "5672"),
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares every queue in names together with its dead letter
// queue and a retry queue that routes expired messages back to it.
func SetupQueues(ch *amqp091.Channel, names []string) error {
	for _, name := range names {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}

		dlqName := DeadLetterQueue(name)
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlqName, err)
		}

		retryName := RetryQueue(name)
		_, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", retryName, err)
		}
		logger.Debug("[Queue] Declared queue", "queue", name)
	}
	return nil
}

// PublishArticle enqueues a as JSON on ArticleQueue.
func PublishArticle(ctx context.Context, pub Publisher, a common.Article) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode article %s: %w", a.ID, err)
	}
	return publish(ctx, pub, ArticleQueue, amqp091.Publishing{
		ContentType:  "application/json",
		MessageId:    a.ID,
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	})
}

func publish(ctx context.Context, pub Publisher, queueName string, msg amqp091.Publishing) error {
	if err := pub.PublishWithContext(ctx, "", queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}
