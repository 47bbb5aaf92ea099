package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/pipeline"
	"github.com/OFFIS-RIT/newsgraph/pkg/progress"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	key string
	msg amqp091.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{key: key, msg: msg})
	return nil
}

func (p *fakePublisher) to(key string) []amqp091.Publishing {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp091.Publishing, 0)
	for _, m := range p.msgs {
		if m.key == key {
			out = append(out, m.msg)
		}
	}
	return out
}

type fakeAck struct {
	mu      sync.Mutex
	acked   map[uint64]bool
	requeue map[uint64]bool
}

func newFakeAck() *fakeAck {
	return &fakeAck{acked: make(map[uint64]bool), requeue: make(map[uint64]bool)}
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked[tag] = true
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requeue[tag] = requeue
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakeProcessor struct {
	categories map[string]progress.Category
	err        error
	batches    [][]common.Article
}

func (p *fakeProcessor) ProcessBatch(ctx context.Context, articles []common.Article) ([]pipeline.ArticleResult, error) {
	p.batches = append(p.batches, articles)
	out := make([]pipeline.ArticleResult, len(articles))
	for i, a := range articles {
		out[i] = pipeline.ArticleResult{ArticleID: a.ID, Category: p.categories[a.ID]}
		if out[i].Category.IsFailure() {
			out[i].Err = errors.New(string(out[i].Category))
		}
	}
	return out, p.err
}

func delivery(t *testing.T, ack *fakeAck, tag uint64, a common.Article) amqp091.Delivery {
	t.Helper()
	body, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal article: %v", err)
	}
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: tag, MessageId: a.ID, Body: body}
}

func TestConsumerSettlesByCategory(t *testing.T) {
	pub := &fakePublisher{}
	proc := &fakeProcessor{categories: map[string]progress.Category{
		"ok":      progress.Succeeded,
		"seen":    progress.Skipped,
		"invalid": progress.ValidationFailed,
		"flaky":   progress.RetryExhausted,
		"store":   progress.IngestFailed,
		"later":   "",
	}}
	c, err := NewConsumer(ConsumerParams{Publisher: pub, Processor: proc, BatchSize: 10, MaxWait: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewConsumer returned error: %v", err)
	}

	ack := newFakeAck()
	ids := []string{"ok", "seen", "invalid", "flaky", "store", "later"}
	batch := make([]amqp091.Delivery, 0, len(ids)+1)
	for i, id := range ids {
		batch = append(batch, delivery(t, ack, uint64(i+1), common.Article{ID: id}))
	}
	batch = append(batch, amqp091.Delivery{Acknowledger: ack, DeliveryTag: 99, Body: []byte("{broken")})

	c.handle(context.Background(), batch)

	if len(proc.batches) != 1 || len(proc.batches[0]) != len(ids) {
		t.Fatalf("expected one batch of %d articles, got %v", len(ids), proc.batches)
	}
	for _, tag := range []uint64{1, 2, 3, 4, 5, 99} {
		if !ack.acked[tag] {
			t.Fatalf("expected delivery %d to be acked", tag)
		}
	}
	if ack.acked[6] || !ack.requeue[6] {
		t.Fatalf("expected unstarted delivery to be requeued")
	}

	dlq := pub.to(DeadLetterQueue(ArticleQueue))
	if len(dlq) != 2 {
		t.Fatalf("expected 2 dead letters, got %d", len(dlq))
	}
	retries := pub.to(RetryQueue(ArticleQueue))
	if len(retries) != 2 {
		t.Fatalf("expected 2 retries, got %d", len(retries))
	}
	for _, m := range retries {
		if m.Headers[retriesHeader] != int32(1) {
			t.Fatalf("expected retry counter 1, got %v", m.Headers[retriesHeader])
		}
	}
}

func TestConsumerDeadLettersAfterMaxRetries(t *testing.T) {
	pub := &fakePublisher{}
	proc := &fakeProcessor{categories: map[string]progress.Category{"a1": progress.RetryExhausted}}
	c, _ := NewConsumer(ConsumerParams{Publisher: pub, Processor: proc, MaxRetries: 3})

	ack := newFakeAck()
	d := delivery(t, ack, 1, common.Article{ID: "a1"})
	d.Headers = amqp091.Table{retriesHeader: int32(3)}
	c.handle(context.Background(), []amqp091.Delivery{d})

	if len(pub.to(RetryQueue(ArticleQueue))) != 0 {
		t.Fatalf("expected no further retry")
	}
	dlq := pub.to(DeadLetterQueue(ArticleQueue))
	if len(dlq) != 1 || dlq[0].Headers[errorHeader] == "" {
		t.Fatalf("expected dead letter with reason, got %+v", dlq)
	}
}

func TestConsumerRetriesWholeBatchOnFlushFailure(t *testing.T) {
	pub := &fakePublisher{}
	proc := &fakeProcessor{
		categories: map[string]progress.Category{"a1": progress.Succeeded, "a2": progress.Succeeded},
		err:        errors.New("flush checkpoint: disk full"),
	}
	c, _ := NewConsumer(ConsumerParams{Publisher: pub, Processor: proc})

	ack := newFakeAck()
	c.handle(context.Background(), []amqp091.Delivery{
		delivery(t, ack, 1, common.Article{ID: "a1"}),
		delivery(t, ack, 2, common.Article{ID: "a2"}),
	})
	if n := len(pub.to(RetryQueue(ArticleQueue))); n != 2 {
		t.Fatalf("expected both deliveries to be retried, got %d", n)
	}
}

func TestConsumerPublishFailureRequeues(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	proc := &fakeProcessor{categories: map[string]progress.Category{"a1": progress.PermanentFailure}}
	c, _ := NewConsumer(ConsumerParams{Publisher: pub, Processor: proc})

	ack := newFakeAck()
	c.handle(context.Background(), []amqp091.Delivery{delivery(t, ack, 1, common.Article{ID: "a1"})})
	if ack.acked[1] || !ack.requeue[1] {
		t.Fatalf("expected delivery to be requeued when the DLQ publish fails")
	}
}

func TestCollectBatches(t *testing.T) {
	pub := &fakePublisher{}
	c, _ := NewConsumer(ConsumerParams{Publisher: pub, Processor: &fakeProcessor{}, BatchSize: 2, MaxWait: 20 * time.Millisecond})

	ack := newFakeAck()
	deliveries := make(chan amqp091.Delivery, 3)
	for i := 1; i <= 3; i++ {
		deliveries <- delivery(t, ack, uint64(i), common.Article{ID: "a"})
	}
	close(deliveries)

	ctx := context.Background()
	first, open := c.collect(ctx, deliveries)
	if len(first) != 2 || !open {
		t.Fatalf("expected a full batch of 2, got %d (open=%v)", len(first), open)
	}
	second, open := c.collect(ctx, deliveries)
	if len(second) != 1 || open {
		t.Fatalf("expected final batch of 1 on a closed channel, got %d (open=%v)", len(second), open)
	}
}

func TestRunStopsOnClosedChannel(t *testing.T) {
	pub := &fakePublisher{}
	proc := &fakeProcessor{categories: map[string]progress.Category{"a1": progress.Succeeded}}
	c, _ := NewConsumer(ConsumerParams{Publisher: pub, Processor: proc, MaxWait: 10 * time.Millisecond})

	ack := newFakeAck()
	deliveries := make(chan amqp091.Delivery, 1)
	deliveries <- delivery(t, ack, 1, common.Article{ID: "a1"})
	close(deliveries)

	if err := c.Run(context.Background(), deliveries); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !ack.acked[1] {
		t.Fatalf("expected delivery to be acked")
	}
}

func TestPublishArticle(t *testing.T) {
	pub := &fakePublisher{}
	a := common.Article{ID: "a1", Title: "t"}
	if err := PublishArticle(context.Background(), pub, a); err != nil {
		t.Fatalf("PublishArticle returned error: %v", err)
	}
	msgs := pub.to(ArticleQueue)
	if len(msgs) != 1 || msgs[0].MessageId != "a1" || msgs[0].DeliveryMode != amqp091.Persistent {
		t.Fatalf("unexpected publishing: %+v", msgs)
	}
	var got common.Article
	if err := json.Unmarshal(msgs[0].Body, &got); err != nil || got.ID != "a1" {
		t.Fatalf("unexpected body %s (%v)", msgs[0].Body, err)
	}
}
