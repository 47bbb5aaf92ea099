package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/newsgraph/internal/queue"
	"github.com/OFFIS-RIT/newsgraph/internal/setup"
	"github.com/OFFIS-RIT/newsgraph/internal/util"
	"github.com/OFFIS-RIT/newsgraph/pkg/leaselock"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/progress"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := setup.LoadConfig()
	setup.InitLogger(cfg)

	rt, err := setup.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to set up pipeline", "err", err)
	}
	defer rt.Close(context.WithoutCancel(ctx))

	// Init rabbitmq
	conn, err := queue.Init()
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, []string{queue.ArticleQueue}); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// Prefetch a full batch so the consumer can fill it.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()
	if err := consumerCh.Qos(cfg.BatchSize, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	consumer, err := queue.NewConsumer(queue.ConsumerParams{
		Publisher: ch,
		Processor: rt.Orchestrator,
		Queue:     queue.ArticleQueue,
		BatchSize: cfg.BatchSize,
		MaxWait:   cfg.BatchWait,
	})
	if err != nil {
		logger.Fatal("Failed to create consumer", "err", err)
	}

	go rt.Tracker.Snapshot(ctx, cfg.ProgressInterval, func(s progress.Summary) {
		logger.Info("[Progress] Snapshot", s.KeyVals()...)
		m := rt.AI.GetMetrics()
		logger.Debug("[AI] Usage", "requests", m.Requests, "input_tokens", m.InputTokens, "output_tokens", m.OutputTokens, "tokens_per_second", m.TokenPerSecond)
	})

	consume := func(ctx context.Context) error {
		deliveries, err := consumerCh.Consume(queue.ArticleQueue, queue.ArticleQueue+"_consumer", false, false, false, false, nil)
		if err != nil {
			return err
		}
		logger.Info("Listening for messages", "queue", queue.ArticleQueue, "run_id", rt.Orchestrator.RunID())
		return consumer.Run(ctx, deliveries)
	}

	if rt.Pool != nil {
		host, _ := os.Hostname()
		err = leaselock.New(rt.Pool).WithLease(ctx, leaselock.CheckpointKey(cfg.CheckpointName), leaselock.Options{
			Owner: host,
			Wait:  true,
		}, consume)
	} else {
		err = consume(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker stopped", "err", err)
	}
	kv := rt.Tracker.Summary().KeyVals()
	if gs, err := rt.Engine.Stats(context.WithoutCancel(ctx)); err == nil {
		kv = append(kv, "entities", gs.Entities, "relationships", gs.Relationships)
	}
	logger.Info("Worker stopped", kv...)
}
