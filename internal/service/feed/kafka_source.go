package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DualSignal/internal/domain/models"
	drepo "DualSignal/internal/domain/repository"
	pkgkafka "DualSignal/pkg/kafka"
	applogger "DualSignal/pkg/logger"
)

// KafkaSource implements MarketStream on top of a Kafka topic of JSON bars.
type KafkaSource struct {
	topic   string
	opts    []pkgkafka.ConsumerOption
	log     *applogger.Logger
	metrics drepo.Metrics

	mu       sync.Mutex
	consumer *pkgkafka.Consumer
	bars     chan *models.Bar
	started  bool
}

func NewKafkaSource(topic string, log *applogger.Logger, metrics drepo.Metrics, opts ...pkgkafka.ConsumerOption) drepo.MarketStream {
	return &KafkaSource{
		topic:   topic,
		opts:    opts,
		log:     log.Named("kafka_feed"),
		metrics: metrics,
		bars:    make(chan *models.Bar, 1024),
	}
}

func (s *KafkaSource) Topic() string { return s.topic }

// Handle decodes one bar. Malformed messages are logged and acknowledged, not retried.
func (s *KafkaSource) Handle(ctx context.Context, data []byte) error {
	bar, err := DecodeKafkaBar(data)
	if err != nil {
		s.metrics.RecordError("feed_decode")
		s.log.Warn("dropped malformed bar message", applogger.Error(err))
		return nil
	}
	select {
	case s.bars <- bar:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *KafkaSource) Connect(ctx context.Context) error {
	c, err := pkgkafka.NewConsumer(s.log, s.opts...)
	if err != nil {
		return fmt.Errorf("kafka feed: %w", err)
	}
	c.RegisterHandler(s)
	s.mu.Lock()
	s.consumer = c
	s.mu.Unlock()
	return nil
}

func (s *KafkaSource) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumer == nil {
		return fmt.Errorf("kafka feed not connected")
	}
	if err := s.consumer.Start(); err != nil {
		return fmt.Errorf("kafka feed start: %w", err)
	}
	s.started = true
	return nil
}

// Read exposes decoded bars. The consumer retries broker errors itself, so errs only closes on ctx end.
func (s *KafkaSource) Read(ctx context.Context) (<-chan *models.Bar, <-chan error) {
	out := make(chan *models.Bar)
	errs := make(chan error)
	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case bar := <-s.bars:
				select {
				case out <- bar:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errs
}

func (s *KafkaSource) Reconnect(ctx context.Context) error {
	_ = s.Close()
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *KafkaSource) Close() error {
	s.mu.Lock()
	c := s.consumer
	s.consumer = nil
	s.started = false
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Stop(ctx)
}

func (s *KafkaSource) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
