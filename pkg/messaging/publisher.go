package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/metrics"
	"interview-coach/pkg/scoring"
	"interview-coach/pkg/session"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Message kinds
const (
	KindRoundResult = "round_result"
	KindSummary     = "summary"
)

// ResultMessage is the JSON body published for each round result or summary
type ResultMessage struct {
	MessageID string                  `json:"message_id"`
	Kind      string                  `json:"kind"`
	SessionID string                  `json:"session_id"`
	Timestamp time.Time               `json:"timestamp"`
	Round     *scoring.RoundResult    `json:"round,omitempty"`
	Summary   *scoring.SessionSummary `json:"summary,omitempty"`
}

// DeliveryConfig holds retry settings for result delivery
type DeliveryConfig struct {
	QueueSize         int
	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	BackoffMultiplier float64
	// Messages older than this are dropped instead of retried
	MessageTimeout time.Duration
	RetryInterval  time.Duration
	StorageSize    int
}

// DefaultDeliveryConfig returns default configuration for result delivery
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		QueueSize:         256,
		MaxRetries:        5,
		InitialRetryDelay: time.Second,
		MaxRetryDelay:     30 * time.Second,
		BackoffMultiplier: 2.0,
		MessageTimeout:    5 * time.Minute,
		RetryInterval:     time.Second,
		StorageSize:       1000,
	}
}

// ResultPublisher is a session sink that publishes round results and
// summaries. Sink calls only enqueue; delivery runs on its own goroutine.
type ResultPublisher struct {
	logger   *logrus.Entry
	client   AMQPClientInterface
	routing  config.MessagingConfig
	delivery DeliveryConfig
	storage  *MemoryMessageStorage
	queue    chan *PendingMessage

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ session.UpdateSink = (*ResultPublisher)(nil)

// NewResultPublisher creates a publisher on top of client
func NewResultPublisher(client AMQPClientInterface, routing config.MessagingConfig, delivery DeliveryConfig, logger *logrus.Logger) *ResultPublisher {
	defaults := DefaultDeliveryConfig()
	if delivery.QueueSize <= 0 {
		delivery.QueueSize = defaults.QueueSize
	}
	if delivery.InitialRetryDelay <= 0 {
		delivery.InitialRetryDelay = defaults.InitialRetryDelay
	}
	if delivery.MaxRetryDelay <= 0 {
		delivery.MaxRetryDelay = defaults.MaxRetryDelay
	}
	if delivery.BackoffMultiplier < 1 {
		delivery.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if delivery.MessageTimeout <= 0 {
		delivery.MessageTimeout = defaults.MessageTimeout
	}
	if delivery.RetryInterval <= 0 {
		delivery.RetryInterval = defaults.RetryInterval
	}
	if routing.RoundRoutingKey == "" {
		routing.RoundRoutingKey = "interview.round"
	}
	if routing.SummaryRoutingKey == "" {
		routing.SummaryRoutingKey = "interview.summary"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ResultPublisher{
		logger:   logger.WithField("component", "result-publisher"),
		client:   client,
		routing:  routing,
		delivery: delivery,
		storage:  NewMemoryMessageStorage(delivery.StorageSize),
		queue:    make(chan *PendingMessage, delivery.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the delivery loop
func (p *ResultPublisher) Start() {
	p.wg.Add(1)
	go p.run()

	p.logger.WithFields(logrus.Fields{
		"queue_size":  p.delivery.QueueSize,
		"max_retries": p.delivery.MaxRetries,
	}).Info("Result publisher started")
}

// Stop ends delivery. Messages still pending are dropped.
func (p *ResultPublisher) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()

		if pending := p.storage.Count() + len(p.queue); pending > 0 {
			p.logger.WithField("pending", pending).Warn("Result publisher stopped with undelivered messages")
		}
	})
}

// Pending returns the number of messages waiting for a retry
func (p *ResultPublisher) Pending() int {
	return p.storage.Count()
}

func (p *ResultPublisher) OnLiveUpdate(session.LiveUpdate) {}

func (p *ResultPublisher) OnStateChange(session.Status) {}

// OnRoundResult queues a round result for publishing
func (p *ResultPublisher) OnRoundResult(sessionID string, result scoring.RoundResult) {
	p.enqueue(ResultMessage{Kind: KindRoundResult, SessionID: sessionID, Round: &result}, p.routing.RoundRoutingKey)
}

// OnSummary queues a session summary for publishing
func (p *ResultPublisher) OnSummary(sessionID string, summary scoring.SessionSummary) {
	p.enqueue(ResultMessage{Kind: KindSummary, SessionID: sessionID, Summary: &summary}, p.routing.SummaryRoutingKey)
}

func (p *ResultPublisher) enqueue(message ResultMessage, routingKey string) {
	message.MessageID = uuid.New().String()
	message.Timestamp = time.Now()

	body, err := json.Marshal(message)
	if err != nil {
		p.logger.WithError(err).WithField("session_id", message.SessionID).Error("Failed to encode result message")
		metrics.RecordAMQPPublish(message.Kind, "error")
		return
	}

	pending := &PendingMessage{
		ID:          message.MessageID,
		SessionID:   message.SessionID,
		Kind:        message.Kind,
		RoutingKey:  routingKey,
		Body:        body,
		CreatedAt:   message.Timestamp,
		NextRetryAt: message.Timestamp,
	}

	select {
	case p.queue <- pending:
	default:
		metrics.RecordAMQPPublish(message.Kind, "dropped")
		p.logger.WithFields(logrus.Fields{
			"session_id": message.SessionID,
			"kind":       message.Kind,
		}).Warn("Result queue full, dropping message")
	}
}

func (p *ResultPublisher) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.delivery.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.queue:
			p.deliver(msg)
		case now := <-ticker.C:
			for _, msg := range p.storage.Due(now) {
				p.deliver(msg)
			}
		}
	}
}

func (p *ResultPublisher) deliver(msg *PendingMessage) {
	msg.AttemptCount++
	logger := p.logger.WithFields(logrus.Fields{
		"message_id":    msg.ID,
		"session_id":    msg.SessionID,
		"kind":          msg.Kind,
		"attempt_count": msg.AttemptCount,
	})

	err := p.client.Publish(msg.RoutingKey, msg.ID, msg.Body)
	if err == nil {
		p.storage.Delete(msg.ID)
		metrics.RecordAMQPPublish(msg.Kind, "success")
		logger.Debug("Result message delivered")
		return
	}

	if msg.AttemptCount > p.delivery.MaxRetries || time.Since(msg.CreatedAt) > p.delivery.MessageTimeout {
		p.storage.Delete(msg.ID)
		metrics.RecordAMQPPublish(msg.Kind, "failed")
		logger.WithError(err).Error("Giving up on result message")
		return
	}

	msg.NextRetryAt = time.Now().Add(p.retryDelay(msg.AttemptCount))
	p.storage.Store(msg)
	metrics.RecordAMQPPublish(msg.Kind, "retry")
	logger.WithError(err).WithField("next_retry_at", msg.NextRetryAt).Warn("Result delivery failed, scheduling retry")
}

// retryDelay grows exponentially from InitialRetryDelay up to MaxRetryDelay
func (p *ResultPublisher) retryDelay(attempt int) time.Duration {
	delay := float64(p.delivery.InitialRetryDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.delivery.BackoffMultiplier
	}
	if delay > float64(p.delivery.MaxRetryDelay) {
		return p.delivery.MaxRetryDelay
	}
	return time.Duration(delay)
}
