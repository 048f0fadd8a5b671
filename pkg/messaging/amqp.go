package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"interview-coach/pkg/config"
	"interview-coach/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const publishTimeout = 2 * time.Second

// AMQPClient publishes session results to a topic exchange
type AMQPClient struct {
	logger    *logrus.Logger
	config    config.MessagingConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPClient creates a new AMQP client
func NewAMQPClient(logger *logrus.Logger, cfg config.MessagingConfig) *AMQPClient {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = amqp.ExchangeTopic
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	return &AMQPClient{
		logger:   logger,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// Connect establishes a connection to the AMQP server and declares the exchange
func (c *AMQPClient) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}

	if c.config.AMQPUrl == "" || c.config.ExchangeName == "" {
		return fmt.Errorf("AMQP URL or exchange name not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
	defer cancel()

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	connChan := make(chan dialResult, 1)

	go func() {
		conn, err := amqp.Dial(c.config.AMQPUrl)
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		case connChan <- dialResult{conn, err}:
		}
	}()

	var result dialResult
	select {
	case result = <-connChan:
	case <-ctx.Done():
		return fmt.Errorf("connection to AMQP server timed out after %s", c.config.ConnectTimeout)
	}
	if result.err != nil {
		return fmt.Errorf("failed to connect to AMQP server: %w", result.err)
	}
	conn := result.conn

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		c.config.ExchangeName,
		c.config.ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP exchange: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.connected = true
	c.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	c.logger.WithFields(logrus.Fields{
		"exchange":      c.config.ExchangeName,
		"exchange_type": c.config.ExchangeType,
	}).Info("Connected to AMQP server")

	go c.monitorConnection(conn, c.stopChan)

	return nil
}

// Disconnect closes the AMQP connection
func (c *AMQPClient) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.connected {
		return
	}

	close(c.stopChan)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	metrics.SetAMQPConnectionStatus(false)
	c.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// Publish sends a persistent JSON message to the exchange
func (c *AMQPClient) Publish(routingKey, messageID string, body []byte) error {
	c.connMutex.RLock()
	channel := c.channel
	connected := c.connected
	c.connMutex.RUnlock()

	if !connected || channel == nil {
		return fmt.Errorf("not connected to AMQP server")
	}

	publishChan := make(chan error, 1)
	go func() {
		publishChan <- channel.Publish(
			c.config.ExchangeName,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				MessageId:    messageID,
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			},
		)
	}()

	select {
	case err := <-publishChan:
		if err != nil {
			return fmt.Errorf("failed to publish to AMQP: %w", err)
		}
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing to AMQP timed out after %s", publishTimeout)
	}

	c.logger.WithFields(logrus.Fields{
		"routing_key": routingKey,
		"message_id":  messageID,
	}).Debug("Published message to AMQP")
	return nil
}

// monitorConnection reconnects with backoff when the broker drops the connection
func (c *AMQPClient) monitorConnection(conn *amqp.Connection, stop chan struct{}) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-stop:
		return
	case closeErr := <-closeChan:
		c.connMutex.Lock()
		c.connected = false
		c.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)

		c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")

		for attempt := 1; attempt <= 10; attempt++ {
			select {
			case <-stop:
				return
			default:
			}

			err := c.Connect()
			if err == nil {
				c.logger.Info("Successfully reconnected to AMQP server")
				return
			}
			c.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			time.Sleep(backoff)
		}
	}
}
