package messaging

// AMQPClientInterface defines the interface for AMQP clients
type AMQPClientInterface interface {
	Publish(routingKey, messageID string, body []byte) error
	IsConnected() bool
	Connect() error
	Disconnect()
}
