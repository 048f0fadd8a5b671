package messaging

import (
	"sort"
	"sync"
	"time"
)

// PendingMessage is a result message awaiting delivery
type PendingMessage struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Kind         string    `json:"kind"`
	RoutingKey   string    `json:"routing_key"`
	Body         []byte    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
	AttemptCount int       `json:"attempt_count"`
	NextRetryAt  time.Time `json:"next_retry_at"`
}

// MemoryMessageStorage keeps undelivered messages in memory. Messages are lost
// on restart; once full the oldest message is evicted.
type MemoryMessageStorage struct {
	messages map[string]*PendingMessage
	capacity int
	mutex    sync.RWMutex
}

// NewMemoryMessageStorage creates a new in-memory message storage
func NewMemoryMessageStorage(capacity int) *MemoryMessageStorage {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryMessageStorage{
		messages: make(map[string]*PendingMessage),
		capacity: capacity,
	}
}

// Store stores a copy of msg, evicting the oldest message when full
func (m *MemoryMessageStorage) Store(msg *PendingMessage) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.messages[msg.ID]; !exists && len(m.messages) >= m.capacity {
		var oldest *PendingMessage
		for _, candidate := range m.messages {
			if oldest == nil || candidate.CreatedAt.Before(oldest.CreatedAt) {
				oldest = candidate
			}
		}
		delete(m.messages, oldest.ID)
	}

	msgCopy := *msg
	m.messages[msg.ID] = &msgCopy
}

// Due returns copies of messages whose retry time has passed, oldest first
func (m *MemoryMessageStorage) Due(now time.Time) []*PendingMessage {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var due []*PendingMessage
	for _, msg := range m.messages {
		if !msg.NextRetryAt.After(now) {
			msgCopy := *msg
			due = append(due, &msgCopy)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	return due
}

// Delete removes a message by ID
func (m *MemoryMessageStorage) Delete(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.messages, id)
}

// Count returns the total number of stored messages
func (m *MemoryMessageStorage) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.messages)
}

// CleanupExpired removes messages created before cutoff
func (m *MemoryMessageStorage) CleanupExpired(cutoff time.Time) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	removed := 0
	for id, msg := range m.messages {
		if msg.CreatedAt.Before(cutoff) {
			delete(m.messages, id)
			removed++
		}
	}
	return removed
}
