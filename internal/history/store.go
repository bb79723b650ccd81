package history

import (
	"strings"
	"sync"

	"github.com/sensorflow/sensorflow-core/internal/codec"
)

// DefaultCapacity is the per-topic buffer size used when none is configured.
const DefaultCapacity = 300

// Store holds bounded per-topic reading buffers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Store struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[string]*ring
	order    []string // topic creation order, for deterministic replay
}

// ring is a fixed-capacity FIFO buffer of readings for one topic.
type ring struct {
	readings []codec.Reading
	head     int // index of the oldest reading
	size     int
	unit     string // unit of the most recent reading
}

// NewStore creates a Store with the given per-topic capacity.
// A capacity below 1 falls back to DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		buffers:  make(map[string]*ring),
	}
}

// Capacity returns the per-topic buffer capacity.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append pushes a reading onto the topic's buffer, evicting the oldest
// reading when the buffer is full. The buffer is created on first append.
// O(1).
func (s *Store) Append(topic string, reading codec.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[topic]
	if !ok {
		buf = &ring{readings: make([]codec.Reading, s.capacity)}
		s.buffers[topic] = buf
		s.order = append(s.order, topic)
	}

	if buf.size < s.capacity {
		buf.readings[(buf.head+buf.size)%s.capacity] = reading
		buf.size++
	} else {
		buf.readings[buf.head] = reading
		buf.head = (buf.head + 1) % s.capacity
	}
	buf.unit = reading.Unit
}

// Snapshot returns a copy of the topic's readings in arrival order.
// Unknown topics yield an empty slice.
func (s *Store) Snapshot(topic string) []codec.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.buffers[topic]
	if !ok {
		return nil
	}

	out := make([]codec.Reading, buf.size)
	for i := 0; i < buf.size; i++ {
		out[i] = buf.readings[(buf.head+i)%s.capacity]
	}
	return out
}

// Unit returns the unit of the topic's most recent reading, used to tag
// history replay. Unknown topics yield an empty string.
func (s *Store) Unit(topic string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if buf, ok := s.buffers[topic]; ok {
		return buf.unit
	}
	return ""
}

// Len returns the number of readings currently buffered for the topic.
func (s *Store) Len(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if buf, ok := s.buffers[topic]; ok {
		return buf.size
	}
	return 0
}

// Topics returns all topics with buffered readings, in creation order.
func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.order...)
}

// Purge removes a topic's buffer entirely.
func (s *Store) Purge(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(topic)
}

// PurgePrefix removes every topic under the given prefix (a device's
// namespace on unregistration). Returns the purged topics.
func (s *Store) PurgePrefix(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []string
	for topic := range s.buffers {
		if topic == prefix || strings.HasPrefix(topic, prefix+"/") {
			purged = append(purged, topic)
		}
	}
	for _, topic := range purged {
		s.remove(topic)
	}
	return purged
}

// remove deletes a topic's buffer and its order entry. Caller holds s.mu.
func (s *Store) remove(topic string) {
	if _, ok := s.buffers[topic]; !ok {
		return
	}
	delete(s.buffers, topic)
	for i, t := range s.order {
		if t == topic {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
