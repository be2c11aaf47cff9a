/*
Package store keeps the per-channel message sequences.

Two writers feed a sequence: REST snapshots through LoadSnapshot and realtime
events through the Apply methods. Within a channel ids are unique and order is
the order the server delivered them in. Edits and deletes of an unknown id are
no-ops, so replays and duplicate deliveries are harmless.
*/
package store

import (
	"sync"

	"github.com/samber/lo"

	"github.com/concord-chat/teamchat/internal/models"
)

// sequence is one channel's ordered messages with an id index
type sequence struct {
	messages []models.Message
	index    map[string]int
}

func newSequence() *sequence {
	return &sequence{index: make(map[string]int)}
}

func (s *sequence) append(m models.Message) bool {
	if _, ok := s.index[m.ID]; ok {
		return false
	}
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
	return true
}

func (s *sequence) remove(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.reindex()
	return true
}

func (s *sequence) trim(limit int) {
	if limit <= 0 || len(s.messages) <= limit {
		return
	}
	// Trim oldest half, as a circular buffer would
	keep := max(limit/2, 1)
	s.messages = append([]models.Message(nil), s.messages[len(s.messages)-keep:]...)
	s.reindex()
}

func (s *sequence) reindex() {
	s.index = make(map[string]int, len(s.messages))
	for i, m := range s.messages {
		s.index[m.ID] = i
	}
}

// MessageStore holds every channel's sequence
type MessageStore struct {
	mu       sync.RWMutex
	channels map[string]*sequence
	limit    int

	listenersMu sync.Mutex
	listeners   []func(channelID string)
}

// New creates a store. limit caps each channel's sequence; 0 means no cap.
func New(limit int) *MessageStore {
	return &MessageStore{
		channels: make(map[string]*sequence),
		limit:    limit,
	}
}

// OnChange registers fn to run after any change to a channel's sequence.
// fn runs outside the store's lock.
func (s *MessageStore) OnChange(fn func(channelID string)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *MessageStore) changed(channelID string) {
	s.listenersMu.Lock()
	fns := append([]func(string){}, s.listeners...)
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(channelID)
	}
}

// LoadSnapshot replaces a channel's sequence with messages. Repeated ids keep
// their first occurrence.
func (s *MessageStore) LoadSnapshot(channelID string, messages []models.Message) {
	seq := newSequence()
	for _, m := range messages {
		m.ChannelID = channelID
		seq.append(m)
	}
	seq.trim(s.limit)

	s.mu.Lock()
	s.channels[channelID] = seq
	s.mu.Unlock()

	s.changed(channelID)
}

// ApplyInsert appends m to its channel unless the id is already present
func (s *MessageStore) ApplyInsert(m models.Message) bool {
	if m.ID == "" || m.ChannelID == "" {
		return false
	}

	s.mu.Lock()
	seq, ok := s.channels[m.ChannelID]
	if !ok {
		seq = newSequence()
		s.channels[m.ChannelID] = seq
	}
	added := seq.append(m)
	if added {
		seq.trim(s.limit)
	}
	s.mu.Unlock()

	if added {
		s.changed(m.ChannelID)
	}
	return added
}

// ApplyUpdate replaces the content and edit time of an existing message in
// place. Without a channel id every channel is searched.
func (s *MessageStore) ApplyUpdate(m models.Message) bool {
	s.mu.Lock()
	channelID := m.ChannelID
	if channelID == "" {
		channelID = s.locate(m.ID)
	}

	seq, ok := s.channels[channelID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	i, ok := seq.index[m.ID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	seq.messages[i].Content = m.Content
	seq.messages[i].EditedAt = m.EditedAt
	s.mu.Unlock()

	s.changed(channelID)
	return true
}

// ApplyDelete removes a message. Without a channel id every channel is searched.
func (s *MessageStore) ApplyDelete(channelID, messageID string) bool {
	s.mu.Lock()
	if channelID == "" {
		channelID = s.locate(messageID)
	}

	seq, ok := s.channels[channelID]
	removed := ok && seq.remove(messageID)
	s.mu.Unlock()

	if removed {
		s.changed(channelID)
	}
	return removed
}

// locate finds the channel holding id. Caller holds mu.
func (s *MessageStore) locate(id string) string {
	for channelID, seq := range s.channels {
		if _, ok := seq.index[id]; ok {
			return channelID
		}
	}
	return ""
}

// Messages returns a copy of a channel's sequence
func (s *MessageStore) Messages(channelID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, ok := s.channels[channelID]
	if !ok {
		return []models.Message{}
	}
	return append([]models.Message(nil), seq.messages...)
}

// Get returns one message
func (s *MessageStore) Get(channelID, id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, ok := s.channels[channelID]
	if !ok {
		return models.Message{}, false
	}
	i, ok := seq.index[id]
	if !ok {
		return models.Message{}, false
	}
	return seq.messages[i], true
}

// Drop forgets a channel's sequence
func (s *MessageStore) Drop(channelID string) {
	s.mu.Lock()
	_, ok := s.channels[channelID]
	delete(s.channels, channelID)
	s.mu.Unlock()

	if ok {
		s.changed(channelID)
	}
}

// Reset forgets every sequence
func (s *MessageStore) Reset() {
	s.mu.Lock()
	dropped := lo.Keys(s.channels)
	s.channels = make(map[string]*sequence)
	s.mu.Unlock()

	for _, id := range dropped {
		s.changed(id)
	}
}
