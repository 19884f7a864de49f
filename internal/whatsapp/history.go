package whatsapp

import (
	"sort"
	"sync"
	"time"
)

// maxRecentPerChat bounds the in-memory history kept per chat.
const maxRecentPerChat = 50

// recentStore caches the most recent messages seen per chat, deduplicated by
// provider message id. It feeds backfill after (re)connection so that events
// observed while the desk was catching up are replayed through intake.
type recentStore struct {
	mu    sync.Mutex
	chats map[string][]InboundMessage
}

func newRecentStore() *recentStore {
	return &recentStore{chats: make(map[string][]InboundMessage)}
}

// add caches a message unless its id is already present. Oldest entries are
// evicted past the per-chat bound.
func (s *recentStore) add(msg InboundMessage) {
	if msg.ExternalID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.chats[msg.ChatKey]
	for _, e := range entries {
		if e.ExternalID == msg.ExternalID {
			return
		}
	}
	entries = append(entries, msg)
	if len(entries) > maxRecentPerChat {
		entries = entries[len(entries)-maxRecentPerChat:]
	}
	s.chats[msg.ChatKey] = entries
}

// recent returns all cached messages newer than now-window, oldest first.
func (s *recentStore) recent(window time.Duration) []InboundMessage {
	cutoff := time.Now().Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []InboundMessage
	for _, entries := range s.chats {
		for _, e := range entries {
			if e.Timestamp.After(cutoff) {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// lookup returns a cached message by chat and id, for quoting replies.
func (s *recentStore) lookup(chatKey, externalID string) (InboundMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.chats[chatKey] {
		if e.ExternalID == externalID {
			return e, true
		}
	}
	return InboundMessage{}, false
}

// unreadIDs returns the cached customer message ids for a chat, for provider
// read receipts.
func (s *recentStore) unreadIDs(chatKey string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, e := range s.chats[chatKey] {
		if !e.FromMe {
			ids = append(ids, e.ExternalID)
		}
	}
	return ids
}
