package whatsapp

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecentStoreDedupsByExternalID(t *testing.T) {
	s := newRecentStore()
	now := time.Now()

	s.add(InboundMessage{ChatKey: "a", ExternalID: "m-1", Content: "first", Timestamp: now})
	s.add(InboundMessage{ChatKey: "a", ExternalID: "m-1", Content: "again", Timestamp: now})
	s.add(InboundMessage{ChatKey: "a", ExternalID: "", Content: "no id", Timestamp: now})

	got := s.recent(time.Hour)
	require.Len(t, got, 1)
	require.Equal(t, "first", got[0].Content)
}

func TestRecentStoreBoundsPerChat(t *testing.T) {
	s := newRecentStore()
	now := time.Now()

	for i := 0; i < maxRecentPerChat+10; i++ {
		s.add(InboundMessage{
			ChatKey:    "a",
			ExternalID: fmt.Sprintf("m-%d", i),
			Timestamp:  now.Add(time.Duration(i) * time.Second),
		})
	}

	got := s.recent(time.Hour)
	require.Len(t, got, maxRecentPerChat)
	// Oldest entries are evicted first.
	require.Equal(t, "m-10", got[0].ExternalID)
}

func TestRecentStoreWindowAndOrdering(t *testing.T) {
	s := newRecentStore()
	now := time.Now()

	s.add(InboundMessage{ChatKey: "a", ExternalID: "old", Timestamp: now.Add(-2 * time.Hour)})
	s.add(InboundMessage{ChatKey: "b", ExternalID: "late", Timestamp: now.Add(-time.Minute)})
	s.add(InboundMessage{ChatKey: "a", ExternalID: "early", Timestamp: now.Add(-30 * time.Minute)})

	got := s.recent(time.Hour)
	require.Len(t, got, 2)
	require.Equal(t, "early", got[0].ExternalID)
	require.Equal(t, "late", got[1].ExternalID)
}

func TestRecentStoreLookupAndUnreadIDs(t *testing.T) {
	s := newRecentStore()
	now := time.Now()

	s.add(InboundMessage{ChatKey: "a", ExternalID: "in-1", Content: "oi", Timestamp: now})
	s.add(InboundMessage{ChatKey: "a", ExternalID: "out-1", FromMe: true, Timestamp: now})

	cached, ok := s.lookup("a", "in-1")
	require.True(t, ok)
	require.Equal(t, "oi", cached.Content)

	_, ok = s.lookup("a", "missing")
	require.False(t, ok)

	require.Equal(t, []string{"in-1"}, s.unreadIDs("a"))
	require.Empty(t, s.unreadIDs("other"))
}
