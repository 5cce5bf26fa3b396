package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logaxpapp/randc-client-sub001/pkg/model"
)

func TestUpsertPresenceLastWriteWins(t *testing.T) {
	tracker := NewPresenceTracker(0, nil)

	tracker.UpsertPresence(model.PresencePayload{
		UserID: "u1", Status: model.StatusOnline, UpdatedAt: time.UnixMilli(5),
	})
	// Out-of-order earlier update must be discarded.
	tracker.UpsertPresence(model.PresencePayload{
		UserID: "u1", Status: model.StatusOffline, UpdatedAt: time.UnixMilli(3),
	})

	e, ok := tracker.Presence("u1")
	require.True(t, ok)
	require.Equal(t, model.StatusOnline, e.Status)

	// Same pair delivered in the other order converges to the same state.
	tracker2 := NewPresenceTracker(0, nil)
	tracker2.UpsertPresence(model.PresencePayload{
		UserID: "u1", Status: model.StatusOffline, UpdatedAt: time.UnixMilli(3),
	})
	tracker2.UpsertPresence(model.PresencePayload{
		UserID: "u1", Status: model.StatusOnline, UpdatedAt: time.UnixMilli(5),
	})

	e2, _ := tracker2.Presence("u1")
	require.Equal(t, e.Status, e2.Status)
}

func TestPresenceSnapshotSorted(t *testing.T) {
	tracker := NewPresenceTracker(0, nil)
	tracker.UpsertPresence(model.PresencePayload{UserID: "u2", Status: model.StatusAway, UpdatedAt: time.UnixMilli(1)})
	tracker.UpsertPresence(model.PresencePayload{UserID: "u1", Status: model.StatusOnline, UpdatedAt: time.UnixMilli(1)})

	snap := tracker.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "u1", snap[0].UserID)
	require.Equal(t, "u2", snap[1].UserID)
}

func TestTypingExpires(t *testing.T) {
	tracker := NewPresenceTracker(5*time.Second, nil)
	now := time.UnixMilli(0)
	tracker.now = func() time.Time { return now }

	tracker.SetTyping("c1", "u1")
	require.Equal(t, []string{"u1"}, tracker.TypingUsers("c1"))

	now = now.Add(6 * time.Second)
	require.Empty(t, tracker.TypingUsers("c1"))
}

func TestTypingRefreshReplacesExpiry(t *testing.T) {
	tracker := NewPresenceTracker(5*time.Second, nil)
	now := time.UnixMilli(0)
	tracker.now = func() time.Time { return now }

	tracker.SetTyping("c1", "u1")
	now = now.Add(4 * time.Second)
	tracker.SetTyping("c1", "u1")

	// One entry, and the refreshed horizon keeps it alive past the first
	// expiry.
	now = now.Add(4 * time.Second)
	require.Equal(t, []string{"u1"}, tracker.TypingUsers("c1"))
}

func TestClearTyping(t *testing.T) {
	tracker := NewPresenceTracker(5*time.Second, nil)

	tracker.SetTyping("c1", "u1")
	tracker.ClearTyping("c1", "u1")
	tracker.ClearTyping("c1", "u1") // no-op on absent pair

	require.Empty(t, tracker.TypingUsers("c1"))
}

func TestSweepExpired(t *testing.T) {
	tracker := NewPresenceTracker(5*time.Second, nil)
	now := time.UnixMilli(0)
	tracker.now = func() time.Time { return now }

	tracker.SetTyping("c1", "u1")
	tracker.SetTyping("c2", "u2")

	now = now.Add(10 * time.Second)
	tracker.SweepExpired()

	tracker.mu.RLock()
	remaining := len(tracker.typing)
	tracker.mu.RUnlock()
	require.Zero(t, remaining)
}

func TestTypingScopedToConversation(t *testing.T) {
	tracker := NewPresenceTracker(5*time.Second, nil)

	tracker.SetTyping("c1", "u1")
	require.Empty(t, tracker.TypingUsers("c2"))
}
