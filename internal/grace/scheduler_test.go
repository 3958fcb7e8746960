package grace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expiry struct {
	key   Key
	token uint64
}

func collector() (ExpireFunc, chan expiry) {
	ch := make(chan expiry, 8)
	return func(key Key, token uint64) { ch <- expiry{key, token} }, ch
}

func TestScheduler_ArmFiresAfterPeriod(t *testing.T) {
	s := NewScheduler(20 * time.Millisecond)
	onExpire, fired := collector()
	key := Key{RoomID: "r1", Username: "alice"}

	entry, err := s.Arm(key, "c1", onExpire)
	require.NoError(t, err)
	assert.Equal(t, "c1", entry.ConnectionID)
	assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), entry.ExpiresAt, 50*time.Millisecond)

	select {
	case got := <-fired:
		assert.Equal(t, key, got.key)
		assert.Equal(t, entry.Token, got.token)
	case <-time.After(time.Second):
		t.Fatal("grace timer never fired")
	}

	claimed, ok := s.Claim(key, entry.Token)
	require.True(t, ok)
	assert.Equal(t, "c1", claimed.ConnectionID)
	assert.Zero(t, s.Len())
}

func TestScheduler_SecondArmForSameIdentityRejected(t *testing.T) {
	s := NewScheduler(time.Minute)
	defer s.Stop()
	onExpire, _ := collector()
	key := Key{RoomID: "r1", Username: "alice"}

	first, err := s.Arm(key, "c1", onExpire)
	require.NoError(t, err)

	existing, err := s.Arm(key, "c2", onExpire)
	assert.ErrorIs(t, err, ErrTimerExists)
	assert.Equal(t, first.Token, existing.Token)
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_CancelPreventsClaim(t *testing.T) {
	s := NewScheduler(10 * time.Millisecond)
	onExpire, fired := collector()
	key := Key{RoomID: "r1", Username: "alice"}

	entry, err := s.Arm(key, "c1", onExpire)
	require.NoError(t, err)
	assert.True(t, s.Cancel(key))
	assert.False(t, s.Cancel(key))

	// Even if the callback had already been scheduled, a claim must fail.
	_, ok := s.Claim(key, entry.Token)
	assert.False(t, ok)

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduler_StaleTokenRejected(t *testing.T) {
	s := NewScheduler(time.Minute)
	defer s.Stop()
	onExpire, _ := collector()
	key := Key{RoomID: "r1", Username: "alice"}

	old, err := s.Arm(key, "c1", onExpire)
	require.NoError(t, err)
	s.Cancel(key)

	fresh, err := s.Arm(key, "c2", onExpire)
	require.NoError(t, err)
	assert.NotEqual(t, old.Token, fresh.Token)

	_, ok := s.Claim(key, old.Token)
	assert.False(t, ok, "expiry from an earlier grace period must not remove the participant")

	pending, ok := s.Pending(key)
	require.True(t, ok)
	assert.Equal(t, "c2", pending.ConnectionID)
}

func TestScheduler_CancelRoom(t *testing.T) {
	s := NewScheduler(time.Minute)
	defer s.Stop()
	onExpire, _ := collector()

	_, _ = s.Arm(Key{RoomID: "r1", Username: "alice"}, "c1", onExpire)
	_, _ = s.Arm(Key{RoomID: "r1", Username: "bob"}, "c2", onExpire)
	_, _ = s.Arm(Key{RoomID: "r2", Username: "carol"}, "c3", onExpire)

	assert.Equal(t, 2, s.CancelRoom("r1"))
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_StopRejectsArm(t *testing.T) {
	s := NewScheduler(time.Minute)
	onExpire, _ := collector()
	_, _ = s.Arm(Key{RoomID: "r1", Username: "alice"}, "c1", onExpire)

	s.Stop()
	assert.Zero(t, s.Len())

	_, err := s.Arm(Key{RoomID: "r1", Username: "bob"}, "c2", onExpire)
	assert.ErrorIs(t, err, ErrStopped)
}
