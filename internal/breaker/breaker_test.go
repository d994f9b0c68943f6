package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_PauseUnpause(t *testing.T) {
	b := New()
	assert.False(t, b.Paused())

	st, err := b.Pause("oracle feed compromised")
	require.NoError(t, err)
	assert.True(t, st.Paused)
	assert.Equal(t, "oracle feed compromised", st.Reason)
	assert.False(t, st.Since.IsZero())
	assert.True(t, b.Paused())

	_, err = b.Unpause()
	require.NoError(t, err)
	assert.False(t, b.Paused())
	assert.Empty(t, b.Snapshot().Reason)
}

func TestBreaker_DoublePauseRejected(t *testing.T) {
	b := New()
	_, err := b.Pause("first")
	require.NoError(t, err)

	_, err = b.Pause("second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyPaused)
	// Original reason preserved.
	assert.Equal(t, "first", b.Snapshot().Reason)
}

func TestBreaker_UnpauseWhenNotPaused(t *testing.T) {
	b := New()
	_, err := b.Unpause()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestBreaker_PausedForDuration(t *testing.T) {
	b := New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	_, err := b.Pause("drill")
	require.NoError(t, err)

	b.now = func() time.Time { return base.Add(90 * time.Second) }
	pausedFor, err := b.Unpause()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, pausedFor)
}
