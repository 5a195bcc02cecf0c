package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardTransitions(t *testing.T) {
	t.Parallel()
	g := NewGuard()
	assert.Equal(t, StateIdle, g.State())

	release, err := g.acquire(StateBroadcasting)
	require.NoError(t, err)
	assert.True(t, g.Busy())

	_, err = g.acquire(StateBroadcasting)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	_, err = g.acquire(StateRecalling)
	assert.ErrorIs(t, err, ErrBroadcastInProgress)

	release()
	release()
	assert.Equal(t, StateIdle, g.State())

	release, err = g.acquire(StateRecalling)
	require.NoError(t, err)
	_, err = g.acquire(StateBroadcasting)
	assert.ErrorIs(t, err, ErrRecallInProgress)
	release()
	assert.Equal(t, "idle", g.State().String())
}
