package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Joined(42)
	r.Joined(42)
	require.Equal(t, 1, r.Len())

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(42), snap[0].UID)
	assert.True(t, snap[0].VideoOn)
	assert.True(t, snap[0].AudioOn)
}

func TestRegistryUnknownUpdateIsDropped(t *testing.T) {
	r := NewRegistry()
	// media state arriving before the join event for the same uid
	r.SetVideo(99, true)
	r.SetAudio(99, false)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestRegistryLeftUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Joined(1)
	r.Left(2)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryMediaFlags(t *testing.T) {
	r := NewRegistry()
	r.Joined(7)
	r.SetVideo(7, false)
	r.SetAudio(7, false)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.False(t, snap[0].VideoOn)
	assert.False(t, snap[0].AudioOn)
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Joined(1)
	snap := r.Snapshot()
	r.SetVideo(1, false)
	assert.True(t, snap[0].VideoOn)
}

func TestRegistryJoinOrderPreserved(t *testing.T) {
	r := NewRegistry()
	r.Joined(3)
	r.Joined(1)
	r.Joined(2)
	r.Left(1)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(3), snap[0].UID)
	assert.Equal(t, int64(2), snap[1].UID)
}

func TestRegistryReset(t *testing.T) {
	r := NewRegistry()
	r.Joined(1)
	r.Joined(2)
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Snapshot())
}
