package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia/custody/pkg/upload/state"
)

func TestStore_SaveLoadClear(t *testing.T) {
	store := New()

	snapshot := &state.Snapshot{
		CaptureID:      "cap-001",
		SessionID:      "sess-abc",
		Parts:          []state.Part{{Number: 1, Token: "etag-1"}},
		NextPartNumber: 2,
	}
	require.NoError(t, store.Save(snapshot))

	loaded, err := store.Load("cap-001")
	require.NoError(t, err)
	assert.Equal(t, snapshot, loaded)

	require.NoError(t, store.Clear("cap-001"))
	_, err = store.Load("cap-001")
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	store := New()

	require.NoError(t, store.Save(&state.Snapshot{
		CaptureID: "cap-001",
		Parts:     []state.Part{{Number: 1, Token: "etag-1"}},
	}))

	loaded, err := store.Load("cap-001")
	require.NoError(t, err)
	loaded.Parts[0].Token = "mutated"

	fresh, err := store.Load("cap-001")
	require.NoError(t, err)
	assert.Equal(t, "etag-1", fresh.Parts[0].Token)
}

func TestStore_ClearMissingIsNoop(t *testing.T) {
	assert.NoError(t, New().Clear("no-such-capture"))
}
