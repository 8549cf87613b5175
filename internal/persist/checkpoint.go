package persist

import (
	"strconv"

	"github.com/matheus3301/msgr/internal/store"
)

// Checkpoint keys in the sync_state table.
const (
	KeyRealtimeEnabled = "realtime_enabled"
	KeySelectedChat    = "selected_chat"
)

// Checkpoints reads and writes session checkpoints.
type Checkpoints struct {
	db *store.DB
}

// NewCheckpoints creates a checkpoint accessor.
func NewCheckpoints(db *store.DB) *Checkpoints {
	return &Checkpoints{db: db}
}

// SetRealtime records whether real-time was last enabled.
func (c *Checkpoints) SetRealtime(enabled bool) error {
	return c.db.SetSyncState(KeyRealtimeEnabled, strconv.FormatBool(enabled))
}

// Realtime returns the recorded real-time setting, or def if none was stored.
func (c *Checkpoints) Realtime(def bool) (bool, error) {
	v, ok, err := c.db.GetSyncState(KeyRealtimeEnabled)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}

// SelectedChat returns the last selected chat id, "" if none.
func (c *Checkpoints) SelectedChat() (string, error) {
	v, _, err := c.db.GetSyncState(KeySelectedChat)
	return v, err
}
