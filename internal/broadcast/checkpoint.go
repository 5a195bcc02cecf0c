package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"castbot/internal/storage"
)

// CheckpointKey is the settings key holding the resume position.
const CheckpointKey = "broadcast_progress"

// Checkpoint is the number of recipients, in registration order, that a resumed run
// skips. Its absence means start from the first recipient.
type Checkpoint struct {
	Offset    int       `json:"last_index"`
	RunID     string    `json:"run_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

var errCorruptCheckpoint = errors.New("corrupt checkpoint")

// LoadCheckpoint returns the stored checkpoint and whether one exists.
func LoadCheckpoint(ctx context.Context, s storage.SettingsStore) (Checkpoint, bool, error) {
	raw, err := s.GetSetting(ctx, CheckpointKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, err
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil || cp.Offset < 0 {
		return Checkpoint{}, false, fmt.Errorf("%w: %q", errCorruptCheckpoint, raw)
	}
	return cp, true, nil
}

func SaveCheckpoint(ctx context.Context, s storage.SettingsStore, cp Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	b, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.SetSetting(ctx, CheckpointKey, string(b))
}

func ClearCheckpoint(ctx context.Context, s storage.SettingsStore) error {
	return s.DeleteSetting(ctx, CheckpointKey)
}
