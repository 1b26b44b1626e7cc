package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/andres-saa/restaurant-reports/internal/shared"
)

// HandleRenameSync processes TaskRenameSync tasks.
func (d Deps) HandleRenameSync(ctx context.Context, t *asynq.Task) error {
	var payload RenameSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	return d.Metrics.Track("rename_sync").End(d.SyncRenames(ctx, payload))
}

// SyncRenames re-applies every stored rename map for the day. Applying a map
// twice is harmless, so this safely picks up orders that arrived after the
// map did.
func (d Deps) SyncRenames(ctx context.Context, payload RenameSyncPayload) error {
	day := payload.Day
	if day == "" {
		day = d.now().Format(shared.DayFormat)
	}
	applied, err := d.Orders.ReapplyRenameMaps(ctx, day)
	if err != nil {
		return err
	}
	if applied > 0 {
		d.logger().Info("rename maps re-applied", "day", day, "replaced", applied)
	}
	return nil
}
