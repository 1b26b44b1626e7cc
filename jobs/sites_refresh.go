package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// HandleSitesRefresh processes TaskSitesRefresh tasks.
func (d Deps) HandleSitesRefresh(ctx context.Context, _ *asynq.Task) error {
	return d.Metrics.Track("sites_refresh").End(d.RefreshSites(ctx))
}

// RefreshSites pulls the POS site list into the registry.
func (d Deps) RefreshSites(ctx context.Context) error {
	count, err := d.Sites.Refresh(ctx)
	if err != nil {
		return err
	}
	d.logger().Info("site registry refreshed", "sites", count)
	return nil
}
