package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/prodcatalog/pkg/metrics"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() error {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	if spec := a.appConfig.Catalog.RefreshSchedule; spec != "" {
		if _, err := a.sched.AddFunc(spec, a.SchedCatalogRefreshTask); err != nil {
			return errors.Wrapf(err, "invalid refresh schedule %q", spec)
		}
	}

	_, err = a.sched.AddFunc("@every 30s", a.SchedCatalogStatsTask)
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}
	return nil
}

// SchedCatalogRefreshTask periodic refresh, the pending queue is left alone
func (a *Application) SchedCatalogRefreshTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	out := a.vm.Refresh(context.Background())
	zap.L().Debug("scheduled catalog refresh",
		zap.String("namespace", "app"),
		zap.Stringer("status", out.Status))
}

// SchedCatalogStatsTask records store sizes
func (a *Application) SchedCatalogStatsTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	ctx := context.Background()
	entries, err := a.store.Entries(ctx)
	if err == nil {
		metrics.SetGauge(metrics.CatalogSize, int64(len(entries)))
	}
	pending, err := a.store.PendingRequests(ctx)
	if err == nil {
		metrics.SetGauge(metrics.PendingSize, int64(len(pending)))
	}
}
