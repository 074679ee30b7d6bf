package app

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/connectivity"
	"github.com/talkincode/prodcatalog/internal/feedback"
	"github.com/talkincode/prodcatalog/internal/reconcile"
	"github.com/talkincode/prodcatalog/internal/remote"
	"github.com/talkincode/prodcatalog/internal/store"
	"github.com/talkincode/prodcatalog/internal/viewmodel"
	"github.com/talkincode/prodcatalog/internal/webapi"
	"github.com/talkincode/prodcatalog/pkg/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Application struct {
	appConfig *config.AppConfig
	store     *store.Serialized
	remote    remote.Client
	bus       EventBus.Bus
	hub       *feedback.Hub
	conn      connectivity.Service
	manual    *connectivity.ManualSource
	engine    *reconcile.Engine
	vm        *viewmodel.ViewModel
	pool      *ants.Pool
	sched     *cron.Cron
	web       *webapi.Server
}

// Ensure Application implements all interfaces
var (
	_ ConfigProvider       = (*Application)(nil)
	_ StoreProvider        = (*Application)(nil)
	_ SchedulerProvider    = (*Application)(nil)
	_ ConnectivityProvider = (*Application)(nil)
	_ FeedbackProvider     = (*Application)(nil)
	_ CatalogProvider      = (*Application)(nil)
	_ AppContext           = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) Store() store.Store {
	return a.store
}

// OverrideRemote replaces the remote client, must be called before Init
func (a *Application) OverrideRemote(rc remote.Client) {
	a.remote = rc
}

func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Connectivity() connectivity.Service {
	return a.conn
}

func (a *Application) Feedback() *feedback.Hub {
	return a.hub
}

func (a *Application) Catalog() *viewmodel.ViewModel {
	return a.vm
}

func (a *Application) Engine() *reconcile.Engine {
	return a.engine
}

// Web returns the local HTTP surface, nil when disabled
func (a *Application) Web() *webapi.Server {
	return a.web
}

// Init builds every component. Nothing runs until Start.
func (a *Application) Init() error {
	cfg := a.appConfig
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	if err := initLogger(cfg.Logger); err != nil {
		return err
	}

	if cfg.System.Workdir != "" {
		if err := cfg.InitDirs(); err != nil {
			return err
		}
	}

	if cfg.Metrics.Enabled {
		if err := metrics.InitMetrics(cfg.System.Workdir); err != nil {
			zap.S().Warn("Failed to initialize metrics:", err)
		}
	}

	a.store, err = store.Open(cfg.Database, cfg.System.Workdir)
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	zap.S().Infof("Local store ready, type: %s", cfg.Database.Type)

	if a.remote == nil {
		a.remote = remote.NewHTTPClient(cfg.Remote)
	}

	a.bus = EventBus.New()
	a.hub = feedback.NewHub(a.bus)
	a.hub.SetClearAfter(feedback.SlotList, cfg.Feedback.ListClearAfter)
	a.hub.SetClearAfter(feedback.SlotForm, cfg.Feedback.FormClearAfter)
	a.hub.SetClearAfter(feedback.SlotValidation, cfg.Feedback.FormClearAfter)

	var source connectivity.Source
	if cfg.Connectivity.ForceOffline {
		a.manual = connectivity.NewManualSource(false)
		source = a.manual
	} else {
		source = connectivity.NewDialSource(cfg.Connectivity.ProbeAddr, cfg.Connectivity.ProbeSchedule, cfg.Connectivity.DialTimeout)
	}
	a.conn = connectivity.NewOracle(source, a.bus)

	size := cfg.Worker.PoolSize
	if size <= 0 {
		size = 16
	}
	a.pool, err = ants.NewPool(size, ants.WithPanicHandler(func(p interface{}) {
		zap.L().Error("catalog task panic", zap.String("namespace", "app"), zap.Any("panic", p))
	}))
	if err != nil {
		return errors.Wrap(err, "create worker pool")
	}

	a.engine = reconcile.NewEngine(a.store, a.remote, a.hub, a.bus)
	a.vm = viewmodel.New(viewmodel.Deps{
		Store:        a.store,
		Remote:       a.remote,
		Connectivity: a.conn,
		Engine:       a.engine,
		Feedback:     a.hub,
		Pool:         a.pool,
		Bus:          a.bus,
	}, cfg.Catalog.DefaultType, cfg.Catalog.TypeOptions)

	if cfg.Web.Enabled {
		a.web = webapi.NewServer(cfg.Web, a.vm, a.conn, a.hub)
	}

	return a.initJob()
}

func initLogger(cfg config.LogConfig) error {
	var zapConfig zap.Config
	if cfg.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			return errors.Wrap(err, "build logger")
		}
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// Start begins listening for connectivity changes, runs the startup
// refresh and drain, then starts the scheduled jobs.
func (a *Application) Start(ctx context.Context) error {
	if err := a.conn.Start(ctx); err != nil {
		return errors.Wrap(err, "start connectivity")
	}

	outcome, report, err := a.vm.Bootstrap(ctx)
	if err != nil {
		zap.L().Error("pending queue drain failed", zap.String("namespace", "app"), zap.Error(err))
	}
	zap.L().Info("catalog bootstrap done",
		zap.String("namespace", "app"),
		zap.Stringer("refresh", outcome.Status),
		zap.Int("count", outcome.Count),
		zap.Int("replayed", len(report.Succeeded)+len(report.Failed)))

	a.sched.Start()
	return nil
}

// SetOnline drives the connectivity status when probing is disabled
func (a *Application) SetOnline(online bool) error {
	if a.manual == nil {
		return errors.New("connectivity is probed, not manual")
	}
	a.manual.Set(online)
	return nil
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.conn != nil {
		a.conn.Stop()
	}
	if a.vm != nil {
		a.vm.Close()
	}
	if a.pool != nil {
		a.pool.Release()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			zap.L().Error("close store failed", zap.String("namespace", "app"), zap.Error(err))
		}
	}

	_ = metrics.Close()
	_ = zap.L().Sync()
}
