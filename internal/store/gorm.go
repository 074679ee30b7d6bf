package store

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/domain"
	"github.com/talkincode/prodcatalog/pkg/common"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore keeps the catalog in a relational database
type GormStore struct {
	db *gorm.DB
}

var _ Backend = (*GormStore)(nil)

// NewGormStore migrates the catalog tables and returns the store
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.Migrator().AutoMigrate(domain.Tables...); err != nil {
		return nil, errors.Wrap(err, "migrate catalog tables")
	}
	return &GormStore{db: db}, nil
}

// DB exposes the underlying handle
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Entries(ctx context.Context) ([]*domain.CatalogEntry, error) {
	var entries []*domain.CatalogEntry
	err := s.db.WithContext(ctx).
		Order("position ASC").
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "query catalog entries")
	}
	return entries, nil
}

func (s *GormStore) ReplaceAll(ctx context.Context, entries []*domain.CatalogEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&domain.CatalogEntry{}).Error
		if err != nil {
			return errors.Wrap(err, "clear catalog entries")
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, 100).Error; err != nil {
			return errors.Wrap(err, "insert catalog entries")
		}
		return nil
	})
}

func (s *GormStore) SetFavourite(ctx context.Context, id int64, favourite bool) error {
	result := s.db.WithContext(ctx).
		Model(&domain.CatalogEntry{}).
		Where("id = ?", id).
		Update("is_favourite", favourite)
	if result.Error != nil {
		return errors.Wrap(result.Error, "update favourite")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrNotFound, "catalog entry %d", id)
	}
	return nil
}

func (s *GormStore) EnqueuePending(ctx context.Context, req *domain.PendingCreateRequest) error {
	if req.ID == 0 {
		req.ID = common.UUIDint64()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return errors.Wrap(err, "insert pending request")
	}
	return nil
}

func (s *GormStore) PendingRequests(ctx context.Context) ([]*domain.PendingCreateRequest, error) {
	var reqs []*domain.PendingCreateRequest
	err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, errors.Wrap(err, "query pending requests")
	}
	return reqs, nil
}

func (s *GormStore) DeletePending(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&domain.PendingCreateRequest{}, id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete pending request")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrNotFound, "pending request %d", id)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// getDatabase opens the configured relational database, nil on failure
func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Debug {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(sqlitePath(cfg, workdir))
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		zap.L().Error("open database failed",
			zap.String("namespace", "store"),
			zap.String("type", cfg.Type),
			zap.Error(err))
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		zap.L().Error("get sql.DB failed", zap.String("namespace", "store"), zap.Error(err))
		return nil
	}
	if dialector.Name() == "sqlite" {
		// one connection keeps :memory: databases shared and writes ordered
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
	}
	return db
}

func sqlitePath(cfg config.DBConfig, workdir string) string {
	name := common.IfEmptyStr(cfg.Name, "prodcatalog.db")
	if name == ":memory:" || strings.HasPrefix(name, "file:") || path.IsAbs(name) || workdir == "" {
		return name
	}
	return path.Join(workdir, "data", name)
}
