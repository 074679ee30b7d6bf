package app

import (
	"github.com/robfig/cron/v3"
	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/connectivity"
	"github.com/talkincode/prodcatalog/internal/feedback"
	"github.com/talkincode/prodcatalog/internal/store"
	"github.com/talkincode/prodcatalog/internal/viewmodel"
)

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// StoreProvider provides the serialized local store
type StoreProvider interface {
	Store() store.Store
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// ConnectivityProvider provides the online status
type ConnectivityProvider interface {
	Connectivity() connectivity.Service
}

// FeedbackProvider provides the user facing messages
type FeedbackProvider interface {
	Feedback() *feedback.Hub
}

// CatalogProvider provides the catalog view-model
type CatalogProvider interface {
	Catalog() *viewmodel.ViewModel
}

// AppContext combines all provider interfaces for full application context
type AppContext interface {
	ConfigProvider
	StoreProvider
	SchedulerProvider
	ConnectivityProvider
	FeedbackProvider
	CatalogProvider
}
