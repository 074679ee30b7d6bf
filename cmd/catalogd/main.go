package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/talkincode/prodcatalog/config"
	"github.com/talkincode/prodcatalog/internal/app"
	"github.com/talkincode/prodcatalog/internal/mockremote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	cfile      = flag.String("c", "", "config file")
	mockRemote = flag.Bool("mock-remote", false, "serve the remote catalog from memory")
	offline    = flag.Bool("offline", false, "disable connectivity probing, start offline")
	showConfig = flag.Bool("showconfig", false, "print the effective configuration and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*cfile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *offline {
		cfg.Connectivity.ForceOffline = true
	}
	if *showConfig {
		fmt.Printf("%+v\n", *cfg)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mock *mockremote.Server
	if *mockRemote {
		mock = mockremote.New(mockremote.SeedProducts...)
		url, err := mock.Listen("127.0.0.1:0")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg.Remote.BaseURL = url
		cfg.Remote.FetchPath = mockremote.FetchPath
		cfg.Remote.CreatePath = mockremote.CreatePath
		cfg.Connectivity.ProbeAddr = strings.TrimPrefix(url, "http://")
	}

	application := app.NewApplication(cfg)
	if err := application.Init(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer application.Release()

	if err := run(ctx, application, mock); err != nil {
		zap.L().Error("catalogd stopped", zap.String("namespace", "main"), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, application *app.Application, mock *mockremote.Server) error {
	if err := application.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if web := application.Web(); web != nil {
		g.Go(web.Start)
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return web.Shutdown(sctx)
		})
	}
	if mock != nil {
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return mock.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		zap.L().Info("catalogd shutting down", zap.String("namespace", "main"))
		return nil
	})
	return g.Wait()
}
