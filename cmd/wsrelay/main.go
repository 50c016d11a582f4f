// wsrelay WebSocket 连接注册与消息路由服务
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsrelay/pkg/config"
	"github.com/tokmz/wsrelay/pkg/delivery"
	"github.com/tokmz/wsrelay/pkg/dispatch"
	"github.com/tokmz/wsrelay/pkg/gateway"
	"github.com/tokmz/wsrelay/pkg/logger"
	"github.com/tokmz/wsrelay/pkg/registry"
	"github.com/tokmz/wsrelay/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "config file path (yaml/json/toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "wsrelay:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, app, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer cfg.Close()

	log, err := logger.NewWithOptions(app.Log.Options()...)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	watchLogLevel(cfg, log)

	shutdownTracing, err := tracing.Setup(ctx, &app.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	store, err := registry.NewStore(ctx, &app.Store, log)
	if err != nil {
		return err
	}
	reg := registry.New(store, registry.WithLogger(log))
	defer func() {
		if err := reg.Close(); err != nil {
			log.Warn("close registry store failed", zap.Error(err))
		}
	}()

	pool := gateway.NewPool(app.Gateway.MaxConnections)
	d := dispatch.New(reg, pusherFactory(app.Delivery, pool),
		dispatch.WithLogger(log),
		dispatch.WithScheme(app.Delivery.Scheme),
		dispatch.WithSendTimeout(app.Delivery.SendTimeout),
		dispatch.WithFanoutLimit(app.Router.FanoutLimit),
	)

	gw, err := gateway.New(&app.Gateway, pool, d,
		gateway.WithLogger(log),
		gateway.WithRouteMatcher(d.Table().HasRoute),
	)
	if err != nil {
		return err
	}

	log.Info("wsrelay starting",
		zap.String("store", string(app.Store.Driver)),
		zap.String("delivery", app.Delivery.Mode),
		zap.String("config", cfg.ConfigFileUsed()),
	)
	return gw.Run(ctx)
}

// pusherFactory local 模式直接写入连接池，http 模式调用管理端点
func pusherFactory(cfg DeliveryConfig, pool *gateway.Pool) dispatch.PusherFactory {
	if cfg.Mode == DeliveryHTTP {
		opts := []delivery.HTTPOption{delivery.WithTimeout(cfg.SendTimeout)}
		for k, v := range cfg.Headers {
			opts = append(opts, delivery.WithHeader(k, v))
		}
		return dispatch.HTTPPusherFactory(opts...)
	}
	return func(string) delivery.Pusher { return pool }
}

// watchLogLevel 配置文件变更时热更新日志级别
func watchLogLevel(cfg *config.Config, log logger.Logger) {
	if cfg.ConfigFileUsed() == "" {
		return
	}
	cfg.OnChange(func(c *config.Config) {
		level, ok := logger.ParseLevel(c.GetString("log.level"))
		if !ok || level == log.Level() {
			return
		}
		log.SetLevel(level)
		log.Info("log level changed", zap.String("level", level.String()))
	})
	if err := cfg.Watch(); err != nil {
		log.Warn("config watch disabled", zap.Error(err))
	}
}
