package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"upbitflow/auth"
	"upbitflow/config"
	"upbitflow/logger"
	"upbitflow/market"
	"upbitflow/models"
	"upbitflow/stream"
	"upbitflow/upbit"
	"upbitflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath, "config/config.yml"))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Upbitflow.Name,
		"version":     cfg.Upbitflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting upbitflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" || cfg.Metrics.Interval > 0 {
		interval := cfg.Metrics.Interval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		logger.StartReport(ctx, log, interval)
	}

	registry, err := market.NewRegistry(cfg.Exchange.Markets)
	if err != nil {
		log.WithError(err).Error("failed to build market registry")
		os.Exit(1)
	}

	session := auth.NewSession(auth.Credentials{
		AccessKey: cfg.Credentials.AccessKey,
		SecretKey: cfg.Credentials.SecretKey,
	})

	client := upbit.NewClient(upbit.Options{
		PublicURL:   cfg.Exchange.PublicURL,
		PrivateURL:  cfg.Exchange.PrivateURL,
		TradesLimit: cfg.Watch.TradesLimit,
		OrdersLimit: cfg.Watch.OrdersLimit,
		Depth:       cfg.Watch.OrderbookDepth,
		Stream:      streamOptions(cfg),
	}, registry, session, log)

	var books chan *models.OrderBook
	var recorder *writer.Recorder
	if cfg.Recorder.Enabled && cfg.Storage.S3.Enabled {
		books = make(chan *models.OrderBook, 256)
		recorder, err = writer.NewRecorder(cfg, books)
		if err != nil {
			log.WithError(err).Error("failed to create recorder")
			os.Exit(1)
		}
		if err := recorder.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start recorder")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("recorder disabled; streaming only")
	}

	var wg sync.WaitGroup

	for _, symbol := range registry.Symbols() {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			watchBooks(ctx, client, symbol, books, log)
		}(symbol)

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			watchTrades(ctx, client, symbol, log)
		}(symbol)

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			watchTicker(ctx, client, symbol, log)
		}(symbol)
	}

	if cfg.Credentials.AccessKey != "" && cfg.Credentials.SecretKey != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchOrders(ctx, client, log)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			watchBalance(ctx, client, log)
		}()
	} else {
		log.WithComponent("main").Info("no credentials configured; private channels disabled")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()
	client.Close()

	if recorder != nil {
		log.Info("stopping recorder")
		recorder.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("upbitflow stopped")
}

func streamOptions(cfg *config.Config) stream.Options {
	return stream.Options{
		DialTimeout:       cfg.Stream.DialTimeout,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		PingInterval:      cfg.Stream.PingInterval,
		ReconnectBaseWait: cfg.Stream.ReconnectBaseWait,
		ReconnectMaxWait:  cfg.Stream.ReconnectMaxWait,
	}
}

func watchBooks(ctx context.Context, client *upbit.Client, symbol string, books chan<- *models.OrderBook, log *logger.Log) {
	entry := log.WithComponent("watch").WithFields(logger.Fields{"channel": "orderbook", "symbol": symbol})
	for {
		book, err := client.WatchOrderBook(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			entry.WithError(err).Warn("watch failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		if books != nil {
			select {
			case books <- book:
			default:
				entry.Debug("recorder backlog full, dropping snapshot")
			}
		}
	}
}

func watchTrades(ctx context.Context, client *upbit.Client, symbol string, log *logger.Log) {
	entry := log.WithComponent("watch").WithFields(logger.Fields{"channel": "trade", "symbol": symbol})
	for {
		trades, err := client.WatchTrades(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			entry.WithError(err).Warn("watch failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		if len(trades) > 0 {
			last := trades[len(trades)-1]
			entry.WithFields(logger.Fields{"price": last.Price.String(), "side": last.Side}).Debug("trade")
		}
	}
}

func watchTicker(ctx context.Context, client *upbit.Client, symbol string, log *logger.Log) {
	entry := log.WithComponent("watch").WithFields(logger.Fields{"channel": "ticker", "symbol": symbol})
	for {
		ticker, err := client.WatchTicker(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			entry.WithError(err).Warn("watch failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		entry.WithFields(logger.Fields{"last": ticker.Last.String()}).Debug("ticker")
	}
}

func watchOrders(ctx context.Context, client *upbit.Client, log *logger.Log) {
	entry := log.WithComponent("watch").WithFields(logger.Fields{"channel": "myOrder"})
	for {
		orders, err := client.WatchOrders(ctx, "")
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			entry.WithError(err).Warn("watch failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		entry.WithFields(logger.Fields{"open_orders": len(orders)}).Info("order update")
	}
}

func watchBalance(ctx context.Context, client *upbit.Client, log *logger.Log) {
	entry := log.WithComponent("watch").WithFields(logger.Fields{"channel": "myAsset"})
	for {
		balance, err := client.WatchBalance(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			entry.WithError(err).Warn("watch failed, retrying")
			time.Sleep(time.Second)
			continue
		}
		entry.WithFields(logger.Fields{"currencies": len(balance.Accounts)}).Info("balance update")
	}
}
