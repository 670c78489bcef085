package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SZoloth/promptrelay/pkg/bridge"
	"github.com/SZoloth/promptrelay/pkg/bus"
	"github.com/SZoloth/promptrelay/pkg/channels"
	"github.com/SZoloth/promptrelay/pkg/config"
	"github.com/SZoloth/promptrelay/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "~/.promptrelay/config.json", "path to config file")
	nativeMode := flag.Bool("native", false, "run as a browser native-messaging host (stdio only)")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ExpandHome(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.FileEnabled {
		if err := logger.EnableFileLogging(cfg.LogFilePath(), cfg.Logging.MaxSizeMB); err != nil {
			logger.WarnCF("main", "File logging unavailable", map[string]interface{}{
				"path":  cfg.LogFilePath(),
				"error": err.Error(),
			})
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	source := bridge.NewSource(cfg.Relay)
	dispatcher := bridge.NewDispatcher(source, cfg.Relay)
	dispatch := bus.DispatchFunc(dispatcher.Dispatch)

	go source.Run(ctx)

	var active []channels.Channel
	if *nativeMode || cfg.Native.Enabled {
		active = append(active, channels.NewNativeChannel(dispatch))
	}
	if cfg.Gateway.Enabled && !*nativeMode {
		active = append(active, channels.NewWebSocketChannel(cfg.Gateway, dispatch))
	}
	if cfg.Console.Enabled && !*nativeMode {
		active = append(active, channels.NewConsoleChannel(dispatch))
	}

	if len(active) == 0 {
		logger.ErrorC("main", "No channels enabled, nothing to do")
		os.Exit(1)
	}

	for _, ch := range active {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("main", "Failed to start channel", map[string]interface{}{
				"channel": ch.Name(),
				"error":   err.Error(),
			})
			os.Exit(1)
		}
	}

	logger.InfoCF("main", "promptrelay running", map[string]interface{}{
		"channels":   len(active),
		"config_url": cfg.Relay.ConfigURL,
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	for _, ch := range active {
		if err := ch.Stop(stopCtx); err != nil {
			logger.WarnCF("main", "Channel stop failed", map[string]interface{}{
				"channel": ch.Name(),
				"error":   err.Error(),
			})
		}
	}
}
