package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"petcare-loyalty/pkg/config"
	"petcare-loyalty/pkg/logger"
	"petcare-loyalty/pkg/task"
	"petcare-loyalty/services/notifier"
)

// The worker drains the tier-change queue so the API process never blocks a
// caller's response on a delivery channel.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		task.Server,
		notifier.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
