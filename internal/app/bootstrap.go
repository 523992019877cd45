package app

import (
	"fmt"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/config"
	"exit-strategy-lab/internal/logging"
)

// Bootstrap loads the configuration and builds the command logger.
// A non-empty logLevel overrides TB_LOG_LEVEL.
func Bootstrap(cmd, envFile, logLevel string, development bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger, err := logging.ForCommand(cmd, cfg.LogLevel, development)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}
