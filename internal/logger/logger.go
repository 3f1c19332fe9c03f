package logger

import (
	"go.uber.org/zap"
)

type Config struct {
	Development bool
	Level       string
}

// New builds the process-wide SugaredLogger. Development mode gets the
// console encoder; production gets JSON.
func New(cfg Config) (*zap.SugaredLogger, error) {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = lvl
	}
	l, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
