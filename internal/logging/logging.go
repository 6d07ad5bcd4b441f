// Package logging builds the process-wide zap logger and per-component
// child loggers.
package logging

import "go.uber.org/zap"

// New builds a production logger, or a development one (colored, caller
// info, debug level) when dev is true.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Component returns a child logger tagged with a "component" field, the
// convention every package in this module uses to scope its log lines.
func Component(base *zap.Logger, name string) *zap.Logger {
	return base.With(zap.String("component", name))
}
