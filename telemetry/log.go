/*
log.go - Logger construction
*/
package telemetry

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Development mode switches to the
// console encoder with human-readable timestamps.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
