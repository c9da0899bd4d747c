// Package bus provides event bus implementations for fraudscore.
package bus

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus or KafkaBus.
// Type "none" disables the bus and returns nil.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "kafka":
		return NewKafkaBus(cfg)

	case "none", "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// ErrClosed is returned when publishing to or subscribing on a closed bus.
var ErrClosed = errors.New("bus is closed")
