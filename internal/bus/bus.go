package bus

import (
	"fmt"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

const (
	TypeChannel = "channel"
	TypeNATS    = "nats"
)

// New returns the bus named by cfg.Type. An empty type means the in-process
// channel bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case TypeChannel, "":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case TypeNATS:
		if cfg.NATSUrl == "" {
			return nil, fmt.Errorf("nats bus: url is required")
		}
		return NewNATSBus(cfg)
	}
	return nil, fmt.Errorf("unsupported event bus type %q", cfg.Type)
}
