package changefeed

import (
	"context"

	"principal_analytics_backend/internal/events"
	"principal_analytics_backend/platform/logger"
)

// Trigger requests a coalesced full refresh.
type Trigger interface {
	Trigger()
}

// Dispatcher forwards upstream change events to the refresh loop.
type Dispatcher struct {
	trigger Trigger
	log     *logger.Logger
}

func NewDispatcher(trigger Trigger, log *logger.Logger) *Dispatcher {
	return &Dispatcher{trigger: trigger, log: log}
}

// RegisterHandlers subscribes the dispatcher to upstream change events.
func (d *Dispatcher) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.UpstreamChanged{}.EventName(), d)
}

// Handle implements events.Handler.
func (d *Dispatcher) Handle(_ context.Context, event events.Event) error {
	change, ok := event.(events.UpstreamChanged)
	if !ok {
		return nil
	}
	d.log.Debug("upstream change received", "entity", change.Entity, "operation", change.Operation)
	d.trigger.Trigger()
	return nil
}
