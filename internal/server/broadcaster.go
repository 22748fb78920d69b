package server

import (
	"errors"
	"log"

	"github.com/npezzotti/go-chatrooms/internal/stats"
)

// Broadcaster delivers events to computed audiences. Delivery is per
// recipient: a failed send never stops delivery to the others.
type Broadcaster struct {
	log      *log.Logger
	registry *Registry
	stats    stats.StatsProvider
}

func NewBroadcaster(logger *log.Logger, registry *Registry, su stats.StatsProvider) *Broadcaster {
	su.RegisterMetric(stats.NumDeliveryFailures)

	return &Broadcaster{
		log:      logger,
		registry: registry,
		stats:    su,
	}
}

// BroadcastToRoom sends ev to every connection currently in roomId and
// returns the number of successful deliveries.
func (b *Broadcaster) BroadcastToRoom(roomId string, ev *ServerEvent) int {
	return b.deliver(b.registry.MembersOf(roomId), ev)
}

// BroadcastGlobal sends ev to every registered connection.
func (b *Broadcaster) BroadcastGlobal(ev *ServerEvent) int {
	return b.deliver(b.registry.AllConnections(), ev)
}

// Unicast sends ev to a single connection.
func (b *Broadcaster) Unicast(m Member, ev *ServerEvent) error {
	if err := m.Conn.Send(ev); err != nil {
		b.handleSendError(m, ev, err)
		return err
	}

	return nil
}

func (b *Broadcaster) deliver(audience []Member, ev *ServerEvent) int {
	var delivered int
	for _, m := range audience {
		if err := m.Conn.Send(ev); err != nil {
			b.handleSendError(m, ev, err)
			continue
		}
		delivered++
	}

	b.log.Printf("delivered %q to %d/%d connections", ev.Type, delivered, len(audience))
	return delivered
}

func (b *Broadcaster) handleSendError(m Member, ev *ServerEvent, err error) {
	b.stats.Incr(stats.NumDeliveryFailures)
	b.log.Printf("send %q to connection %q: %v", ev.Type, m.Id, err)

	if errors.Is(err, ErrTransportClosed) {
		if b.registry.Unregister(m.Id) {
			m.Conn.Close()
		}
	}
}
