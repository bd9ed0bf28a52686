/*
Package gateway contains the core logic of the real-time gateway.

This file defines the liveness monitor, which detects silently-dead
connections. Browser and mobile transports can drop without a close event;
without the monitor the registries would accumulate dead entries and presence
would never correctly go offline.
*/
package gateway

import (
	"time"

	"github.com/rs/zerolog"

	"chatgate/internal/pkg/logx"
)

// ProbeInterval is the fixed liveness probe period. A connection that never
// answers between two consecutive ticks is evicted on the second tick.
const ProbeInterval = 30 * time.Second

// livenessMonitor periodically probes every registered connection and evicts
// the ones that failed to answer since the previous probe.
type livenessMonitor struct {
	interval time.Duration
	registry *ConnectionRegistry

	// evict force-closes a dead connection and runs the shared disconnect cleanup.
	evict func(*Client)

	stop chan struct{}
	done chan struct{}

	logger zerolog.Logger
}

// newLivenessMonitor constructs a monitor over the registry. evict is invoked
// for every connection found dead during a sweep.
func newLivenessMonitor(interval time.Duration, registry *ConnectionRegistry, evict func(*Client)) *livenessMonitor {
	return &livenessMonitor{
		interval: interval,
		registry: registry,
		evict:    evict,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logx.Logger().With().Str("component", "LivenessMonitor").Logger(),
	}
}

// Start launches the probe loop.
func (m *livenessMonitor) Start() {
	go m.run()
}

// Stop terminates the probe loop and waits for it to exit.
func (m *livenessMonitor) Stop() {
	close(m.stop)
	<-m.done
}

// run ticks at the configured interval until stopped.
func (m *livenessMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.interval).Msg("Liveness monitor started.")

	for {
		select {
		case <-ticker.C:
			m.sweep()

		case <-m.stop:
			m.logger.Info().Msg("Liveness monitor stopped.")
			return
		}
	}
}

// sweep performs one probe cycle: connections that never answered the previous
// probe are evicted through the same cleanup path as a clean disconnect; every
// survivor is marked unanswered and sent a new probe.
func (m *livenessMonitor) sweep() {
	evicted := 0

	for _, c := range m.registry.Connections() {
		if !c.expireProbe() {
			m.logger.Warn().
				Str("connection_id", c.id).
				Str("user_id", c.userID).
				Msg("Connection failed liveness probe, evicting.")

			m.evict(c)
			evicted++
			continue
		}

		if err := c.Enqueue(Envelope{Event: EventPing}); err != nil {
			m.logger.Warn().
				Str("connection_id", c.id).
				Err(err).
				Msg("Failed to queue liveness probe.")
		}
	}

	if evicted > 0 {
		m.logger.Info().Int("evicted", evicted).Msg("Liveness sweep completed.")
	}
}
