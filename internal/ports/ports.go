// Package ports picks the listen port an engine process will bind.
package ports

import (
	"fmt"
	"net"

	"github.com/pgden/pgden/internal/instance"
)

// DefaultMaxAttempts bounds the upward probe walk.
const DefaultMaxAttempts = 100

const maxPort = 65535

// Allocator finds a free listen port at or above the requested one.
//
// Allocation probes by binding 127.0.0.1 and walks upward in steps of one
// while the port is taken. The walk is bounded and never wraps, so the
// outcome for a given host state is deterministic. The probe releases the
// port before the engine binds it; that window is inherent to probing and
// accepted.
type Allocator struct {
	// MaxAttempts bounds the number of ports probed. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	// Listen is the bind probe, replaceable for tests. Nil means net.Listen.
	Listen func(network, address string) (net.Listener, error)
}

// Resolve returns requested when it is free, otherwise the first free port
// above it within the attempt budget. An exhausted budget fails with
// PORT_UNAVAILABLE.
func (a *Allocator) Resolve(requested int) (int, error) {
	if requested < 1 || requested > maxPort {
		return 0, fmt.Errorf("port %d out of range 1-%d", requested, maxPort)
	}

	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	listen := a.Listen
	if listen == nil {
		listen = net.Listen
	}

	for i := 0; i < attempts; i++ {
		port := requested + i
		if port > maxPort {
			break
		}
		l, err := listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, instance.NewPortUnavailable(requested, attempts)
}
