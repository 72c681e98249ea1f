package scanner

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// UDPProber sends a datagram to each port and analyses the reply. UDP probing
// is inherently less reliable than TCP: silence may mean open or filtered, so
// only a port that answers with data is reported open.
type UDPProber struct{}

// Probe implements Prober.
func (p *UDPProber) Probe(ctx context.Context, target string, port int, timeout time.Duration) (PortResult, error) {
	if err := validateProbe(target, port); err != nil {
		return PortResult{}, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	closed := PortResult{Port: port, Status: StatusClosed}
	address := net.JoinHostPort(target, strconv.Itoa(port))

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "udp", address)
	if err != nil {
		return closed, nil
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := dialCtx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Single null byte; ICMP port unreachable surfaces as a read error.
	if _, err := conn.Write([]byte{0}); err != nil {
		return closed, nil
	}

	buffer := make([]byte, 512)
	n, err := conn.Read(buffer)
	if err != nil || n == 0 {
		return closed, nil
	}

	return PortResult{
		Port:    port,
		Status:  StatusOpen,
		Service: WellKnownService(port),
		Banner:  string(buffer[:n]),
	}, nil
}

// InitUDPScan validates that the system meets prerequisites for UDP scanning.
// UDP probing uses standard sockets, so only basic name resolution is checked.
func InitUDPScan() error {
	if _, err := net.LookupIP("localhost"); err != nil {
		return fmt.Errorf("UDP scan requires network resolution capability: %w", err)
	}
	return nil
}
