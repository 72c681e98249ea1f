package scanner

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is used when a probe is issued without a positive timeout.
const DefaultTimeout = time.Second

const bannerBufferSize = 4096

var serverHeader = regexp.MustCompile(`(?im)^server:[ \t]*([^\r\n]+)`)

// ConnectProber establishes a full TCP handshake to each port and, once
// connected, identifies the service with probe-based fingerprinting.
// Closed (RST) and filtered (timeout, unreachable) ports are both reported closed.
type ConnectProber struct {
	cache  *ProbeCache
	dialer *net.Dialer
}

// NewConnectProber returns a connect prober using the given probe catalogue.
func NewConnectProber(cache *ProbeCache) *ConnectProber {
	return &ConnectProber{cache: cache, dialer: &net.Dialer{}}
}

// Probe implements Prober.
func (p *ConnectProber) Probe(ctx context.Context, target string, port int, timeout time.Duration) (PortResult, error) {
	if err := validateProbe(target, port); err != nil {
		return PortResult{}, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	address := net.JoinHostPort(target, strconv.Itoa(port))

	if isTLSPort(port) {
		if res, ok := p.probeTLS(ctx, target, address, port, timeout); ok {
			return res, nil
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	conn, err := p.dialer.DialContext(dialCtx, "tcp", address)
	cancel()
	if err != nil {
		return PortResult{Port: port, Status: StatusClosed}, nil
	}

	fp, valid := p.fingerprint(ctx, conn, timeout)
	_ = conn.Close()

	// A reset during fingerprinting usually means a proxy accepted the
	// handshake with no backend behind it.
	if !valid {
		return PortResult{Port: port, Status: StatusClosed}, nil
	}
	return fp.result(port), nil
}

type fingerprint struct {
	id     Identification
	server string
	banner string
}

func (f fingerprint) result(port int) PortResult {
	service := f.id.Service
	if service == "" && strings.HasPrefix(f.banner, "HTTP/") {
		service = "http"
	}
	if service == "" {
		service = WellKnownService(port)
	}
	return PortResult{
		Port:    port,
		Status:  StatusOpen,
		Service: service,
		Version: strings.TrimSpace(f.id.Product + " " + f.id.Version),
		Server:  f.server,
		Banner:  f.banner,
	}
}

func newFingerprint(response []byte, id Identification) fingerprint {
	fp := fingerprint{id: id, banner: string(response)}
	if m := serverHeader.FindSubmatch(response); m != nil {
		fp.server = strings.TrimSpace(string(m[1]))
	}
	return fp
}

// fingerprint reuses the established connection: it first waits for a
// greeting, then walks the TCP probes. It returns false when the connection
// was reset, in which case the port should be considered closed.
func (p *ConnectProber) fingerprint(ctx context.Context, conn net.Conn, timeout time.Duration) (fingerprint, bool) {
	buffer := make([]byte, bannerBufferSize)

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := conn.Read(buffer)
	if n > 0 {
		id, _ := p.cache.Identify(buffer[:n])
		return newFingerprint(buffer[:n], id), true
	}
	if err != nil && !isTimeout(err) {
		return fingerprint{}, false
	}

	for _, probe := range p.cache.TCPProbes() {
		if ctx.Err() != nil {
			break
		}
		// The greeting read above already covered the NULL probe.
		if len(probe.Data) == 0 {
			continue
		}
		if _, err := conn.Write(probe.Data); err != nil {
			return fingerprint{}, false
		}

		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		n, err := conn.Read(buffer)
		if n == 0 {
			if err != nil && !isTimeout(err) {
				return fingerprint{}, false
			}
			continue
		}

		response := buffer[:n]
		for _, match := range probe.Matches {
			if id, ok := match.Identify(response); ok {
				return newFingerprint(response, id), true
			}
		}
		// Got a response but no match; keep the raw banner.
		return newFingerprint(response, Identification{}), true
	}

	return fingerprint{}, true
}

// probeTLS completes a TLS handshake, records the peer certificate and
// requests the root document over the secured connection.
func (p *ConnectProber) probeTLS(ctx context.Context, target, address string, port int, timeout time.Duration) (PortResult, bool) {
	cfg := &tls.Config{
		// The certificate is inspected and reported, not trusted.
		InsecureSkipVerify: true, //nolint:gosec
		MinVersion:         tls.VersionTLS10,
	}
	if net.ParseIP(target) == nil {
		cfg.ServerName = target
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	d := &tls.Dialer{NetDialer: p.dialer, Config: cfg}
	conn, err := d.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return PortResult{}, false
	}
	defer conn.Close()

	tlsConn := conn.(*tls.Conn)
	info := certificateSummary(tlsConn.ConnectionState())

	fp := fingerprint{}
	_ = tlsConn.SetDeadline(time.Now().Add(timeout))
	if _, err := tlsConn.Write([]byte("GET / HTTP/1.0\r\nHost: " + target + "\r\n\r\n")); err == nil {
		buffer := make([]byte, bannerBufferSize)
		if n, _ := tlsConn.Read(buffer); n > 0 {
			id, _ := p.cache.Identify(buffer[:n])
			fp = newFingerprint(buffer[:n], id)
		}
	}

	res := fp.result(port)
	if res.Service == "http" {
		res.Service = "https"
	}
	res.TLS = info
	return res, true
}

func certificateSummary(state tls.ConnectionState) *TLSInfo {
	info := &TLSInfo{Version: TLSVersionName(state.Version)}
	if len(state.PeerCertificates) > 0 {
		cert := state.PeerCertificates[0]
		info.Subject = commonNameOr(cert.Subject.CommonName, cert.Subject.String())
		info.Issuer = commonNameOr(cert.Issuer.CommonName, cert.Issuer.String())
		info.NotBefore = cert.NotBefore
		info.NotAfter = cert.NotAfter
	}
	return info
}

func commonNameOr(cn, full string) string {
	if cn != "" {
		return cn
	}
	return full
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
