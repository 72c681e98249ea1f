package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"portwatch/logging"
)

// PortStatus is the state a prober reports for a single port.
type PortStatus string

const (
	StatusOpen   PortStatus = "open"
	StatusClosed PortStatus = "closed"
)

// ErrInvalidProbe is returned by probers for malformed input only. Unreachable
// or filtered ports are reported as closed results, never as errors.
var ErrInvalidProbe = errors.New("invalid probe request")

// TLSInfo summarises the certificate presented on a TLS port.
type TLSInfo struct {
	Subject   string    `json:"issued_to,omitempty"`
	Issuer    string    `json:"issued_by,omitempty"`
	NotBefore time.Time `json:"valid_from,omitempty"`
	NotAfter  time.Time `json:"valid_until,omitempty"`
	Version   string    `json:"version,omitempty"`
}

// String renders the certificate as one human-readable line.
func (t *TLSInfo) String() string {
	if t == nil {
		return ""
	}
	var parts []string
	if t.Subject != "" {
		parts = append(parts, "Issued To: "+t.Subject)
	}
	if t.Issuer != "" {
		parts = append(parts, "Issued By: "+t.Issuer)
	}
	if !t.NotBefore.IsZero() {
		parts = append(parts, "Valid From: "+t.NotBefore.UTC().Format(time.DateTime))
	}
	if !t.NotAfter.IsZero() {
		parts = append(parts, "Valid Until: "+t.NotAfter.UTC().Format(time.DateTime))
	}
	if t.Version != "" {
		parts = append(parts, "Version: "+t.Version)
	}
	return strings.Join(parts, ", ")
}

// PortResult is the normalised outcome of probing one port.
type PortResult struct {
	Port    int        `json:"port"`
	Status  PortStatus `json:"status"`
	Service string     `json:"service,omitempty"`
	Version string     `json:"version,omitempty"`
	Server  string     `json:"server,omitempty"`
	Banner  string     `json:"banner,omitempty"`
	TLS     *TLSInfo   `json:"ssl_cert,omitempty"`
}

// Open reports whether the port was found open.
func (r PortResult) Open() bool {
	return r.Status == StatusOpen
}

// ResultTable maps port numbers to probe results.
type ResultTable map[int]PortResult

// Clone returns a deep copy of the table.
func (t ResultTable) Clone() ResultTable {
	out := make(ResultTable, len(t))
	for port, res := range t {
		if res.TLS != nil {
			tlsCopy := *res.TLS
			res.TLS = &tlsCopy
		}
		out[port] = res
	}
	return out
}

// Open returns copies of the open entries sorted by port.
func (t ResultTable) Open() []PortResult {
	out := make([]PortResult, 0, len(t))
	for _, res := range t.Clone() {
		if res.Open() {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// Prober determines whether a single port on a target is open.
type Prober interface {
	Probe(ctx context.Context, target string, port int, timeout time.Duration) (PortResult, error)
}

// Scan modes accepted by NewProber.
const (
	ModeConnect = "connect"
	ModeUDP     = "udp"
)

// NewProber returns the prober for the given mode. Connect probing uses cache
// for service fingerprinting; a nil cache falls back to the built-in catalogue.
func NewProber(mode string, cache *ProbeCache) (Prober, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeConnect:
		if cache == nil {
			cache = NewProbeCache(DefaultProbes())
		}
		return NewConnectProber(cache), nil
	case ModeUDP:
		if err := InitUDPScan(); err != nil {
			return nil, err
		}
		return &UDPProber{}, nil
	default:
		return nil, fmt.Errorf("unsupported scan mode %q", mode)
	}
}

// Setup builds the prober for mode, loading the fingerprint catalogue from
// probesFile when one is configured.
func Setup(mode, probesFile string) (Prober, error) {
	var cache *ProbeCache
	if probesFile != "" && !strings.EqualFold(strings.TrimSpace(mode), ModeUDP) {
		probes, stats, err := LoadProbes(probesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load probes: %w", err)
		}
		if len(stats.ErrorLines) > 0 {
			logging.Logger().Warn("probe loader reported warnings", "file", probesFile, "count", len(stats.ErrorLines))
		}
		logging.Logger().Info("service probes loaded", "file", probesFile, "probes", stats.Probes, "matches", stats.Matches)
		cache = NewProbeCache(probes)
	}
	return NewProber(mode, cache)
}

func validateProbe(target string, port int) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("%w: empty target", ErrInvalidProbe)
	}
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("%w: port %d outside %d-%d", ErrInvalidProbe, port, MinPort, MaxPort)
	}
	return nil
}
