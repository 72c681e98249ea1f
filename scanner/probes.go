package scanner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"portwatch/logging"
)

// Probe represents a single probe for service detection.
type Probe struct {
	Protocol string  // TCP or UDP
	Name     string  // Probe name, e.g. "GetRequest"
	Data     []byte  // Data to send to the server; empty for the NULL probe
	Matches  []Match // Patterns tried against the response
}

// Match represents a single service detection rule.
type Match struct {
	ServiceName string
	Pattern     *regexp.Regexp
	Product     string // template, may reference submatches as $1..$9
	Version     string // template, may reference submatches as $1..$9
}

// Identification is what a matching rule tells us about a response.
type Identification struct {
	Service string
	Product string
	Version string
}

// Identify applies the rule to a response.
func (m Match) Identify(response []byte) (Identification, bool) {
	sub := m.Pattern.FindSubmatch(response)
	if sub == nil {
		return Identification{}, false
	}
	return Identification{
		Service: m.ServiceName,
		Product: expandTemplate(m.Product, sub),
		Version: expandTemplate(m.Version, sub),
	}, true
}

var templateRef = regexp.MustCompile(`\$(\d)`)

func expandTemplate(tmpl string, sub [][]byte) string {
	if tmpl == "" {
		return ""
	}
	out := templateRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		idx, _ := strconv.Atoi(ref[1:])
		if idx < len(sub) {
			return string(sub[idx])
		}
		return ""
	})
	return strings.TrimSpace(out)
}

// LoadStats reports what the probe loader accepted and skipped.
type LoadStats struct {
	Probes     int
	Matches    int
	ErrorLines []string
}

// LoadProbes reads and parses an nmap-service-probes file.
func LoadProbes(filePath string) ([]Probe, LoadStats, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("cannot open file %s: %w", filePath, err)
	}
	defer file.Close()
	return ParseProbes(file)
}

// ParseProbes parses probe definitions in nmap-service-probes syntax. Lines the
// loader cannot use (unsupported directives, regexes outside RE2) are skipped
// and reported in LoadStats.ErrorLines.
func ParseProbes(r io.Reader) ([]Probe, LoadStats, error) {
	logger := logging.Logger().With("component", "probes")

	var (
		probes  []Probe
		current = -1 // index into probes
		stats   LoadStats
	)
	warn := func(lineNum int, err error) {
		stats.ErrorLines = append(stats.ErrorLines, fmt.Sprintf("line %d: %v", lineNum, err))
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "Probe "):
			probe, err := parseProbe(line)
			if err != nil {
				warn(lineNum, err)
				current = -1
				continue
			}
			probes = append(probes, probe)
			current = len(probes) - 1

		case strings.HasPrefix(line, "match "), strings.HasPrefix(line, "softmatch "):
			if current < 0 {
				warn(lineNum, fmt.Errorf("match found without preceding Probe"))
				continue
			}
			match, err := parseMatch(line)
			if err != nil {
				warn(lineNum, err)
				continue
			}
			probes[current].Matches = append(probes[current].Matches, match)
			stats.Matches++

		default:
			// ports, sslports, rarity, totalwaitms, fallback, Exclude
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("error reading probes: %w", err)
	}

	stats.Probes = len(probes)
	logger.Debug("probes loaded", "probes", stats.Probes, "matches", stats.Matches, "skipped", len(stats.ErrorLines))
	return probes, stats, nil
}

// parseProbe parses a line like:
// Probe TCP GetRequest q|GET / HTTP/1.0\r\n\r\n|
func parseProbe(line string) (Probe, error) {
	line = strings.TrimPrefix(line, "Probe ")

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return Probe{}, fmt.Errorf("invalid Probe format")
	}

	data, err := parseProbeData(parts[2])
	if err != nil {
		return Probe{}, fmt.Errorf("cannot parse probe data: %w", err)
	}

	return Probe{Protocol: parts[0], Name: parts[1], Data: data}, nil
}

// parseProbeData converts a string in format q|...| to a byte slice.
// Supports escape sequences like \n, \r, \x00, etc.
func parseProbeData(dataStr string) ([]byte, error) {
	// Trailing directives such as "no-payload" follow the closing delimiter.
	if i := strings.LastIndex(dataStr, "|"); i > 1 {
		dataStr = dataStr[:i+1]
	}
	if len(dataStr) < 3 || dataStr[0] != 'q' || dataStr[1] != '|' || dataStr[len(dataStr)-1] != '|' {
		return nil, fmt.Errorf("probe data must be in format q|...|")
	}

	content := dataStr[2 : len(dataStr)-1]
	unquoted, err := strconv.Unquote("\"" + strings.ReplaceAll(content, `"`, `\"`) + "\"")
	if err != nil {
		return nil, fmt.Errorf("cannot unquote probe data: %w", err)
	}
	return []byte(unquoted), nil
}

// parseMatch parses a line like:
// match ssh m|^SSH-([\d.]+)-OpenSSH_([\w.]+)| p/OpenSSH/ v/$2/
func parseMatch(line string) (Match, error) {
	_, rest, _ := strings.Cut(line, " ")
	service, patternStr, ok := strings.Cut(rest, " ")
	if !ok {
		return Match{}, fmt.Errorf("invalid match format")
	}

	if len(patternStr) < 3 || patternStr[0] != 'm' {
		return Match{}, fmt.Errorf("invalid match pattern format: %s", patternStr)
	}
	delim := patternStr[1]
	end := strings.IndexByte(patternStr[2:], delim)
	if end < 0 {
		return Match{}, fmt.Errorf("unterminated match pattern: %s", patternStr)
	}
	pattern := patternStr[2 : 2+end]
	tail := patternStr[3+end:]
	flags, info, _ := strings.Cut(tail, " ")

	prefix := ""
	if strings.Contains(flags, "i") {
		prefix += "i"
	}
	if strings.Contains(flags, "s") {
		prefix += "s"
	}
	regexStr := pattern
	if prefix != "" {
		regexStr = "(?" + prefix + ")" + pattern
	}

	regex, err := regexp.Compile(regexStr)
	if err != nil {
		return Match{}, fmt.Errorf("cannot compile regex: %w", err)
	}

	return Match{
		ServiceName: service,
		Pattern:     regex,
		Product:     versionField(info, 'p'),
		Version:     versionField(info, 'v'),
	}, nil
}

// versionField extracts a field such as p/OpenSSH/ from the version info part
// of a match line. The delimiter is whatever follows the field letter.
func versionField(info string, field byte) string {
	for i := 0; i+2 < len(info); i++ {
		if info[i] != field || (i > 0 && info[i-1] != ' ') {
			continue
		}
		delim := info[i+1]
		if delim == ' ' || delim == ':' {
			continue
		}
		end := strings.IndexByte(info[i+2:], delim)
		if end < 0 {
			return ""
		}
		return info[i+2 : i+2+end]
	}
	return ""
}

// ProbeCache caches loaded probes for fast access.
type ProbeCache struct {
	allProbes   []Probe
	tcpProbes   []Probe
	udpProbes   []Probe
	probeLookup map[string][]Probe // by probe name
}

// NewProbeCache creates and initializes probe cache.
func NewProbeCache(probes []Probe) *ProbeCache {
	cache := &ProbeCache{
		allProbes:   probes,
		probeLookup: make(map[string][]Probe),
	}

	for _, probe := range probes {
		switch probe.Protocol {
		case "TCP":
			cache.tcpProbes = append(cache.tcpProbes, probe)
		case "UDP":
			cache.udpProbes = append(cache.udpProbes, probe)
		}
		cache.probeLookup[probe.Name] = append(cache.probeLookup[probe.Name], probe)
	}

	return cache
}

// TCPProbes returns all TCP probes in file order.
func (pc *ProbeCache) TCPProbes() []Probe {
	return pc.tcpProbes
}

// UDPProbes returns all UDP probes in file order.
func (pc *ProbeCache) UDPProbes() []Probe {
	return pc.udpProbes
}

// ProbeByName returns the probes registered under name.
func (pc *ProbeCache) ProbeByName(name string) ([]Probe, bool) {
	probes, exists := pc.probeLookup[name]
	return probes, exists
}

// Identify tries the matches of every TCP probe, NULL probe first, and returns
// the first hit. Used for greetings a service sends before any probe is written.
func (pc *ProbeCache) Identify(response []byte) (Identification, bool) {
	for _, probe := range pc.tcpProbes {
		for _, m := range probe.Matches {
			if id, ok := m.Identify(response); ok {
				return id, true
			}
		}
	}
	return Identification{}, false
}

// DefaultProbes is the catalogue used when no nmap-service-probes file is configured.
func DefaultProbes() []Probe {
	return []Probe{
		{
			Protocol: "TCP",
			Name:     "NULL",
			Matches: []Match{
				mustMatch("ssh", `^SSH-([\d.]+)-OpenSSH[_-]([\w.]+)`, "OpenSSH", "$2"),
				mustMatch("ssh", `^SSH-([\d.]+)-([^\s\r\n]+)`, "$2", ""),
				mustMatch("ftp", `^220 \(vsFTPd ([\w.]+)\)`, "vsftpd", "$1"),
				mustMatch("ftp", `^220 ProFTPD ([\w.]+)`, "ProFTPD", "$1"),
				mustMatch("smtp", `(?i)^220[ -][^\r\n]*\bE?SMTP\b[ ]?([^\r\n]*)`, "", ""),
				mustMatch("ftp", `(?i)^220[ -][^\r\n]*FTP`, "", ""),
				mustMatch("pop3", `^\+OK`, "", ""),
				mustMatch("imap", `(?i)^\* OK[^\r\n]*IMAP`, "", ""),
				mustMatch("mysql", `(?s)^.\x00\x00\x00\x0a([\d.]+[\w.-]*)\x00`, "MySQL", "$1"),
				mustMatch("vnc", `^RFB (\d+\.\d+)`, "VNC", "$1"),
			},
		},
		{
			Protocol: "TCP",
			Name:     "GetRequest",
			Data:     []byte("GET / HTTP/1.0\r\n\r\n"),
			Matches: []Match{
				mustMatch("http", `(?is)^HTTP/1\.[01] \d\d\d.*?\r\nServer: nginx/([\d.]+)`, "nginx", "$1"),
				mustMatch("http", `(?is)^HTTP/1\.[01] \d\d\d.*?\r\nServer: Apache/([\d.]+)`, "Apache httpd", "$1"),
				mustMatch("http", `^HTTP/1\.[01] \d\d\d`, "", ""),
			},
		},
	}
}

func mustMatch(service, pattern, product, version string) Match {
	return Match{
		ServiceName: service,
		Pattern:     regexp.MustCompile(pattern),
		Product:     product,
		Version:     version,
	}
}
