package scanner

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	MinPort = 1
	MaxPort = 65535
)

// ErrInvalidPortSpec is returned when a port specification cannot be resolved.
var ErrInvalidPortSpec = errors.New("invalid port specification")

// DefaultPorts is scanned when no port specification is given.
var DefaultPorts = []int{21, 22, 23, 25, 53, 80, 110, 123, 135, 139, 143, 389, 443, 445, 993, 995, 1723, 3306, 3389, 5900, 8080}

// ResolvePorts turns a specification such as "22,80,8000-8100" into a sorted,
// deduplicated port set. An empty specification yields DefaultPorts.
func ResolvePorts(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return append([]int(nil), DefaultPorts...), nil
	}

	seen := make(map[int]struct{})
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("%w: empty item in %q", ErrInvalidPortSpec, spec)
		}

		start, end, err := parseItem(item)
		if err != nil {
			return nil, err
		}
		for p := start; p <= end; p++ {
			seen[p] = struct{}{}
		}
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports, nil
}

func parseItem(item string) (int, int, error) {
	lo, hi, isRange := strings.Cut(item, "-")
	start, err := parsePort(lo, item)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return start, start, nil
	}
	end, err := parsePort(hi, item)
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, fmt.Errorf("%w: range start greater than end in %q", ErrInvalidPortSpec, item)
	}
	return start, end, nil
}

func parsePort(s, item string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidPortSpec, item)
	}
	if v < MinPort || v > MaxPort {
		return 0, fmt.Errorf("%w: %d outside %d-%d", ErrInvalidPortSpec, v, MinPort, MaxPort)
	}
	return v, nil
}

// FormatPorts compacts a sorted port set back into specification form,
// collapsing consecutive runs into ranges.
func FormatPorts(ports []int) string {
	var b strings.Builder
	for i := 0; i < len(ports); {
		j := i
		for j+1 < len(ports) && ports[j+1] == ports[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(ports[i]))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(ports[j]))
		}
		i = j + 1
	}
	return b.String()
}
