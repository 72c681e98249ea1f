package export

import (
	"strconv"
	"strings"
	"time"

	"portwatch/scanner"
)

const (
	maxBannerLen   = 500
	bannerSep      = " | "
	scanDateLayout = time.DateTime
)

var header = []string{"Host", "Port", "Status", "Service", "Version", "Server", "Banner", "SSL Certificate", "Scan Date"}

// Column indices into header.
const (
	colHost = iota
	colPort
	colStatus
	colService
	colVersion
	colServer
)

var bannerBreaks = strings.NewReplacer("\r\n", bannerSep, "\n", bannerSep, "\r", bannerSep)

// document is the format-independent view handed to every renderer.
type document struct {
	host       string
	jobID      string
	scanDate   time.Time
	totalPorts int
	open       []scanner.PortResult
}

func (d document) rows() [][]string {
	date := d.scanDate.Format(scanDateLayout)
	out := make([][]string, 0, len(d.open))
	for _, res := range d.open {
		out = append(out, []string{
			d.host,
			strconv.Itoa(res.Port),
			"Open",
			res.Service,
			res.Version,
			res.Server,
			normalizeBanner(res.Banner),
			res.TLS.String(),
			date,
		})
	}
	return out
}

// normalizeBanner joins banner lines with a single separator and caps the
// length, marking truncation with an ellipsis.
func normalizeBanner(banner string) string {
	banner = bannerBreaks.Replace(banner)
	if r := []rune(banner); len(r) > maxBannerLen {
		return string(r[:maxBannerLen-3]) + "..."
	}
	return banner
}
