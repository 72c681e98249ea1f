package scanner

import (
	"crypto/tls"
	"fmt"
)

var wellKnownServices = map[int]string{
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "dns",
	80:   "http",
	110:  "pop3",
	123:  "ntp",
	135:  "msrpc",
	139:  "netbios-ssn",
	143:  "imap",
	389:  "ldap",
	443:  "https",
	445:  "microsoft-ds",
	465:  "smtps",
	636:  "ldaps",
	853:  "domain-s",
	993:  "imaps",
	995:  "pop3s",
	1723: "pptp",
	3306: "mysql",
	3389: "ms-wbt-server",
	5432: "postgresql",
	5900: "vnc",
	6379: "redis",
	8080: "http-proxy",
	8443: "https-alt",
}

var tlsPorts = map[int]bool{443: true, 465: true, 636: true, 853: true, 993: true, 995: true, 8443: true}

// WellKnownService guesses a service name from the port number alone.
func WellKnownService(port int) string {
	return wellKnownServices[port]
}

func isTLSPort(port int) bool {
	return tlsPorts[port]
}

// TLSVersionName returns the conventional name of a TLS protocol version.
func TLSVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}
