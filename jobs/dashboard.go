package jobs

import (
	"fmt"
	"sort"
)

// DashboardStats aggregates every known job.
type DashboardStats struct {
	TotalScans       int `json:"total_scans"`
	ActiveHosts      int `json:"active_hosts"`
	OpenPorts        int `json:"open_ports"`
	InsecureServices int `json:"vulnerabilities"`
}

// Issue is a security recommendation derived from scan findings.
type Issue struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Dashboard is the aggregate view across all jobs.
type Dashboard struct {
	Scans          []Summary      `json:"scans"`
	Statistics     DashboardStats `json:"statistics"`
	SecurityIssues []Issue        `json:"security_issues"`
}

// openPortAlertThreshold is the open-port count above which a host is flagged.
const openPortAlertThreshold = 10

// Dashboard summarises every job and derives security recommendations.
func (o *Orchestrator) Dashboard() Dashboard {
	return BuildDashboard(o.List())
}

// BuildDashboard aggregates job summaries.
func BuildDashboard(scans []Summary) Dashboard {
	d := Dashboard{Scans: scans, SecurityIssues: []Issue{}}
	if d.Scans == nil {
		d.Scans = []Summary{}
	}

	hosts := make(map[string]bool)
	insecureHosts := make(map[string]map[string]bool)
	sshHosts := make(map[string]bool)
	for _, s := range scans {
		hosts[s.Target] = true
		d.Statistics.OpenPorts += s.OpenPorts
		d.Statistics.InsecureServices += len(s.Insecure)
		for _, f := range s.Insecure {
			if insecureHosts[f.Service] == nil {
				insecureHosts[f.Service] = make(map[string]bool)
			}
			insecureHosts[f.Service][s.Target] = true
		}
		for _, svc := range s.Services {
			if svc == "ssh" {
				sshHosts[s.Target] = true
			}
		}
	}
	d.Statistics.TotalScans = len(scans)
	d.Statistics.ActiveHosts = len(hosts)

	if len(scans) == 0 {
		d.SecurityIssues = append(d.SecurityIssues,
			Issue{
				Title:       "Welcome to portwatch",
				Description: "Start by running a scan on your local network to identify open ports and potential vulnerabilities.",
			},
			Issue{
				Title:       "Security Best Practice",
				Description: "Regular scanning helps maintain network security. Start a new scan to begin.",
			},
		)
		return d
	}

	for _, s := range scans {
		if s.OpenPorts > openPortAlertThreshold {
			d.SecurityIssues = append(d.SecurityIssues, Issue{
				Title: "Open Port Alert for " + s.Target,
				Description: fmt.Sprintf("Host %s has %d open ports. Consider closing unnecessary services and implementing firewall rules.",
					s.Target, s.OpenPorts),
			})
		}
	}

	services := make([]string, 0, len(insecureHosts))
	for svc := range insecureHosts {
		services = append(services, svc)
	}
	sort.Strings(services)
	for _, svc := range services {
		n := len(insecureHosts[svc])
		switch svc {
		case "telnet":
			d.SecurityIssues = append(d.SecurityIssues, Issue{
				Title:       "Telnet Security Risk",
				Description: fmt.Sprintf("Telnet (unencrypted protocol) found on %d host(s). Consider replacing with SSH for secure remote access.", n),
			})
		case "ftp":
			d.SecurityIssues = append(d.SecurityIssues, Issue{
				Title:       "FTP Security Risk",
				Description: fmt.Sprintf("FTP (unencrypted protocol) found on %d host(s). Consider using SFTP or FTPS for secure file transfers.", n),
			})
		}
	}

	if len(sshHosts) > 0 {
		d.SecurityIssues = append(d.SecurityIssues, Issue{
			Title:       "SSH Security",
			Description: fmt.Sprintf("%d host(s) have SSH open. Ensure key-based authentication is enabled and password auth is disabled.", len(sshHosts)),
		})
	}
	return d
}
