// Package status produces the reconciled live view of the hotspot. Every
// field comes from a fresh system query, never from the resource ledger:
// the ledger records what this orchestrator believes it owns, while
// operators need to see what the system actually does. Disagreement
// between the two is reported as drift, not silently resolved.
package status

import (
	"fmt"
	"io"
	"strings"
	"time"

	fqdn "github.com/Showmax/go-fqdn"
	log "github.com/sirupsen/logrus"

	"github.com/hotspotctl/hotspot/config"
	"github.com/hotspotctl/hotspot/firewall"
)

// Daemon liveness as shown to the operator.
const (
	DaemonRunning = "RUNNING"
	DaemonStopped = "STOPPED"
)

// Live link state queries. Implemented by netif.Controller.
type LinkProber interface {
	Exists(name string) bool
	Query(name string) (up bool, addrs []string, err error)
}

// Live daemon liveness queries. Implemented by daemon.Supervisor.
type DaemonProber interface {
	Name() string
	IsRunning() bool
	IsStale() bool
}

// Live firewall rule presence queries. Implemented by firewall.Manager.
type NATProber interface {
	Active(hotspotIf, upstreamIf string) []bool
}

// One reconciled snapshot of the hotspot's externally observable state.
type Snapshot struct {
	Host           string
	InterfaceName  string
	InterfaceFound bool
	InterfaceUp    bool
	Addresses      []string
	APState        string
	SSID           string
	Channel        int
	DHCPState      string
	DNSProbe       string
	Upstream       string
	NATRules       []RuleStatus
	Leases         []ClientLease
	// Conditions where recorded state disagrees with live state, e.g. a
	// pid file naming a dead process.
	Drift []string
}

// Presence of one firewall rule in the live table.
type RuleStatus struct {
	Rule    string
	Present bool
}

// True when every NAT rule is present.
func (s *Snapshot) NATActive() bool {
	if len(s.NATRules) == 0 {
		return false
	}
	for _, rule := range s.NATRules {
		if !rule.Present {
			return false
		}
	}
	return true
}

// Composes live queries across all hotspot subsystems into snapshots.
type Reporter struct {
	cfg  *config.Config
	link LinkProber
	ap   DaemonProber
	dhcp DaemonProber
	nat  NATProber

	// Overridable in tests.
	dnsProbe func(gateway string, timeout time.Duration) string
	hostname func() string
}

// Constructs the status reporter over the given live probes.
func NewReporter(cfg *config.Config, link LinkProber, ap, dhcp DaemonProber, nat NATProber) *Reporter {
	return &Reporter{
		cfg:      cfg,
		link:     link,
		ap:       ap,
		dhcp:     dhcp,
		nat:      nat,
		dnsProbe: probeDNS,
		hostname: hostFqdn,
	}
}

// Queries every subsystem and returns the reconciled snapshot. Never
// fails: a resource being down or unreadable is a valid, reportable
// state, degraded to an explicit value per field.
func (r *Reporter) Report() *Snapshot {
	snapshot := &Snapshot{
		Host:          r.hostname(),
		InterfaceName: r.cfg.Interface,
		Upstream:      r.cfg.Upstream,
		APState:       DaemonStopped,
		DHCPState:     DaemonStopped,
		DNSProbe:      DNSSkipped,
	}

	snapshot.InterfaceFound = r.link.Exists(r.cfg.Interface)
	if snapshot.InterfaceFound {
		up, addrs, err := r.link.Query(r.cfg.Interface)
		if err != nil {
			log.WithError(err).Warn("Cannot query interface state")
		} else {
			snapshot.InterfaceUp = up
			snapshot.Addresses = addrs
		}
	}

	if r.ap.IsRunning() {
		snapshot.APState = DaemonRunning
		snapshot.SSID, snapshot.Channel = config.ReadHostapdSettings(r.cfg.HostapdConfPath())
	} else if r.ap.IsStale() {
		snapshot.Drift = append(snapshot.Drift,
			fmt.Sprintf("%s pid file exists but no matching live process", r.ap.Name()))
	}

	if r.dhcp.IsRunning() {
		snapshot.DHCPState = DaemonRunning
		if gateway, err := r.cfg.Gateway(); err == nil {
			snapshot.DNSProbe = r.dnsProbe(gateway.String(), 2*time.Second)
		}
	} else if r.dhcp.IsStale() {
		snapshot.Drift = append(snapshot.Drift,
			fmt.Sprintf("%s pid file exists but no matching live process", r.dhcp.Name()))
	}

	rules := firewall.Rules(r.cfg.Interface, r.cfg.Upstream)
	present := r.nat.Active(r.cfg.Interface, r.cfg.Upstream)
	for i, rule := range rules {
		snapshot.NATRules = append(snapshot.NATRules, RuleStatus{
			Rule:    rule.String(),
			Present: present[i],
		})
	}
	if snapshot.NATActive() && snapshot.APState == DaemonStopped {
		snapshot.Drift = append(snapshot.Drift,
			"NAT rules are installed but the AP daemon is not running")
	}

	leases, err := ReadLeases(r.cfg.LeaseFilePath())
	if err != nil {
		log.WithError(err).Debug("Lease table not readable, reporting no leases")
	}
	snapshot.Leases = leases

	return snapshot
}

// Writes the snapshot in the operator-facing text format.
func (s *Snapshot) Write(w io.Writer) {
	fmt.Fprintf(w, "Hotspot status on %s\n\n", s.Host)

	interfaceState := "NOT FOUND"
	if s.InterfaceFound {
		linkState := "DOWN"
		if s.InterfaceUp {
			linkState = "UP"
		}
		interfaceState = fmt.Sprintf("FOUND, %s", linkState)
		if len(s.Addresses) > 0 {
			interfaceState += ", " + strings.Join(s.Addresses, ", ")
		}
	}
	fmt.Fprintf(w, "  Interface %-16s %s\n", s.InterfaceName+":", interfaceState)

	apState := s.APState
	if s.APState == DaemonRunning && s.SSID != "" {
		apState = fmt.Sprintf("%s (ssid %q, channel %d)", s.APState, s.SSID, s.Channel)
	}
	fmt.Fprintf(w, "  Hostapd:                   %s\n", apState)
	fmt.Fprintf(w, "  Dnsmasq:                   %s\n", s.DHCPState)
	fmt.Fprintf(w, "  DNS service:               %s\n", s.DNSProbe)

	natState := "INACTIVE"
	if s.NATActive() {
		natState = fmt.Sprintf("ACTIVE (via %s)", s.Upstream)
	} else {
		for _, rule := range s.NATRules {
			if rule.Present {
				natState = "PARTIAL"
				break
			}
		}
	}
	fmt.Fprintf(w, "  NAT:                       %s\n", natState)

	if len(s.Leases) == 0 {
		fmt.Fprintf(w, "  Leases:                    (none)\n")
	} else {
		fmt.Fprintf(w, "  Leases:\n")
		for _, lease := range s.Leases {
			fmt.Fprintf(w, "    %-15s %-17s %-20s expires %s\n",
				lease.IP, lease.MAC, lease.Hostname,
				lease.Expires.Format("2006-01-02 15:04:05"))
		}
	}

	for _, condition := range s.Drift {
		fmt.Fprintf(w, "  DRIFT: %s\n", condition)
	}
}

// Returns the host FQDN, falling back to whatever go-fqdn can determine.
func hostFqdn() string {
	name, err := fqdn.FqdnHostname()
	if err != nil {
		return "unknown-host"
	}
	return name
}
