package status

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hotspotctl/hotspot/config"
	"github.com/hotspotctl/hotspot/testutil"
)

type fakeLink struct {
	exists bool
	up     bool
	addrs  []string
}

func (l *fakeLink) Exists(name string) bool {
	return l.exists
}

func (l *fakeLink) Query(name string) (bool, []string, error) {
	return l.up, l.addrs, nil
}

type fakeDaemon struct {
	name    string
	running bool
	stale   bool
}

func (d *fakeDaemon) Name() string    { return d.name }
func (d *fakeDaemon) IsRunning() bool { return d.running }
func (d *fakeDaemon) IsStale() bool   { return d.stale }

type fakeNAT struct {
	present []bool
}

func (n *fakeNAT) Active(hotspotIf, upstreamIf string) []bool {
	return n.present
}

// Builds a reporter over fakes, with the DNS probe and hostname pinned.
func newTestReporter(t *testing.T, sb *testutil.Sandbox, link *fakeLink, ap, dhcp *fakeDaemon, nat *fakeNAT) *Reporter {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Interface = "wlan-test"
	cfg.Upstream = "eth-test"
	cfg.SSID = "test-net"
	cfg.Passphrase = "secret-pass"
	cfg.Subnet = "10.9.9"
	cfg.RuntimeDir = sb.BasePath

	reporter := NewReporter(cfg, link, ap, dhcp, nat)
	reporter.hostname = func() string { return "router.example.org" }
	reporter.dnsProbe = func(gateway string, timeout time.Duration) string {
		require.Equal(t, "10.9.9.1", gateway)
		return DNSResponding
	}
	return reporter
}

// Test the snapshot of a fully running hotspot.
func TestReportRunning(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	link := &fakeLink{exists: true, up: true, addrs: []string{"10.9.9.1/24"}}
	ap := &fakeDaemon{name: "hostapd", running: true}
	dhcp := &fakeDaemon{name: "dnsmasq", running: true}
	nat := &fakeNAT{present: []bool{true, true, true}}

	reporter := newTestReporter(t, sb, link, ap, dhcp, nat)
	// Render the hostapd config so the reporter can read the SSID back.
	require.NoError(t, reporter.cfg.WriteFiles())
	_, err := sb.Write("dnsmasq.leases", "1756116000 aa:bb:cc:dd:ee:ff 10.9.9.17 phone *\n")
	require.NoError(t, err)

	snapshot := reporter.Report()
	require.True(t, snapshot.InterfaceFound)
	require.True(t, snapshot.InterfaceUp)
	require.Equal(t, DaemonRunning, snapshot.APState)
	require.Equal(t, "test-net", snapshot.SSID)
	require.Equal(t, 6, snapshot.Channel)
	require.Equal(t, DaemonRunning, snapshot.DHCPState)
	require.Equal(t, DNSResponding, snapshot.DNSProbe)
	require.True(t, snapshot.NATActive())
	require.Len(t, snapshot.Leases, 1)
	require.Empty(t, snapshot.Drift)

	var builder strings.Builder
	snapshot.Write(&builder)
	text := builder.String()
	require.Contains(t, text, "Hotspot status on router.example.org")
	require.Contains(t, text, "FOUND, UP, 10.9.9.1/24")
	require.Contains(t, text, `RUNNING (ssid "test-net", channel 6)`)
	require.Contains(t, text, "NAT:                       ACTIVE (via eth-test)")
	require.Contains(t, text, "10.9.9.17")
}

// Test the snapshot of a fully stopped hotspot: down is a valid,
// reportable state, never an error.
func TestReportStopped(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	link := &fakeLink{exists: true, up: false}
	ap := &fakeDaemon{name: "hostapd"}
	dhcp := &fakeDaemon{name: "dnsmasq"}
	nat := &fakeNAT{present: []bool{false, false, false}}

	reporter := newTestReporter(t, sb, link, ap, dhcp, nat)
	snapshot := reporter.Report()

	require.Equal(t, DaemonStopped, snapshot.APState)
	require.Equal(t, DaemonStopped, snapshot.DHCPState)
	require.Equal(t, DNSSkipped, snapshot.DNSProbe)
	require.False(t, snapshot.NATActive())
	require.Empty(t, snapshot.Leases)

	var builder strings.Builder
	snapshot.Write(&builder)
	text := builder.String()
	require.Contains(t, text, "Hostapd:                   STOPPED")
	require.Contains(t, text, "Dnsmasq:                   STOPPED")
	require.Contains(t, text, "NAT:                       INACTIVE")
	require.Contains(t, text, "Leases:                    (none)")
}

// Test that disagreement between recorded and live state is surfaced as
// drift instead of being silently resolved.
func TestReportDrift(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	link := &fakeLink{exists: false}
	ap := &fakeDaemon{name: "hostapd", stale: true}
	dhcp := &fakeDaemon{name: "dnsmasq"}
	// Rules survived even though the daemons are gone.
	nat := &fakeNAT{present: []bool{true, true, true}}

	reporter := newTestReporter(t, sb, link, ap, dhcp, nat)
	snapshot := reporter.Report()

	require.False(t, snapshot.InterfaceFound)
	require.Len(t, snapshot.Drift, 2)
	require.Contains(t, snapshot.Drift[0], "hostapd pid file exists")
	require.Contains(t, snapshot.Drift[1], "NAT rules are installed")

	var builder strings.Builder
	snapshot.Write(&builder)
	require.Contains(t, builder.String(), "DRIFT: hostapd pid file exists but no matching live process")
}

// Test that a partially flushed rule table reads as partial, not active.
func TestReportPartialNAT(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	link := &fakeLink{exists: true, up: true}
	ap := &fakeDaemon{name: "hostapd", running: true}
	dhcp := &fakeDaemon{name: "dnsmasq", running: true}
	nat := &fakeNAT{present: []bool{false, true, true}}

	reporter := newTestReporter(t, sb, link, ap, dhcp, nat)
	require.NoError(t, reporter.cfg.WriteFiles())
	snapshot := reporter.Report()
	require.False(t, snapshot.NATActive())

	var builder strings.Builder
	snapshot.Write(&builder)
	require.Contains(t, builder.String(), "NAT:                       PARTIAL")
}
