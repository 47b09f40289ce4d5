package status

import (
	"net"
	"time"

	"github.com/miekg/dns"
)

// Outcome of the DNS responsiveness probe.
const (
	DNSResponding = "RESPONDING"
	DNSSilent     = "SILENT"
	DNSSkipped    = "SKIPPED"
)

// Asks the resolver on the gateway address a throwaway question. Any
// response, including NXDOMAIN, counts as responding; only a transport
// failure or timeout counts as silent. The answer content is irrelevant,
// the probe only establishes that dnsmasq is serving the port.
func probeDNS(gateway string, timeout time.Duration) string {
	client := &dns.Client{Timeout: timeout}
	message := new(dns.Msg)
	message.SetQuestion(dns.Fqdn("probe.hotspot.invalid"), dns.TypeA)
	_, _, err := client.Exchange(message, net.JoinHostPort(gateway, "53"))
	if err != nil {
		return DNSSilent
	}
	return DNSResponding
}
