package config

import (
	"fmt"
	"net"
	"path"
	"time"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"
)

// Default runtime directory holding the daemon config files, pid files,
// the lease table and the lock file.
const DefaultRuntimeDir = "/var/run/hotspot"

// Host numbers carved out of the /24 hotspot network. The gateway takes
// the first host; DHCP hands out the 10..250 range so a few low addresses
// stay free for static assignment.
const (
	gatewayHostNum    = 1
	rangeStartHostNum = 10
	rangeEndHostNum   = 250
)

// Immutable per-run hotspot configuration. Loaded once at invocation from
// CLI flags and environment variables, never mutated afterwards.
type Config struct {
	// Wireless interface the hotspot runs on, e.g. wlx00c0ca901e7d.
	Interface string
	// Upstream interface providing internet connectivity, e.g. eth0.
	Upstream string
	// Network name broadcast by the access point.
	SSID string
	// WPA2 passphrase, 8..63 printable ASCII characters.
	Passphrase string
	// Wireless channel in the 2.4 GHz band.
	Channel int
	// First three octets of the hotspot network, e.g. "192.168.12".
	Subnet string
	// ISO-3166 alpha-2 regulatory domain, e.g. "US".
	Country string
	// Maximum number of associated stations.
	MaxStations int
	// DHCP lease lifetime handed to clients, in dnsmasq notation ("12h").
	LeaseTime string
	// Directory for rendered configs, pid files, leases and the lock file.
	RuntimeDir string
	// Daemon startup is polled this many times before giving up.
	StartAttempts int
	// Delay between consecutive startup liveness polls.
	PollInterval time.Duration
}

// Returns a configuration populated with defaults for everything that is
// not host-specific. Interface, upstream and credentials have no sane
// defaults and must come from the operator.
func NewDefaultConfig() *Config {
	return &Config{
		Channel:       6,
		Subnet:        "192.168.12",
		Country:       "US",
		MaxStations:   16,
		LeaseTime:     "12h",
		RuntimeDir:    DefaultRuntimeDir,
		StartAttempts: 10,
		PollInterval:  500 * time.Millisecond,
	}
}

// Validates the configuration. Returns the first problem found; the CLI
// surfaces it before any system state is touched.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return errors.New("hotspot interface name is required")
	}
	if c.Upstream == "" {
		return errors.New("upstream interface name is required")
	}
	if c.Interface == c.Upstream {
		return errors.Errorf("hotspot and upstream interface must differ, both are %s", c.Interface)
	}
	if len(c.SSID) < 1 || len(c.SSID) > 32 {
		return errors.Errorf("SSID must be 1..32 bytes long, got %d", len(c.SSID))
	}
	if len(c.Passphrase) < 8 || len(c.Passphrase) > 63 {
		return errors.Errorf("WPA2 passphrase must be 8..63 characters long, got %d", len(c.Passphrase))
	}
	if !govalidator.IsPrintableASCII(c.Passphrase) {
		return errors.New("WPA2 passphrase must consist of printable ASCII characters")
	}
	if c.Channel < 1 || c.Channel > 14 {
		return errors.Errorf("channel must be in the 1..14 range, got %d", c.Channel)
	}
	if !govalidator.IsISO3166Alpha2(c.Country) {
		return errors.Errorf("country %q is not an ISO-3166 alpha-2 code", c.Country)
	}
	if c.MaxStations < 1 {
		return errors.Errorf("station limit must be positive, got %d", c.MaxStations)
	}
	if c.StartAttempts < 1 {
		return errors.Errorf("startup attempt budget must be positive, got %d", c.StartAttempts)
	}
	if c.PollInterval <= 0 {
		return errors.Errorf("startup poll interval must be positive, got %s", c.PollInterval)
	}
	if _, err := c.Network(); err != nil {
		return err
	}
	return nil
}

// Validates only what stop and status need: the interface names and the
// subnet. Credentials are not required to tear down or inspect a hotspot.
func (c *Config) ValidateRuntime() error {
	if c.Interface == "" {
		return errors.New("hotspot interface name is required")
	}
	if c.Upstream == "" {
		return errors.New("upstream interface name is required")
	}
	if _, err := c.Network(); err != nil {
		return err
	}
	return nil
}

// Returns the hotspot /24 network derived from the subnet prefix.
func (c *Config) Network() (*net.IPNet, error) {
	_, network, err := net.ParseCIDR(fmt.Sprintf("%s.0/24", c.Subnet))
	if err != nil {
		return nil, errors.Errorf("subnet prefix %q does not form a valid /24 network", c.Subnet)
	}
	return network, nil
}

// Returns the gateway address assigned to the hotspot interface.
func (c *Config) Gateway() (net.IP, error) {
	network, err := c.Network()
	if err != nil {
		return nil, err
	}
	gateway, err := cidr.Host(network, gatewayHostNum)
	return gateway, errors.Wrap(err, "cannot derive gateway address")
}

// Returns the gateway address in CIDR notation, as passed to the address
// assignment command.
func (c *Config) GatewayCIDR() (string, error) {
	gateway, err := c.Gateway()
	if err != nil {
		return "", err
	}
	network, _ := c.Network()
	ones, _ := network.Mask.Size()
	return fmt.Sprintf("%s/%d", gateway, ones), nil
}

// Returns the first and last address of the DHCP pool.
func (c *Config) DHCPRange() (start, end net.IP, err error) {
	network, err := c.Network()
	if err != nil {
		return nil, nil, err
	}
	start, err = cidr.Host(network, rangeStartHostNum)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot derive DHCP range start")
	}
	end, err = cidr.Host(network, rangeEndHostNum)
	if err != nil {
		return nil, nil, errors.Wrap(err, "cannot derive DHCP range end")
	}
	return start, end, nil
}

// Returns the network mask of the hotspot network in dotted quad form.
func (c *Config) Netmask() (string, error) {
	network, err := c.Network()
	if err != nil {
		return "", err
	}
	return net.IP(network.Mask).String(), nil
}

// Paths of the files the orchestrator persists under the runtime directory.

func (c *Config) HostapdConfPath() string {
	return path.Join(c.RuntimeDir, "hostapd.conf")
}

func (c *Config) DnsmasqConfPath() string {
	return path.Join(c.RuntimeDir, "dnsmasq.conf")
}

func (c *Config) HostapdPidPath() string {
	return path.Join(c.RuntimeDir, "hostapd.pid")
}

func (c *Config) DnsmasqPidPath() string {
	return path.Join(c.RuntimeDir, "dnsmasq.pid")
}

func (c *Config) LeaseFilePath() string {
	return path.Join(c.RuntimeDir, "dnsmasq.leases")
}

func (c *Config) LockPath() string {
	return path.Join(c.RuntimeDir, "hotspot.lock")
}
