package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Returns a configuration that passes validation, for tests to break one
// field at a time.
func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Interface = "wlan-test"
	cfg.Upstream = "eth-test"
	cfg.SSID = "test-net"
	cfg.Passphrase = "secret-pass"
	return cfg
}

// Test that a complete configuration validates.
func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

// Test the validation rejections, one broken field at a time.
func TestValidateRejections(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Config)
		text   string
	}{
		{"no interface", func(c *Config) { c.Interface = "" }, "interface name is required"},
		{"no upstream", func(c *Config) { c.Upstream = "" }, "interface name is required"},
		{"same interfaces", func(c *Config) { c.Upstream = c.Interface }, "must differ"},
		{"empty ssid", func(c *Config) { c.SSID = "" }, "SSID"},
		{"long ssid", func(c *Config) { c.SSID = "0123456789012345678901234567890123" }, "SSID"},
		{"short passphrase", func(c *Config) { c.Passphrase = "short" }, "passphrase"},
		{"non-ascii passphrase", func(c *Config) { c.Passphrase = "zażółć-gęślą" }, "printable ASCII"},
		{"channel too high", func(c *Config) { c.Channel = 15 }, "channel"},
		{"channel zero", func(c *Config) { c.Channel = 0 }, "channel"},
		{"bad country", func(c *Config) { c.Country = "USA" }, "ISO-3166"},
		{"no stations", func(c *Config) { c.MaxStations = 0 }, "station limit"},
		{"no attempts", func(c *Config) { c.StartAttempts = 0 }, "attempt budget"},
		{"no interval", func(c *Config) { c.PollInterval = 0 }, "poll interval"},
		{"bad subnet", func(c *Config) { c.Subnet = "300.1.1" }, "subnet prefix"},
	}
	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			cfg := validConfig()
			m.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorContains(t, err, m.text)
		})
	}
}

// Test that the runtime validation does not demand credentials.
func TestValidateRuntime(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Interface = "wlan-test"
	cfg.Upstream = "eth-test"
	require.NoError(t, cfg.ValidateRuntime())

	cfg.Upstream = ""
	require.Error(t, cfg.ValidateRuntime())
}

// Test the addressing derived from the subnet prefix.
func TestDerivedAddressing(t *testing.T) {
	cfg := validConfig()
	cfg.Subnet = "10.9.9"

	gateway, err := cfg.Gateway()
	require.NoError(t, err)
	require.Equal(t, "10.9.9.1", gateway.String())

	gatewayCIDR, err := cfg.GatewayCIDR()
	require.NoError(t, err)
	require.Equal(t, "10.9.9.1/24", gatewayCIDR)

	start, end, err := cfg.DHCPRange()
	require.NoError(t, err)
	require.Equal(t, "10.9.9.10", start.String())
	require.Equal(t, "10.9.9.250", end.String())

	netmask, err := cfg.Netmask()
	require.NoError(t, err)
	require.Equal(t, "255.255.255.0", netmask)
}

// Test that all runtime paths live under the runtime directory.
func TestRuntimePaths(t *testing.T) {
	cfg := validConfig()
	cfg.RuntimeDir = "/tmp/hs-test"

	require.Equal(t, "/tmp/hs-test/hostapd.conf", cfg.HostapdConfPath())
	require.Equal(t, "/tmp/hs-test/dnsmasq.conf", cfg.DnsmasqConfPath())
	require.Equal(t, "/tmp/hs-test/hostapd.pid", cfg.HostapdPidPath())
	require.Equal(t, "/tmp/hs-test/dnsmasq.pid", cfg.DnsmasqPidPath())
	require.Equal(t, "/tmp/hs-test/dnsmasq.leases", cfg.LeaseFilePath())
	require.Equal(t, "/tmp/hs-test/hotspot.lock", cfg.LockPath())
}
