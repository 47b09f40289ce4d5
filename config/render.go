package config

import (
	"bytes"
	"os"
	"text/template"

	"github.com/pkg/errors"
)

// hostapd consumes a flat key=value file. WPA2-PSK with CCMP is the only
// suite the orchestrator configures; open networks are not supported.
var hostapdConfTemplate = template.Must(template.New("hostapd.conf").Parse(
	`# Generated by hotspotctl. Do not edit; changes are overwritten on start.
interface={{.Interface}}
driver=nl80211
ssid={{.SSID}}
hw_mode=g
channel={{.Channel}}
country_code={{.Country}}
ieee80211n=1
wmm_enabled=1
macaddr_acl=0
auth_algs=1
ignore_broadcast_ssid=0
wpa=2
wpa_passphrase={{.Passphrase}}
wpa_key_mgmt=WPA-PSK
rsn_pairwise=CCMP
max_num_sta={{.MaxStations}}
`))

// dnsmasq serves both DHCP and DNS on the gateway address. bind-interfaces
// keeps it off the wildcard socket so it can coexist with a system resolver.
var dnsmasqConfTemplate = template.Must(template.New("dnsmasq.conf").Parse(
	`# Generated by hotspotctl. Do not edit; changes are overwritten on start.
interface={{.Interface}}
bind-interfaces
listen-address={{.Gateway}}
domain-needed
bogus-priv
dhcp-range={{.RangeStart}},{{.RangeEnd}},{{.Netmask}},{{.LeaseTime}}
dhcp-option=option:router,{{.Gateway}}
dhcp-option=option:dns-server,{{.Gateway}}
dhcp-leasefile={{.LeaseFile}}
dhcp-authoritative
`))

// View over Config with the derived addressing resolved, handed to the
// dnsmasq template.
type dnsmasqConfView struct {
	Interface  string
	Gateway    string
	RangeStart string
	RangeEnd   string
	Netmask    string
	LeaseTime  string
	LeaseFile  string
}

// Renders the hostapd configuration file content.
func (c *Config) RenderHostapdConf() (string, error) {
	var buffer bytes.Buffer
	if err := hostapdConfTemplate.Execute(&buffer, c); err != nil {
		return "", errors.Wrap(err, "cannot render hostapd configuration")
	}
	return buffer.String(), nil
}

// Renders the dnsmasq configuration file content.
func (c *Config) RenderDnsmasqConf() (string, error) {
	gateway, err := c.Gateway()
	if err != nil {
		return "", err
	}
	start, end, err := c.DHCPRange()
	if err != nil {
		return "", err
	}
	netmask, err := c.Netmask()
	if err != nil {
		return "", err
	}
	view := dnsmasqConfView{
		Interface:  c.Interface,
		Gateway:    gateway.String(),
		RangeStart: start.String(),
		RangeEnd:   end.String(),
		Netmask:    netmask,
		LeaseTime:  c.LeaseTime,
		LeaseFile:  c.LeaseFilePath(),
	}
	var buffer bytes.Buffer
	if err := dnsmasqConfTemplate.Execute(&buffer, view); err != nil {
		return "", errors.Wrap(err, "cannot render dnsmasq configuration")
	}
	return buffer.String(), nil
}

// Materializes the runtime directory and both daemon configuration files.
// The passphrase ends up in hostapd.conf, hence the restrictive mode.
func (c *Config) WriteFiles() error {
	if err := os.MkdirAll(c.RuntimeDir, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create runtime directory %s", c.RuntimeDir)
	}
	hostapdConf, err := c.RenderHostapdConf()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.HostapdConfPath(), []byte(hostapdConf), 0o600); err != nil {
		return errors.Wrapf(err, "cannot write %s", c.HostapdConfPath())
	}
	dnsmasqConf, err := c.RenderDnsmasqConf()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.DnsmasqConfPath(), []byte(dnsmasqConf), 0o644); err != nil {
		return errors.Wrapf(err, "cannot write %s", c.DnsmasqConfPath())
	}
	return nil
}
