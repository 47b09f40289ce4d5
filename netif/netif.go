// Package netif owns the hotspot interface configuration: link state, the
// gateway address and the wireless regulatory domain. All changes go
// through external commands; all reads are live queries against the
// kernel, never cached.
package netif

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	gopsutilnet "github.com/shirou/gopsutil/v4/net"
	log "github.com/sirupsen/logrus"

	hotspotutil "github.com/hotspotctl/hotspot/util"
)

// Reported when the wireless device is absent, typically because the USB
// adapter has been unplugged. Terminal for the start sequence; there is
// no point retrying against missing hardware.
type InterfaceNotFoundError struct {
	Interface string
}

// Returns the error text.
func (e *InterfaceNotFoundError) Error() string {
	return fmt.Sprintf("interface %s not found (is the adapter plugged in?)", e.Interface)
}

// Lists the network interfaces. Overridable in tests.
type interfaceLister func() (gopsutilnet.InterfaceStatList, error)

// Configures the hotspot interface via the ip and iw commands.
type Controller struct {
	executor hotspotutil.CommandExecutor
	lister   interfaceLister
}

// Constructs the interface controller using the given command executor.
func NewController(executor hotspotutil.CommandExecutor) *Controller {
	return &Controller{
		executor: executor,
		lister:   gopsutilnet.Interfaces,
	}
}

// Checks whether the interface currently exists in the system.
func (c *Controller) Exists(name string) bool {
	_, err := c.find(name)
	return err == nil
}

// Returns the live state of the interface: whether its link is up and the
// addresses currently assigned to it.
func (c *Controller) Query(name string) (up bool, addrs []string, err error) {
	stat, err := c.find(name)
	if err != nil {
		return false, nil, err
	}
	up = slices.Contains(stat.Flags, "up")
	for _, addr := range stat.Addrs {
		addrs = append(addrs, addr.Addr)
	}
	return up, addrs, nil
}

// Brings the interface up with the gateway address assigned. Any existing
// address configuration is flushed first, so repeated binds converge to
// the same state. Fails with InterfaceNotFoundError when the device is
// absent.
func (c *Controller) Bind(name, gatewayCIDR string) error {
	if !c.Exists(name) {
		return &InterfaceNotFoundError{Interface: name}
	}
	steps := [][]string{
		{"ip", "addr", "flush", "dev", name},
		{"ip", "link", "set", "dev", name, "down"},
		{"ip", "link", "set", "dev", name, "up"},
		{"ip", "addr", "add", gatewayCIDR, "dev", name},
	}
	for _, step := range steps {
		if output, err := c.executor.Output(step[0], step[1:]...); err != nil {
			return errors.Wrapf(err, "command %q failed: %s",
				strings.Join(step, " "), strings.TrimSpace(string(output)))
		}
	}
	log.WithFields(log.Fields{
		"interface": name,
		"address":   gatewayCIDR,
	}).Info("Configured hotspot interface")
	return nil
}

// Flushes the addresses and sets the interface down. Best-effort: a
// missing device or a failed command is logged, never propagated, since
// teardown must attempt every remaining step.
func (c *Controller) Unbind(name string) {
	if !c.Exists(name) {
		log.WithField("interface", name).
			Warn("Interface already gone, skipping unbind")
		return
	}
	steps := [][]string{
		{"ip", "addr", "flush", "dev", name},
		{"ip", "link", "set", "dev", name, "down"},
	}
	for _, step := range steps {
		if output, err := c.executor.Output(step[0], step[1:]...); err != nil {
			log.WithError(err).Warnf("Command %q failed during unbind: %s",
				strings.Join(step, " "), strings.TrimSpace(string(output)))
		}
	}
	log.WithField("interface", name).Info("Deconfigured hotspot interface")
}

// Sets the wireless regulatory domain so channels restricted in the
// default world domain become available. Best-effort: a failure here is
// only a warning since an unusable channel surfaces later, and more
// informatively, when hostapd rejects it.
func (c *Controller) SetRegDomain(countryCode string) {
	if output, err := c.executor.Output("iw", "reg", "set", countryCode); err != nil {
		log.WithError(err).Warnf("Cannot set regulatory domain to %s: %s",
			countryCode, strings.TrimSpace(string(output)))
		return
	}
	log.WithField("country", countryCode).Info("Set wireless regulatory domain")
}

// Finds an interface by name in the live interface table.
func (c *Controller) find(name string) (*gopsutilnet.InterfaceStat, error) {
	stats, err := c.lister()
	if err != nil {
		return nil, errors.Wrap(err, "cannot list network interfaces")
	}
	for i := range stats {
		if stats[i].Name == name {
			return &stats[i], nil
		}
	}
	return nil, &InterfaceNotFoundError{Interface: name}
}
