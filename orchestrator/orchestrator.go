// Package orchestrator drives the hotspot lifecycle: it sequences the
// acquisition of the managed resources for start, reverse-sequences them
// for stop, rolls back on partial failure and composes the status
// reporter. The acquisition order is a first-class artifact: the resource
// ledger walks it forwards during start and backwards during rollback and
// teardown.
package orchestrator

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hotspotctl/hotspot/config"
	"github.com/hotspotctl/hotspot/ledger"
	"github.com/hotspotctl/hotspot/status"
)

// Reported when start is invoked while the AP daemon is already live.
// The orchestrator never double-starts.
var ErrAlreadyRunning = errors.New("hotspot is already running")

// Lifecycle state of the hotspot. There is exactly one instance
// process-wide; across invocations the state is rebuilt from the pid
// files and live system queries, never trusted from memory.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Failed
)

// Returns the state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Controls the hotspot interface. Implemented by netif.Controller.
type LinkController interface {
	Exists(name string) bool
	Query(name string) (up bool, addrs []string, err error)
	Bind(name, gatewayCIDR string) error
	Unbind(name string)
	SetRegDomain(countryCode string)
}

// Supervises one external daemon. Implemented by daemon.Supervisor.
type DaemonSupervisor interface {
	Name() string
	Start() error
	Stop() error
	IsRunning() bool
	IsStale() bool
}

// Manages the NAT rule set. Implemented by firewall.Manager.
type NATManager interface {
	Apply(hotspotIf, upstreamIf string) error
	Remove(hotspotIf, upstreamIf string) []error
	Active(hotspotIf, upstreamIf string) []bool
}

// Produces reconciled status snapshots. Implemented by status.Reporter.
type StatusReporter interface {
	Report() *status.Snapshot
}

// The lifecycle orchestrator. It owns the resource ledger for the
// duration of a single start/stop/restart call; mutual exclusion across
// processes is provided by the advisory lock.
type Orchestrator struct {
	cfg      *config.Config
	link     LinkController
	ap       DaemonSupervisor
	dhcp     DaemonSupervisor
	nat      NATManager
	reporter StatusReporter
	state    State
}

// Constructs the orchestrator over the given resource controllers.
func New(cfg *config.Config, link LinkController, ap, dhcp DaemonSupervisor, nat NATManager, reporter StatusReporter) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		link:     link,
		ap:       ap,
		dhcp:     dhcp,
		nat:      nat,
		reporter: reporter,
		state:    Stopped,
	}
}

// Current lifecycle state of this invocation.
func (o *Orchestrator) State() State {
	return o.state
}

// Brings the hotspot up: regulatory domain, interface binding, AP daemon,
// DHCP daemon, NAT rules, in that order, each successful step immediately
// ledgered. Any step failure rolls back everything acquired in this
// attempt and leaves the system stopped; a failed start never leaves the
// system half-configured.
func (o *Orchestrator) Start() error {
	lock := newFileLock(o.cfg.LockPath())
	if err := lock.acquire(); err != nil {
		return err
	}
	defer lock.release()

	if o.ap.IsRunning() {
		return ErrAlreadyRunning
	}

	o.state = Starting
	lgr := ledger.New()

	if err := o.startSequence(lgr); err != nil {
		o.state = Failed
		log.WithError(err).Error("Start failed, rolling back acquired resources")
		for _, rollbackErr := range lgr.ReleaseAll() {
			log.WithError(rollbackErr).Warn("Rollback step failed")
		}
		o.state = Stopped
		return err
	}

	o.state = Running
	log.WithFields(log.Fields{
		"interface": o.cfg.Interface,
		"ssid":      o.cfg.SSID,
	}).Info("Hotspot is up")
	return nil
}

// The ordered acquisition sequence. Each step is gated on the previous
// one succeeding and is recorded in the ledger the moment it has
// succeeded, so a failure at any point can undo exactly what was done.
func (o *Orchestrator) startSequence(lgr *ledger.Ledger) error {
	if err := o.cfg.WriteFiles(); err != nil {
		return err
	}

	// Best-effort; a rejected channel surfaces later via hostapd. There
	// is nothing to undo, but the step is ledgered so the acquisition
	// order stays explicit and inspectable.
	o.link.SetRegDomain(o.cfg.Country)
	lgr.Acquire(ledger.NewHandle("regulatory-domain", func() error {
		return nil
	}))

	gatewayCIDR, err := o.cfg.GatewayCIDR()
	if err != nil {
		return err
	}
	if err := o.link.Bind(o.cfg.Interface, gatewayCIDR); err != nil {
		return err
	}
	lgr.Acquire(ledger.NewHandle("interface-binding", func() error {
		o.link.Unbind(o.cfg.Interface)
		return nil
	}))

	if err := o.ap.Start(); err != nil {
		return err
	}
	lgr.Acquire(ledger.NewHandle("ap-daemon", o.ap.Stop))

	// dnsmasq binds to the gateway address, so it must start after the
	// interface binding; it does not need to wait for hostapd.
	if err := o.dhcp.Start(); err != nil {
		return err
	}
	lgr.Acquire(ledger.NewHandle("dhcp-daemon", o.dhcp.Stop))

	if err := o.nat.Apply(o.cfg.Interface, o.cfg.Upstream); err != nil {
		return err
	}
	lgr.Acquire(ledger.NewHandle("nat-rules", func() error {
		return joinErrors(o.nat.Remove(o.cfg.Interface, o.cfg.Upstream))
	}))

	return nil
}

// Tears the hotspot down in reverse acquisition order with best-effort
// semantics: every step is attempted, failures are collected for
// reporting, and a stop on an already stopped system is a no-op success.
// The ledger is rebuilt from live state since this may run in a fresh
// process that never saw the start. The returned error is fatal (lock
// contention, nothing was torn down) and distinct from the collected
// per-step teardown errors, which are for reporting only.
func (o *Orchestrator) Stop() ([]error, error) {
	lock := newFileLock(o.cfg.LockPath())
	if err := lock.acquire(); err != nil {
		return nil, err
	}
	defer lock.release()

	o.state = Stopping
	lgr := o.rebuildLedger()
	if lgr.Len() == 0 {
		log.Info("Hotspot is not running, nothing to tear down")
	}
	errs := lgr.ReleaseAll()
	o.state = Stopped
	log.Info("Hotspot is down")
	return errs, nil
}

// Reconstructs the teardown ledger from live observation: pid files for
// the daemons, the live rule table for NAT, interface presence for the
// binding. Handles are acquired in the canonical acquisition order so
// ReleaseAll tears down in exact reverse.
func (o *Orchestrator) rebuildLedger() *ledger.Ledger {
	lgr := ledger.New()

	if o.interfaceBound() {
		lgr.Acquire(ledger.NewHandle("interface-binding", func() error {
			o.link.Unbind(o.cfg.Interface)
			return nil
		}))
	}
	if o.ap.IsRunning() || o.ap.IsStale() {
		lgr.Acquire(ledger.NewHandle("ap-daemon", o.ap.Stop))
	}
	if o.dhcp.IsRunning() || o.dhcp.IsStale() {
		lgr.Acquire(ledger.NewHandle("dhcp-daemon", o.dhcp.Stop))
	}
	// Remove skips absent rules itself, so the handle is acquired
	// whenever any of the three is present.
	if anyPresent(o.nat.Active(o.cfg.Interface, o.cfg.Upstream)) {
		lgr.Acquire(ledger.NewHandle("nat-rules", func() error {
			return joinErrors(o.nat.Remove(o.cfg.Interface, o.cfg.Upstream))
		}))
	}
	return lgr
}

// True when the hotspot interface currently carries the gateway address.
// An interface that merely exists is not ours to deconfigure: stop on an
// already stopped system must leave an untouched adapter alone. When the
// live query fails the interface is treated as bound so teardown still
// runs; Unbind converges either way.
func (o *Orchestrator) interfaceBound() bool {
	if !o.link.Exists(o.cfg.Interface) {
		return false
	}
	_, addrs, err := o.link.Query(o.cfg.Interface)
	if err != nil {
		return true
	}
	gateway, err := o.cfg.Gateway()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if addr == gateway.String() || strings.HasPrefix(addr, gateway.String()+"/") {
			return true
		}
	}
	return false
}

// Stop followed by start. Not atomic across a crash: a crash between the
// halves leaves the system stopped, the safe terminal state. The returned
// error reflects the start half, except for lock contention during the
// stop half, which aborts the restart outright.
func (o *Orchestrator) Restart() error {
	teardownErrs, err := o.Stop()
	if err != nil {
		return err
	}
	for _, teardownErr := range teardownErrs {
		log.WithError(teardownErr).Warn("Teardown error during restart")
	}
	return o.Start()
}

// Returns the reconciled live status snapshot. Read-only; takes no lock
// and never fails because resources are down.
func (o *Orchestrator) Status() *status.Snapshot {
	return o.reporter.Report()
}

// Folds a list of teardown errors into one error, nil when empty.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var texts []string
	for _, err := range errs {
		texts = append(texts, err.Error())
	}
	return errors.New(strings.Join(texts, "; "))
}

func anyPresent(present []bool) bool {
	for _, p := range present {
		if p {
			return true
		}
	}
	return false
}
