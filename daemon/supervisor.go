// Package daemon supervises the two long-running external daemons the
// hotspot depends on: hostapd (authentication and beaconing) and dnsmasq
// (DHCP and DNS). Both are launched detached and tracked only via pid
// files plus live process probes; the orchestrator never blocks on their
// internal behavior.
package daemon

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/hotspotctl/hotspot/config"
	hotspotutil "github.com/hotspotctl/hotspot/util"
)

// Reported when a daemon did not come up within the bounded attempt
// budget. Terminal for the start sequence and triggers full rollback.
type StartFailedError struct {
	Daemon string
}

// Returns the error text.
func (e *StartFailedError) Error() string {
	return fmt.Sprintf("%s daemon failed to start within the attempt budget", e.Daemon)
}

// Static description of a supervised daemon: how to launch it and where
// it records its process identifier.
type Definition struct {
	// Daemon name used in logs and error reports.
	Name string
	// Binary looked up in PATH.
	Binary string
	// Full argument vector for a detached start.
	Args []string
	// Path of the pid file the daemon writes after detaching.
	PidFile string
}

// Describes hostapd: -B detaches after interface setup, -P makes it
// write its own pid file.
func HostapdDefinition(cfg *config.Config) Definition {
	return Definition{
		Name:    "hostapd",
		Binary:  "hostapd",
		Args:    []string{"-B", "-P", cfg.HostapdPidPath(), cfg.HostapdConfPath()},
		PidFile: cfg.HostapdPidPath(),
	}
}

// Describes dnsmasq: it daemonizes by default, -x makes it write its own
// pid file.
func DnsmasqDefinition(cfg *config.Config) Definition {
	return Definition{
		Name:    "dnsmasq",
		Binary:  "dnsmasq",
		Args:    []string{"-C", cfg.DnsmasqConfPath(), "-x", cfg.DnsmasqPidPath()},
		PidFile: cfg.DnsmasqPidPath(),
	}
}

// Launches and tracks one supervised daemon. The probe and kill hooks
// default to live system calls and are replaced in unit tests.
type Supervisor struct {
	definition Definition
	executor   hotspotutil.CommandExecutor
	attempts   int
	interval   time.Duration

	// Returns the name of the live process with the given pid, or an
	// error when no such process exists.
	probe func(pid int32) (string, error)
	// Sends a signal to a process.
	kill func(pid int32, sig unix.Signal) error
	// Removes the pid file.
	removePidFile func(path string) error
}

// Constructs a supervisor for the given daemon definition. The attempt
// budget and poll interval come from the configuration since the right
// values depend on how slow the wireless hardware is.
func NewSupervisor(definition Definition, executor hotspotutil.CommandExecutor, cfg *config.Config) *Supervisor {
	return &Supervisor{
		definition: definition,
		executor:   executor,
		attempts:   cfg.StartAttempts,
		interval:   cfg.PollInterval,
		probe:      liveProcessName,
		kill: func(pid int32, sig unix.Signal) error {
			return unix.Kill(int(pid), sig)
		},
		removePidFile: removeFile,
	}
}

// Daemon name for logs and status output.
func (s *Supervisor) Name() string {
	return s.definition.Name
}

// Path of the tracked pid file.
func (s *Supervisor) PidFile() string {
	return s.definition.PidFile
}

// Launches the daemon detached and polls until its pid file names a live
// process or the attempt budget is exhausted. On exhaustion the caller
// must trigger rollback via the resource ledger.
func (s *Supervisor) Start() error {
	if _, err := s.executor.LookPath(s.definition.Binary); err != nil {
		return errors.Wrapf(err, "%s binary not found in PATH", s.definition.Binary)
	}
	output, err := s.executor.Output(s.definition.Binary, s.definition.Args...)
	if err != nil {
		return errors.Wrapf(err, "cannot launch %s: %s",
			s.definition.Name, strings.TrimSpace(string(output)))
	}
	for attempt := 0; attempt < s.attempts; attempt++ {
		if s.IsRunning() {
			pid, _ := hotspotutil.ReadPidFile(s.definition.PidFile)
			log.WithFields(log.Fields{
				"daemon": s.definition.Name,
				"pid":    pid,
			}).Info("Daemon is up")
			return nil
		}
		time.Sleep(s.interval)
	}
	return &StartFailedError{Daemon: s.definition.Name}
}

// Sends a graceful termination signal to the recorded process, waits
// briefly for it to exit, and removes the pid file regardless of whether
// the process had already exited. A stale pid file must never block a
// later start.
func (s *Supervisor) Stop() error {
	defer func() {
		if err := s.removePidFile(s.definition.PidFile); err != nil {
			log.WithError(err).Warnf("Cannot remove %s pid file", s.definition.Name)
		}
	}()

	pid, err := hotspotutil.ReadPidFile(s.definition.PidFile)
	if err != nil {
		log.WithField("daemon", s.definition.Name).
			Info("No usable pid file, daemon treated as already stopped")
		return nil
	}
	if _, err := s.probe(pid); err != nil {
		log.WithFields(log.Fields{
			"daemon": s.definition.Name,
			"pid":    pid,
		}).Info("Recorded process already gone")
		return nil
	}
	if err := s.kill(pid, unix.SIGTERM); err != nil {
		return errors.Wrapf(err, "cannot terminate %s (pid %d)", s.definition.Name, pid)
	}
	for attempt := 0; attempt < s.attempts; attempt++ {
		if _, err := s.probe(pid); err != nil {
			log.WithFields(log.Fields{
				"daemon": s.definition.Name,
				"pid":    pid,
			}).Info("Daemon stopped")
			return nil
		}
		time.Sleep(s.interval)
	}
	log.WithFields(log.Fields{
		"daemon": s.definition.Name,
		"pid":    pid,
	}).Warn("Daemon did not exit after SIGTERM; leaving it to the operator")
	return nil
}

// True iff the pid file names a process that is both alive and running
// the expected binary. The double-check matters: a stale pid file left
// by a crash must read as not-running.
func (s *Supervisor) IsRunning() bool {
	pid, err := hotspotutil.ReadPidFile(s.definition.PidFile)
	if err != nil {
		return false
	}
	name, err := s.probe(pid)
	if err != nil {
		return false
	}
	return strings.Contains(name, s.definition.Binary)
}

// True when a pid file exists but no matching live process does. The
// status reporter surfaces this as drift between recorded and live state.
func (s *Supervisor) IsStale() bool {
	pid, err := hotspotutil.ReadPidFile(s.definition.PidFile)
	if err != nil {
		return false
	}
	name, err := s.probe(pid)
	if err != nil {
		return true
	}
	return !strings.Contains(name, s.definition.Binary)
}

// Removes a pid file; a file that is already gone is fine.
func removeFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "cannot remove %s", path)
	}
	return nil
}

// Default probe resolving a pid to the live process name via gopsutil.
func liveProcessName(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", errors.Wrapf(err, "no live process with pid %d", pid)
	}
	name, err := proc.Name()
	return name, errors.Wrapf(err, "cannot get name of process %d", pid)
}
