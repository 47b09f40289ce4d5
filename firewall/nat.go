// Package firewall installs and removes the NAT and forwarding rules that
// connect the hotspot network to the upstream interface. This is the
// component most exposed to external drift (another tool or a reboot may
// have flushed the rules), so every query runs against the live firewall
// table; nothing is cached.
package firewall

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	hotspotutil "github.com/hotspotctl/hotspot/util"
)

// A single firewall rule, keyed by the exact tuple iptables matches on.
// The same tuple drives insertion (-A), existence checks (-C) and
// deletion (-D).
type Rule struct {
	// iptables table; empty means the default filter table.
	Table string
	// Chain the rule lives in.
	Chain string
	// Match and target arguments, exactly as passed to iptables.
	Spec []string
}

// Human-readable rule description for logs and error reports.
func (r Rule) String() string {
	table := r.Table
	if table == "" {
		table = "filter"
	}
	return fmt.Sprintf("%s/%s %s", table, r.Chain, strings.Join(r.Spec, " "))
}

// Reported when a single rule operation fails during teardown. Collected
// and printed, never thrown: one stuck rule must not stop the removal of
// the remaining ones.
type RuleError struct {
	Rule Rule
	Err  error
}

// Returns the error text.
func (e *RuleError) Error() string {
	return fmt.Sprintf("firewall rule [%s]: %v", e.Rule, e.Err)
}

// Unwraps the underlying error.
func (e *RuleError) Unwrap() error {
	return e.Err
}

// The exact three rules the hotspot needs: masquerade outbound traffic on
// the upstream interface, forward hotspot traffic out, and let the
// established/related return traffic back in.
func Rules(hotspotIf, upstreamIf string) []Rule {
	return []Rule{
		{
			Table: "nat",
			Chain: "POSTROUTING",
			Spec:  []string{"-o", upstreamIf, "-j", "MASQUERADE"},
		},
		{
			Chain: "FORWARD",
			Spec:  []string{"-i", hotspotIf, "-o", upstreamIf, "-j", "ACCEPT"},
		},
		{
			Chain: "FORWARD",
			Spec: []string{
				"-i", upstreamIf, "-o", hotspotIf,
				"-m", "state", "--state", "ESTABLISHED,RELATED",
				"-j", "ACCEPT",
			},
		},
	}
}

// Manages the hotspot's NAT rule set via the iptables command.
type Manager struct {
	executor hotspotutil.CommandExecutor
}

// Constructs the NAT manager using the given command executor.
func NewManager(executor hotspotutil.CommandExecutor) *Manager {
	return &Manager{executor: executor}
}

// Installs the three rules and enables IPv4 forwarding. Idempotent under
// re-application: each rule is checked with -C first and skipped when
// already present, since duplicate rules multiply NAT entries and are
// never harmless.
func (m *Manager) Apply(hotspotIf, upstreamIf string) error {
	if output, err := m.executor.Output("sysctl", "-w", "net.ipv4.ip_forward=1"); err != nil {
		return errors.Wrapf(err, "cannot enable IPv4 forwarding: %s",
			strings.TrimSpace(string(output)))
	}
	for _, rule := range Rules(hotspotIf, upstreamIf) {
		if m.exists(rule) {
			log.Infof("Firewall rule already present, skipping: %s", rule)
			continue
		}
		if output, err := m.executor.Output("iptables", ruleArgs("-A", rule)...); err != nil {
			return errors.Wrapf(err, "cannot insert firewall rule [%s]: %s",
				rule, strings.TrimSpace(string(output)))
		}
		log.Infof("Inserted firewall rule: %s", rule)
	}
	return nil
}

// Deletes each of the three rules if present. Deletion of an absent rule
// is not an error. Failures are collected as RuleError values and
// returned for reporting; teardown always attempts every rule.
func (m *Manager) Remove(hotspotIf, upstreamIf string) []error {
	var failures []error
	for _, rule := range Rules(hotspotIf, upstreamIf) {
		if !m.exists(rule) {
			continue
		}
		if output, err := m.executor.Output("iptables", ruleArgs("-D", rule)...); err != nil {
			failures = append(failures, &RuleError{
				Rule: rule,
				Err: errors.Wrapf(err, "deletion failed: %s",
					strings.TrimSpace(string(output))),
			})
			continue
		}
		log.Infof("Removed firewall rule: %s", rule)
	}
	return failures
}

// Live presence check of every rule, in rule order. True means present.
func (m *Manager) Active(hotspotIf, upstreamIf string) []bool {
	rules := Rules(hotspotIf, upstreamIf)
	present := make([]bool, len(rules))
	for i, rule := range rules {
		present[i] = m.exists(rule)
	}
	return present
}

// True when all three rules are present in the live table.
func (m *Manager) AllActive(hotspotIf, upstreamIf string) bool {
	for _, present := range m.Active(hotspotIf, upstreamIf) {
		if !present {
			return false
		}
	}
	return true
}

// Live existence check of a single rule. iptables -C exits non-zero when
// the rule is absent; any other failure (missing binary, no privileges)
// also reads as absent but is logged.
func (m *Manager) exists(rule Rule) bool {
	err := m.executor.Run("iptables", ruleArgs("-C", rule)...)
	if err == nil {
		return true
	}
	if !hotspotutil.IsExitError(err) {
		log.WithError(err).Warnf("Cannot check firewall rule [%s]", rule)
	}
	return false
}

// Builds the iptables argument vector for the given operation and rule.
func ruleArgs(op string, rule Rule) []string {
	var args []string
	if rule.Table != "" {
		args = append(args, "-t", rule.Table)
	}
	args = append(args, op, rule.Chain)
	args = append(args, rule.Spec...)
	return args
}
