package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	hotspot "github.com/hotspotctl/hotspot"
	"github.com/hotspotctl/hotspot/config"
	"github.com/hotspotctl/hotspot/daemon"
	"github.com/hotspotctl/hotspot/firewall"
	"github.com/hotspotctl/hotspot/netif"
	"github.com/hotspotctl/hotspot/orchestrator"
	"github.com/hotspotctl/hotspot/status"
	hotspotutil "github.com/hotspotctl/hotspot/util"
)

// Builds the configuration from CLI flags and environment variables.
// Credentials are validated only when the command is going to bring the
// hotspot up; stop and status work without them.
func getConfig(c *cli.Context, needCredentials bool) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	cfg.Interface = c.String("interface")
	cfg.Upstream = c.String("upstream")
	cfg.SSID = c.String("ssid")
	cfg.Passphrase = c.String("passphrase")
	cfg.Channel = c.Int("channel")
	cfg.Subnet = c.String("subnet")
	cfg.Country = c.String("country")
	cfg.MaxStations = c.Int("max-stations")
	cfg.LeaseTime = c.String("lease-time")
	cfg.RuntimeDir = c.String("runtime-dir")
	cfg.StartAttempts = c.Int("start-attempts")
	cfg.PollInterval = c.Duration("poll-interval")

	var err error
	if needCredentials {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateRuntime()
	}
	return cfg, err
}

// Wires the resource controllers together into the orchestrator.
func buildOrchestrator(cfg *config.Config) *orchestrator.Orchestrator {
	executor := hotspotutil.NewSystemCommandExecutor()
	link := netif.NewController(executor)
	ap := daemon.NewSupervisor(daemon.HostapdDefinition(cfg), executor, cfg)
	dhcp := daemon.NewSupervisor(daemon.DnsmasqDefinition(cfg), executor, cfg)
	nat := firewall.NewManager(executor)
	reporter := status.NewReporter(cfg, link, ap, dhcp, nat)
	return orchestrator.New(cfg, link, ap, dhcp, nat, reporter)
}

// Execute the start command. Exits non-zero with a printed reason when
// the hotspot cannot reach the running state.
func runStart(c *cli.Context) error {
	cfg, err := getConfig(c, true)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid configuration: %s", err), 1)
	}
	if err := buildOrchestrator(cfg).Start(); err != nil {
		return cli.Exit(fmt.Sprintf("Cannot start hotspot: %s", err), 1)
	}
	return nil
}

// Execute the stop command. Teardown is best-effort: non-fatal errors are
// printed but the command still exits zero, so defensive re-runs by
// operators always succeed. Lock contention is the exception: nothing was
// torn down, so it fails fast and non-zero.
func runStop(c *cli.Context) error {
	cfg, err := getConfig(c, false)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid configuration: %s", err), 1)
	}
	teardownErrs, err := buildOrchestrator(cfg).Stop()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Cannot stop hotspot: %s", err), 1)
	}
	for _, teardownErr := range teardownErrs {
		log.WithError(teardownErr).Warn("Teardown error")
	}
	return nil
}

// Execute the restart command. The exit code reflects the start half.
func runRestart(c *cli.Context) error {
	cfg, err := getConfig(c, true)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid configuration: %s", err), 1)
	}
	if err := buildOrchestrator(cfg).Restart(); err != nil {
		return cli.Exit(fmt.Sprintf("Cannot restart hotspot: %s", err), 1)
	}
	return nil
}

// Execute the status command. Always exits zero; a hotspot that is down
// is a valid, reportable state.
func runStatus(c *cli.Context) error {
	cfg, err := getConfig(c, false)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Invalid configuration: %s", err), 1)
	}
	snapshot := buildOrchestrator(cfg).Status()
	snapshot.Write(os.Stdout)
	return nil
}

// Prepare the urfave/cli application.
func setupApp() *cli.App {
	interfaceFlags := []cli.Flag{
		&cli.StringFlag{
			Name:     "interface",
			Usage:    "Wireless interface the hotspot runs on",
			Required: true,
			Aliases:  []string{"i"},
			EnvVars:  []string{"HOTSPOT_INTERFACE"},
		},
		&cli.StringFlag{
			Name:     "upstream",
			Usage:    "Upstream interface providing internet connectivity",
			Required: true,
			Aliases:  []string{"u"},
			EnvVars:  []string{"HOTSPOT_UPSTREAM"},
		},
		&cli.StringFlag{
			Name:    "subnet",
			Usage:   "First three octets of the hotspot /24 network",
			Value:   "192.168.12",
			EnvVars: []string{"HOTSPOT_SUBNET"},
		},
		&cli.StringFlag{
			Name:    "runtime-dir",
			Usage:   "Directory for daemon configs, pid files and the lock file",
			Value:   config.DefaultRuntimeDir,
			EnvVars: []string{"HOTSPOT_RUNTIME_DIR"},
		},
	}

	startFlags := append([]cli.Flag{}, interfaceFlags...)
	startFlags = append(startFlags,
		&cli.StringFlag{
			Name:     "ssid",
			Usage:    "Network name broadcast by the access point",
			Required: true,
			EnvVars:  []string{"HOTSPOT_SSID"},
		},
		&cli.StringFlag{
			Name:     "passphrase",
			Usage:    "WPA2 passphrase (8..63 printable ASCII characters)",
			Required: true,
			EnvVars:  []string{"HOTSPOT_PASSPHRASE"},
		},
		&cli.IntFlag{
			Name:    "channel",
			Usage:   "Wireless channel in the 2.4 GHz band",
			Value:   6,
			EnvVars: []string{"HOTSPOT_CHANNEL"},
		},
		&cli.StringFlag{
			Name:    "country",
			Usage:   "ISO-3166 alpha-2 regulatory domain",
			Value:   "US",
			EnvVars: []string{"HOTSPOT_COUNTRY"},
		},
		&cli.IntFlag{
			Name:    "max-stations",
			Usage:   "Maximum number of associated stations",
			Value:   16,
			EnvVars: []string{"HOTSPOT_MAX_STATIONS"},
		},
		&cli.StringFlag{
			Name:    "lease-time",
			Usage:   "DHCP lease lifetime in dnsmasq notation",
			Value:   "12h",
			EnvVars: []string{"HOTSPOT_LEASE_TIME"},
		},
		&cli.IntFlag{
			Name:    "start-attempts",
			Usage:   "Daemon startup liveness poll budget; raise on slow USB hardware",
			Value:   10,
			EnvVars: []string{"HOTSPOT_START_ATTEMPTS"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Delay between daemon startup liveness polls",
			Value:   500 * time.Millisecond,
			EnvVars: []string{"HOTSPOT_POLL_INTERVAL"},
		},
	)

	cli.HelpFlag = &cli.BoolFlag{
		Name:    "help",
		Aliases: []string{"h"},
		Usage:   "Show help",
	}

	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print the version",
	}

	app := &cli.App{
		Name:  "Hotspot Control",
		Usage: "Manages a USB WiFi adapter as a local access point.",
		Description: `The tool turns a single-purpose USB WiFi adapter into a managed hotspot:

   - it brings up the wireless interface with the gateway address;
   - it runs hostapd for authentication and beaconing;
   - it runs dnsmasq for DHCP and DNS;
   - it installs NAT forwarding towards the upstream interface;

   and tears all of this down cleanly on request.`,
		Version:  hotspot.Version,
		HelpName: "hotspotctl",
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Bring the hotspot up",
				UsageText: "hotspotctl start -i wlan-iface -u eth-iface --ssid name --passphrase secret",
				Flags:     startFlags,
				Action:    runStart,
			},
			{
				Name:      "stop",
				Usage:     "Tear the hotspot down (best-effort, always succeeds)",
				UsageText: "hotspotctl stop -i wlan-iface -u eth-iface",
				Flags:     interfaceFlags,
				Action:    runStop,
			},
			{
				Name:      "restart",
				Usage:     "Tear the hotspot down and bring it up again",
				UsageText: "hotspotctl restart -i wlan-iface -u eth-iface --ssid name --passphrase secret",
				Flags:     startFlags,
				Action:    runRestart,
			},
			{
				Name:      "status",
				Usage:     "Print the reconciled live status of all hotspot subsystems",
				UsageText: "hotspotctl status -i wlan-iface -u eth-iface",
				Flags:     interfaceFlags,
				Action:    runStatus,
			},
		},
	}

	return app
}

func main() {
	// Setup logging
	hotspotutil.SetupLogging()

	app := setupApp()
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
