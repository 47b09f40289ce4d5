package daemon

import (
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/hotspotctl/hotspot/config"
	"github.com/hotspotctl/hotspot/testutil"
	hotspotutil "github.com/hotspotctl/hotspot/util"
)

// Command executor simulating a daemon that detaches and writes its own
// pid file, the way hostapd -B -P and dnsmasq -x do.
type fakeExecutor struct {
	// Pid file written when the launch command runs; empty disables the
	// write to simulate a daemon that dies during startup.
	pidFile string
	pid     int32
	// Binaries reported as present in PATH.
	missingBinary bool
	launched      int
}

func (e *fakeExecutor) Output(command string, args ...string) ([]byte, error) {
	e.launched++
	if e.pidFile != "" {
		if err := hotspotutil.WritePidFile(e.pidFile, e.pid); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (e *fakeExecutor) Run(command string, args ...string) error {
	_, err := e.Output(command, args...)
	return err
}

func (e *fakeExecutor) LookPath(command string) (string, error) {
	if e.missingBinary {
		return "", errors.Errorf("%s not found", command)
	}
	return "/usr/sbin/" + command, nil
}

func (e *fakeExecutor) IsFileExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Builds a test configuration with a tight poll loop and a supervisor
// over the fake executor, probing against the given live process table.
func newTestSupervisor(t *testing.T, sb *testutil.Sandbox, executor *fakeExecutor, live map[int32]string) *Supervisor {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.RuntimeDir = sb.BasePath
	cfg.StartAttempts = 3
	cfg.PollInterval = time.Millisecond

	supervisor := NewSupervisor(HostapdDefinition(cfg), executor, cfg)
	supervisor.probe = func(pid int32) (string, error) {
		if name, ok := live[pid]; ok {
			return name, nil
		}
		return "", errors.Errorf("no live process with pid %d", pid)
	}
	return supervisor
}

// Test a daemon that comes up and writes its pid file.
func TestStart(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	executor := &fakeExecutor{pid: 4242}
	supervisor := newTestSupervisor(t, sb, executor, map[int32]string{4242: "hostapd"})
	executor.pidFile = supervisor.PidFile()

	require.NoError(t, supervisor.Start())
	require.Equal(t, 1, executor.launched)
	require.True(t, supervisor.IsRunning())
	require.False(t, supervisor.IsStale())
}

// Test that a daemon which never writes a live pid exhausts the attempt
// budget and fails with the typed start error.
func TestStartFailure(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	executor := &fakeExecutor{}
	supervisor := newTestSupervisor(t, sb, executor, nil)

	err := supervisor.Start()
	require.Error(t, err)
	var startErr *StartFailedError
	require.ErrorAs(t, err, &startErr)
	require.Equal(t, "hostapd", startErr.Daemon)
}

// Test that a missing daemon binary fails before anything is launched.
func TestStartBinaryMissing(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	executor := &fakeExecutor{missingBinary: true}
	supervisor := newTestSupervisor(t, sb, executor, nil)

	err := supervisor.Start()
	require.ErrorContains(t, err, "not found in PATH")
	require.Zero(t, executor.launched)
}

// Test that a stale pid file with no matching live process reads as
// not-running. The double-check matters after a daemon crash.
func TestIsRunningStalePidFile(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	executor := &fakeExecutor{}
	supervisor := newTestSupervisor(t, sb, executor, nil)
	require.NoError(t, hotspotutil.WritePidFile(supervisor.PidFile(), 4242))

	require.False(t, supervisor.IsRunning())
	require.True(t, supervisor.IsStale())
}

// Test that a recycled pid now running some other binary reads as
// not-running.
func TestIsRunningRecycledPid(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	executor := &fakeExecutor{}
	supervisor := newTestSupervisor(t, sb, executor, map[int32]string{4242: "bash"})
	require.NoError(t, hotspotutil.WritePidFile(supervisor.PidFile(), 4242))

	require.False(t, supervisor.IsRunning())
	require.True(t, supervisor.IsStale())
}

// Test a graceful stop: SIGTERM the recorded pid, observe the exit, and
// remove the pid file.
func TestStop(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	executor := &fakeExecutor{}
	live := map[int32]string{4242: "hostapd"}
	supervisor := newTestSupervisor(t, sb, executor, live)
	require.NoError(t, hotspotutil.WritePidFile(supervisor.PidFile(), 4242))

	var killedPid int32
	supervisor.kill = func(pid int32, sig unix.Signal) error {
		require.Equal(t, unix.SIGTERM, sig)
		killedPid = pid
		delete(live, pid)
		return nil
	}

	require.NoError(t, supervisor.Stop())
	require.EqualValues(t, 4242, killedPid)
	require.NoFileExists(t, supervisor.PidFile())
}

// Test that stopping without a pid file is a no-op success and that a
// stale pid file is removed so it cannot block a later start.
func TestStopStale(t *testing.T) {
	sb := testutil.NewSandbox()
	defer sb.Close()

	executor := &fakeExecutor{}
	supervisor := newTestSupervisor(t, sb, executor, nil)

	// No pid file at all.
	require.NoError(t, supervisor.Stop())

	// Stale pid file naming a dead process.
	require.NoError(t, hotspotutil.WritePidFile(supervisor.PidFile(), 4242))
	require.NoError(t, supervisor.Stop())
	require.NoFileExists(t, supervisor.PidFile())
}

// Test the daemon definitions' launch vectors.
func TestDefinitions(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.RuntimeDir = "/tmp/hs-test"

	hostapd := HostapdDefinition(cfg)
	require.Equal(t, "hostapd", hostapd.Name)
	require.Equal(t, []string{"-B", "-P", "/tmp/hs-test/hostapd.pid", "/tmp/hs-test/hostapd.conf"}, hostapd.Args)

	dnsmasq := DnsmasqDefinition(cfg)
	require.Equal(t, "dnsmasq", dnsmasq.Name)
	require.Equal(t, []string{"-C", "/tmp/hs-test/dnsmasq.conf", "-x", "/tmp/hs-test/dnsmasq.pid"}, dnsmasq.Args)
}
