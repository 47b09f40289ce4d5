package status

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Reported when the lease table cannot be read. The status report
// degrades to "(none)" instead of failing; an absent table is normal on
// a stopped hotspot.
var ErrLeaseTableUnavailable = errors.New("lease table unavailable")

// Read-only view of one entry in the DHCP daemon's lease table.
type ClientLease struct {
	// Lease expiry time.
	Expires time.Time
	// Client hardware address.
	MAC string
	// Assigned address.
	IP string
	// Hostname reported by the client; "*" when the client sent none.
	Hostname string
}

// Reads the dnsmasq lease table. Each line carries the expiry epoch, the
// MAC, the assigned address, the hostname and the client identifier,
// space-separated. Corrupt lines are skipped with a warning rather than
// failing the whole read; the table is written concurrently by dnsmasq
// and a torn line is possible.
func ReadLeases(path string) ([]ClientLease, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrLeaseTableUnavailable, "cannot open %s: %v", path, err)
	}
	defer file.Close()

	var leases []ClientLease
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			log.Warnf("Skipping malformed lease line: %q", line)
			continue
		}
		epoch, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			log.Warnf("Skipping lease line with bad expiry: %q", line)
			continue
		}
		leases = append(leases, ClientLease{
			Expires:  time.Unix(epoch, 0),
			MAC:      fields[1],
			IP:       fields[2],
			Hostname: fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(ErrLeaseTableUnavailable, "cannot read %s: %v", path, err)
	}
	return leases, nil
}
