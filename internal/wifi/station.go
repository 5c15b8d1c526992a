package wifi

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/wifisteer/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSysfsRoot  = "/sys"
	DefaultLeasesFile = "/tmp/dhcp.leases"

	listTimeout = 2 * time.Second
	ubusTimeout = 3 * time.Second
)

var (
	interfacePattern = regexp.MustCompile(`Interface (\S+)`)
	stationPattern   = regexp.MustCompile(`Station ([0-9A-Fa-f:]{17})`)
	signalPattern    = regexp.MustCompile(`signal:\s+(-?\d+)\s+dBm`)
	infoAddrPattern  = regexp.MustCompile(`(?i)addr:?\s+([0-9a-f:]{17})`)
	infoChanPattern  = regexp.MustCompile(`channel\s+(\d+)`)
	ipv4Pattern      = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+`)
)

// StationConfig locates the host files the Station reads.
type StationConfig struct {
	SysfsRoot  string
	LeasesFile string
}

// Station answers association questions and builds telemetry reports from iw, ubus,
// sysfs and the DHCP leases file. Every call reads live state; nothing is cached.
type Station struct {
	runner     Runner
	sysfsRoot  string
	leasesFile string

	// Concurrent callers (a steering decision and a telemetry tick) share one dump per interface.
	dumps   singleflight.Group
	breaker circuitbreaker.CircuitBreaker[any]
}

var (
	_ domain.AssociationSource = (*Station)(nil)
	_ domain.ReportSource      = (*Station)(nil)
)

func NewStation(runner Runner, cfg StationConfig) *Station {
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = DefaultSysfsRoot
	}
	if cfg.LeasesFile == "" {
		cfg.LeasesFile = DefaultLeasesFile
	}
	return &Station{
		runner:     runner,
		sysfsRoot:  cfg.SysfsRoot,
		leasesFile: cfg.LeasesFile,
		breaker:    newReportBreaker(),
	}
}

// ConnectedClients returns the lower-cased MACs associated on any local interface.
func (s *Station) ConnectedClients(ctx context.Context) ([]string, error) {
	ifaces, err := s.interfaces(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var macs []string
	for _, iface := range ifaces {
		stations, err := s.stations(ctx, iface)
		if err != nil {
			return nil, err
		}
		for _, st := range stations {
			mac := strings.ToLower(st.MAC)
			if _, ok := seen[mac]; ok {
				continue
			}
			seen[mac] = struct{}{}
			macs = append(macs, mac)
		}
	}
	return macs, nil
}

// ClientInterface returns the first interface whose station dump lists mac, or "".
func (s *Station) ClientInterface(ctx context.Context, mac string) (string, error) {
	ifaces, err := s.interfaces(ctx)
	if err != nil {
		return "", err
	}

	for _, iface := range ifaces {
		stations, err := s.stations(ctx, iface)
		if err != nil {
			return "", err
		}
		for _, st := range stations {
			if domain.SameMAC(st.MAC, mac) {
				return iface, nil
			}
		}
	}
	return "", nil
}

// InterfaceAddress reads the interface's hardware address from sysfs.
func (s *Station) InterfaceAddress(_ context.Context, iface string) (string, error) {
	if iface == "" || iface != filepath.Base(iface) {
		return "", fmt.Errorf("invalid interface name %q", iface)
	}
	data, err := os.ReadFile(filepath.Join(s.sysfsRoot, "class", "net", iface, "address"))
	if err != nil {
		return "", fmt.Errorf("failed to read address of %s: %w", iface, err)
	}
	addr := strings.TrimSpace(string(data))
	if addr == "" {
		return "", fmt.Errorf("empty address for %s", iface)
	}
	return addr, nil
}

func (s *Station) interfaces(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	out, err := s.runner.Output(ctx, "iw", "dev")
	if err != nil {
		return nil, fmt.Errorf("failed to list wireless interfaces: %w", err)
	}

	var ifaces []string
	for _, m := range interfacePattern.FindAllStringSubmatch(out, -1) {
		ifaces = append(ifaces, m[1])
	}
	return ifaces, nil
}

type stationInfo struct {
	MAC    string
	Signal *string
}

func (s *Station) stations(ctx context.Context, iface string) ([]stationInfo, error) {
	v, err, shared := s.dumps.Do(iface, func() (any, error) {
		out, err := s.runner.Output(ctx, "iw", "dev", iface, "station", "dump")
		if err != nil {
			return nil, fmt.Errorf("failed to dump stations on %s: %w", iface, err)
		}
		return parseStationDump(out), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Station dump shared", "interface", iface)
	}
	return v.([]stationInfo), nil
}

// parseStationDump splits `iw dev X station dump` output into one block per station.
func parseStationDump(out string) []stationInfo {
	locs := stationPattern.FindAllStringSubmatchIndex(out, -1)
	stations := make([]stationInfo, 0, len(locs))
	for i, loc := range locs {
		end := len(out)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		block := out[loc[0]:end]

		st := stationInfo{MAC: out[loc[2]:loc[3]]}
		if m := signalPattern.FindStringSubmatch(block); m != nil {
			signal := m[1]
			st.Signal = &signal
		}
		stations = append(stations, st)
	}
	return stations
}

// leaseIP finds the first IPv4 address following mac on a line of the leases file.
func leaseIP(leases, mac string) *string {
	needle := strings.ToLower(mac)
	for _, line := range strings.Split(leases, "\n") {
		idx := strings.Index(strings.ToLower(line), needle)
		if idx < 0 {
			continue
		}
		if ip := ipv4Pattern.FindString(line[idx+len(needle):]); ip != "" {
			return &ip
		}
	}
	return nil
}
