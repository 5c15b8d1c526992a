package wifi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/pscheid92/wifisteer/internal/domain"
)

const (
	unknownInterface = "Unknown"
	hiddenSSID       = "Hidden SSID"
	unknownMode      = "Unknown Mode"
	unknownNetwork   = "Unknown Network"
)

// wirelessStatus mirrors `ubus call network.wireless status`, keyed by radio name.
type wirelessStatus map[string]struct {
	Interfaces []struct {
		Ifname *string `json:"ifname"`
		Config struct {
			SSID    *string         `json:"ssid"`
			Mode    *string         `json:"mode"`
			Network []string        `json:"network"`
			BSSID   string          `json:"bssid"`
			Channel json.RawMessage `json:"channel"`
		} `json:"config"`
	} `json:"interfaces"`
}

// Report builds one telemetry report covering every interface ubus knows about.
// The ubus call is guarded by a circuit breaker; while it is open Report fails fast.
func (s *Station) Report(ctx context.Context) ([]domain.InterfaceReport, error) {
	if !s.breaker.TryAcquirePermit() {
		return nil, fmt.Errorf("wireless status unavailable: %w", errBreakerOpen)
	}

	status, err := s.wirelessStatus(ctx)
	if err != nil {
		s.breaker.RecordError(err)
		return nil, err
	}
	s.breaker.RecordSuccess()

	leases := s.readLeases()

	radios := make([]string, 0, len(status))
	for radio := range status {
		radios = append(radios, radio)
	}
	sort.Strings(radios)

	reports := []domain.InterfaceReport{}
	for _, radio := range radios {
		for _, iface := range status[radio].Interfaces {
			report := domain.InterfaceReport{
				Interface:       valueOr(iface.Ifname, unknownInterface),
				SSID:            valueOr(iface.Config.SSID, hiddenSSID),
				Mode:            valueOr(iface.Config.Mode, unknownMode),
				FirewallNetwork: iface.Config.Network,
			}
			if report.FirewallNetwork == nil {
				report.FirewallNetwork = []string{unknownNetwork}
			}

			bssid, channel := iface.Config.BSSID, parseChannel(iface.Config.Channel)
			if (bssid == "" || channel == 0) && iface.Ifname != nil {
				infoBSSID, infoChannel := s.interfaceInfo(ctx, *iface.Ifname)
				if bssid == "" {
					bssid = infoBSSID
				}
				if channel == 0 {
					channel = infoChannel
				}
			}
			report.BSSID = domain.FormatNeighbor(bssid, channel)
			report.ConnectedClients = s.clientReports(ctx, report.Interface, leases)

			reports = append(reports, report)
		}
	}
	return reports, nil
}

func (s *Station) wirelessStatus(ctx context.Context) (wirelessStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, ubusTimeout)
	defer cancel()

	out, err := s.runner.Output(ctx, "ubus", "call", "network.wireless", "status")
	if err != nil {
		return nil, fmt.Errorf("failed to query wireless status: %w", err)
	}

	var status wirelessStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		return nil, fmt.Errorf("failed to decode wireless status: %w", err)
	}
	return status, nil
}

// interfaceInfo reads the BSSID and channel from `iw dev X info`. Missing values are zero.
func (s *Station) interfaceInfo(ctx context.Context, iface string) (string, int) {
	out, err := s.runner.Output(ctx, "iw", "dev", iface, "info")
	if err != nil {
		slog.Debug("Interface info unavailable", "interface", iface, "error", err)
		return "", 0
	}

	var bssid string
	if m := infoAddrPattern.FindStringSubmatch(out); m != nil {
		bssid = m[1]
	}
	var channel int
	if m := infoChanPattern.FindStringSubmatch(out); m != nil {
		channel, _ = strconv.Atoi(m[1])
	}
	return bssid, channel
}

func (s *Station) clientReports(ctx context.Context, iface, leases string) []domain.ClientReport {
	clients := []domain.ClientReport{}
	stations, err := s.stations(ctx, iface)
	if err != nil {
		slog.Debug("Station dump unavailable", "interface", iface, "error", err)
		return clients
	}
	for _, st := range stations {
		clients = append(clients, domain.ClientReport{
			MAC:            st.MAC,
			SignalStrength: st.Signal,
			IPAddress:      leaseIP(leases, st.MAC),
		})
	}
	return clients
}

func (s *Station) readLeases() string {
	data, err := os.ReadFile(s.leasesFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("DHCP leases unreadable", "path", s.leasesFile, "error", err)
		}
		return ""
	}
	return string(data)
}

// parseChannel accepts a number or a numeric string; anything else ("auto") yields 0.
func parseChannel(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, _ = strconv.Atoi(s)
	}
	return n
}

func valueOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
