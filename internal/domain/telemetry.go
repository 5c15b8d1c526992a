package domain

import "context"

// ClientReport describes one associated station in a telemetry report.
type ClientReport struct {
	MAC            string  `json:"mac"`
	SignalStrength *string `json:"signal_strength"`
	IPAddress      *string `json:"ip_address"`
}

// InterfaceReport describes one wireless interface in a telemetry report.
type InterfaceReport struct {
	Interface        string         `json:"interface"`
	SSID             string         `json:"ssid"`
	Mode             string         `json:"mode"`
	FirewallNetwork  []string       `json:"firewall_network"`
	BSSID            Neighbor       `json:"bssid"`
	ConnectedClients []ClientReport `json:"connected_clients"`
}

// ReportSource produces periodic telemetry reports.
type ReportSource interface {
	Report(ctx context.Context) ([]InterfaceReport, error)
}
