package domain

import (
	"context"
	"fmt"
	"strings"
)

// NudgeCommandType tags a steering command sent by a dashboard.
const NudgeCommandType = "nudge"

// SteeringCommand asks the agent to move Client to the access point named by Neighbor.
type SteeringCommand struct {
	Type     string `json:"type"`
	Client   string `json:"client"`
	Neighbor string `json:"neighbor"`
}

// Neighbor is a neighbor report descriptor: BSSID,bssidInfo,operatingClass,channel,phyType.
// Only the leading BSSID is interpreted; the remaining fields are passed through unmodified.
type Neighbor string

// ParseNeighbor validates that s carries a non-empty leading BSSID field.
func ParseNeighbor(s string) (Neighbor, error) {
	n := Neighbor(strings.TrimSpace(s))
	if n.BSSID() == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidNeighbor, s)
	}
	return n, nil
}

// BSSID returns the leading field, lower-cased for comparison.
func (n Neighbor) BSSID() string {
	first, _, _ := strings.Cut(string(n), ",")
	return strings.ToLower(strings.TrimSpace(first))
}

func (n Neighbor) String() string { return string(n) }

// FormatNeighbor builds the descriptor an access point advertises for its own radio.
// Returns "" when either bssid or channel is unknown.
func FormatNeighbor(bssid string, channel int) Neighbor {
	if bssid == "" || channel <= 0 {
		return ""
	}
	opClass := 81
	if channel >= 36 {
		opClass = 115
	}
	phyType := 6
	if channel > 14 {
		phyType = 7
	}
	return Neighbor(fmt.Sprintf("%s,0x0000,%d,%d,%d", bssid, opClass, channel, phyType))
}

// SameMAC compares two MAC addresses case-insensitively.
func SameMAC(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ConnectedClient is a live association of a client to a local interface.
type ConnectedClient struct {
	MAC       string
	Interface string
}

// TransitionRequest carries the parameters of a BSS transition-management request.
type TransitionRequest struct {
	Client           string
	Interface        string
	Neighbor         Neighbor
	DisassocImminent bool
	DisassocTimer    int
	Prefer           bool
	Mode             int
}

// AssociationSource answers association questions at decision time. Nothing is cached by callers.
type AssociationSource interface {
	// ConnectedClients returns the MACs of all clients associated on any local interface.
	ConnectedClients(ctx context.Context) ([]string, error)
	// ClientInterface returns the interface serving mac, or "" if none does.
	ClientInterface(ctx context.Context, mac string) (string, error)
	// InterfaceAddress returns the MAC address (BSSID) of a local interface.
	InterfaceAddress(ctx context.Context, iface string) (string, error)
}

// HandoffExecutor performs the low-level transition request and returns its raw textual output.
type HandoffExecutor interface {
	Transition(ctx context.Context, req TransitionRequest) (string, error)
}
