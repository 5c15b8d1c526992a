// Package wifi adapts the access point's wireless tooling (iw, ubus, hostapd_cli,
// sysfs and the DHCP leases file) to the association, telemetry and handoff
// interfaces used by the steering engine and the telemetry publisher.
package wifi
