// Package steering decides and executes client steering commands on an access point.
//
// Each /nudge command is resolved against live association data: unknown clients and
// clients without a resolvable interface are reported, clients already on the requested
// BSSID are short-circuited, and everything else becomes a BSS transition-management
// request. The outcome is always sent on /nudge-response so every dashboard sees it.
//
// Commands are decided strictly one at a time on the Serve goroutine.
package steering
