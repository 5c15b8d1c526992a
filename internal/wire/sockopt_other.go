//go:build !unix

package wire

import "syscall"

func enableBroadcast(_, _ string, _ syscall.RawConn) error {
	return nil
}
