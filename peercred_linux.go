//go:build linux
// +build linux

package dbus

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials reads the connecting peer's uid via SO_PEERCRED, used by
// the server-side EXTERNAL mechanism to verify a claimed uid.
func peerCredentials(conn *net.UnixConn) (ok bool, uid uint32) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return false, 0
	}
	_ = raw.Control(func(fd uintptr) {
		cred, cerr := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if cerr == nil {
			ok = true
			uid = cred.Uid
		}
	})
	return ok, uid
}
