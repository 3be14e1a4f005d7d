//go:build !linux
// +build !linux

package dbus

import "net"

// peerCredentials is unimplemented on this platform and always reports no
// credentials, so serverAuthExternal does not offer EXTERNAL and rejects
// any EXTERNAL attempt.
func peerCredentials(conn *net.UnixConn) (ok bool, uid uint32) {
	return false, 0
}
