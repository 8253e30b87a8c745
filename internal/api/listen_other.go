//go:build !linux && !windows

package api

import "net"

// reuseAddrListenConfig returns a default net.ListenConfig on platforms
// where the socket option is not set explicitly.
func reuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
