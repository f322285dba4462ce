package relayserver

import (
	"net"
	"time"
)

const (
	// sendRecvBuffer mirrors the original server's 2 MiB socket buffer
	// sizing for FileTransferServer's child channel options.
	sendRecvBuffer = 2 * 1024 * 1024
)

// configureSocket applies the per-connection socket options the original
// server's FileTransferServer sets on every accepted child channel:
// keep-alive, no-delay, and generous send/receive buffers for bulk file
// transfer. Go's net package exposes all of these directly on
// *net.TCPConn; unlike the Netty original, there is no portable stdlib
// way to set the listen backlog itself, so Config.Backlog is carried for
// parity but not enforced anywhere.
func configureSocket(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.SetKeepAlive(true)
	_ = tc.SetKeepAlivePeriod(30 * time.Second)
	_ = tc.SetNoDelay(true)
	_ = tc.SetReadBuffer(sendRecvBuffer)
	_ = tc.SetWriteBuffer(sendRecvBuffer)
}
