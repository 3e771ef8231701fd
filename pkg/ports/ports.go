// Package ports allocates ephemeral TCP ports for the managed process
// pair.
package ports

import (
	"fmt"
	"net"
)

// FreePair returns two distinct, currently-unused TCP ports. Both
// listeners are held open until the ports have been recorded, which
// guarantees distinctness; the kernel may still hand either port to
// another process between release and the consumer binding it. Callers
// should treat a failed bind at startup as retryable rather than fatal.
func FreePair() (hostPort, corePort int, err error) {
	hostLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to allocate host port: %w", err)
	}
	defer hostLn.Close()

	coreLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to allocate core port: %w", err)
	}
	defer coreLn.Close()

	hostPort = hostLn.Addr().(*net.TCPAddr).Port
	corePort = coreLn.Addr().(*net.TCPAddr).Port
	return hostPort, corePort, nil
}
