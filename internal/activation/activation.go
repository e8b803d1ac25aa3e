// Package activation picks up listening sockets passed by systemd socket
// activation, so the management server can be started on demand.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Systemd passes file descriptors starting at fd 3
// (0=stdin, 1=stdout, 2=stderr)
const firstFD = 3

// Listeners returns the systemd-activated listeners, or nil when the process
// was not socket activated. The activation variables are unset so child
// processes (git) don't inherit them.
func Listeners() ([]net.Listener, error) {
	sockets, err := parseEnv(os.Getenv, os.Getpid())
	if err != nil || len(sockets) == 0 {
		return nil, err
	}

	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	listeners := make([]net.Listener, 0, len(sockets))
	for i, name := range sockets {
		fd := firstFD + i
		file := os.NewFile(uintptr(fd), name)
		if file == nil {
			closeAll(listeners)
			return nil, fmt.Errorf("failed to create file for fd %d", fd)
		}

		listener, err := net.FileListener(file)
		// the listener holds its own duplicate of the descriptor
		_ = file.Close()
		if err != nil {
			closeAll(listeners)
			return nil, fmt.Errorf("failed to create listener from fd %d (%s): %w", fd, name, err)
		}
		listeners = append(listeners, listener)
	}

	return listeners, nil
}

// parseEnv returns one name per activated socket. Unnamed sockets are called
// "systemd-socket-<n>".
func parseEnv(getenv func(string) string, pid int) ([]string, error) {
	pidStr := getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}
	listenPID, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if listenPID != pid {
		// Socket activation is for a different process
		return nil, nil
	}

	fdsStr := getenv("LISTEN_FDS")
	if fdsStr == "" {
		return nil, nil
	}
	numFDs, err := strconv.Atoi(fdsStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if numFDs < 1 {
		return nil, nil
	}

	var given []string
	if raw := getenv("LISTEN_FDNAMES"); raw != "" {
		given = strings.Split(raw, ":")
	}

	names := make([]string, numFDs)
	for i := range names {
		if i < len(given) && given[i] != "" {
			names[i] = given[i]
		} else {
			names[i] = fmt.Sprintf("systemd-socket-%d", i)
		}
	}
	return names, nil
}

func closeAll(listeners []net.Listener) {
	for _, l := range listeners {
		_ = l.Close()
	}
}
