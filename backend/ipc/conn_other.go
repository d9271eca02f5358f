//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path"
	"runtime"
)

// socketPath is automatically initialized based on platform conventions:
//   - $SETHPIRITH_SOCKET if set
//   - macOS: ~/Library/Caches/sethpirith/sethpirith.sock (or /tmp/sethpirith-{uid}.sock as fallback)
//   - Linux/Unix: $XDG_RUNTIME_DIR/sethpirith.sock (or /tmp/sethpirith-{uid}.sock as fallback)
var socketPath = "/tmp/sethpirith.sock"

func init() {
	if p := os.Getenv(SocketEnvVar); p != "" {
		socketPath = p
		return
	}
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			socketPath = path.Join(home, "Library", "Caches", "sethpirith", "sethpirith.sock")
		} else if user, err := user.Current(); err == nil {
			socketPath = fmt.Sprintf("/tmp/sethpirith-%s.sock", user.Uid)
		}
	} else {
		if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
			socketPath = path.Join(runtime, "sethpirith.sock")
		} else if user, err := user.Current(); err == nil {
			socketPath = fmt.Sprintf("/tmp/sethpirith-%s.sock", user.Uid)
		}
	}
}

// Dial establishes a connection to the IPC socket.
// Returns an error if the socket doesn't exist or connection fails.
func Dial() (net.Conn, error) {
	return net.Dial("unix", socketPath)
}

// Listen creates a Unix domain socket listener at the configured path.
// The socket file is created automatically and should be cleaned up
// with DestroyConn() when done.
func Listen() (net.Listener, error) {
	if _, err := os.Stat(socketPath); err == nil {
		// a live instance answers Connect; anything left here is stale
		if c, err := Dial(); err == nil {
			c.Close()
			return nil, ErrAddrInUse
		}
		os.Remove(socketPath)
	}
	os.MkdirAll(path.Dir(socketPath), 0700)
	return net.Listen("unix", socketPath)
}

// DestroyConn removes the Unix socket file from the filesystem.
// Should be called during application shutdown.
func DestroyConn() error {
	return os.Remove(socketPath)
}
