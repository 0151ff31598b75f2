//go:build !windows

package testutil

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// DummyUnixSocket accepts connections on a Unix socket and answers each with garbage, so a
// driver that dials it fails with a protocol error instead of "connection refused".
type DummyUnixSocket struct {
	Dir  string
	Path string

	listener  net.Listener
	closeOnce sync.Once
}

// StartDummyUnixSocket listens on socketName inside a fresh directory prefixed by dirPrefix.
// MySQL dials the socket path itself; PostgreSQL dials ".s.PGSQL.<port>" inside Dir.
// The socket is closed when the test ends, or earlier by Close.
func StartDummyUnixSocket(t *testing.T, dirPrefix, socketName string) *DummyUnixSocket {
	t.Helper()

	// t.TempDir can exceed the socket path length limit.
	dir, err := os.MkdirTemp("", dirPrefix)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, socketName)
	listener, err := net.Listen("unix", path)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatal(err)
	}

	sock := &DummyUnixSocket{Dir: dir, Path: path, listener: listener}
	t.Cleanup(sock.Close)
	go sock.serve()
	return sock
}

func (s *DummyUnixSocket) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("dummy socket response\n"))
		conn.Close()
	}
}

func (s *DummyUnixSocket) Close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		os.RemoveAll(s.Dir)
	})
}
