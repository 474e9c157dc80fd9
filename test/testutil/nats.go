package testutil

import (
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// JetStreamServer is a throwaway nats-server process with JetStream enabled.
type JetStreamServer struct {
	URL  string
	cmd  *exec.Cmd
	once sync.Once
}

// StartJetStream launches nats-server on a free local port.
// Params: test handle; test is skipped when nats-server binary is missing.
// Returns: running server stopped automatically on test cleanup.
func StartJetStream(tb testing.TB) *JetStreamServer {
	tb.Helper()

	port, err := freePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	cmd := exec.Command("nats-server", "-js", "-a", "127.0.0.1", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Skipf("nats-server is required for companion transport tests: %v", err)
	}

	server := &JetStreamServer{URL: "nats://127.0.0.1:" + strconv.Itoa(port), cmd: cmd}
	tb.Cleanup(server.Stop)
	server.waitReady(tb, 8*time.Second)
	return server
}

// Stop terminates server, killing it after grace period.
func (s *JetStreamServer) Stop() {
	s.once.Do(func() {
		if s.cmd.Process == nil {
			return
		}
		_ = s.cmd.Process.Signal(syscall.SIGTERM)
		done := make(chan struct{})
		go func() {
			_, _ = s.cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = s.cmd.Process.Kill()
			<-done
		}
	})
}

// StreamMessages reports number of messages retained by stream.
// Params: test handle and stream name.
// Returns: message count; test fails when stream is unavailable.
func (s *JetStreamServer) StreamMessages(tb testing.TB, stream string) uint64 {
	tb.Helper()
	nc, err := nats.Connect(s.URL)
	if err != nil {
		tb.Fatalf("connect %s: %v", s.URL, err)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		tb.Fatalf("jetstream: %v", err)
	}
	info, err := js.StreamInfo(stream)
	if err != nil {
		tb.Fatalf("stream info %s: %v", stream, err)
	}
	return info.State.Msgs
}

func (s *JetStreamServer) waitReady(tb testing.TB, timeout time.Duration) {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		nc, err := nats.Connect(s.URL)
		if err == nil {
			nc.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("nats-server did not accept connections at %s", s.URL)
}

func freePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
