package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeSignal makes shutdown receive sig instead of waiting on the process.
func fakeSignal(t *testing.T, sig os.Signal) {
	t.Helper()
	signalNotify = func(ch chan<- os.Signal, _ ...os.Signal) {
		ch <- sig
	}
	t.Cleanup(func() { signalNotify = signal.Notify })
}

func TestShutdownStopsServerOnSignal(t *testing.T) {
	for _, sig := range []os.Signal{syscall.SIGTERM, syscall.SIGINT} {
		t.Run(sig.String(), func(t *testing.T) {
			fakeSignal(t, sig)

			server := &http.Server{}
			stopped := make(chan struct{}, 1)
			server.RegisterOnShutdown(func() { stopped <- struct{}{} })

			shutdown(server, 50*time.Millisecond, zaptest.NewLogger(t))

			select {
			case <-stopped:
			case <-time.After(time.Second):
				t.Fatalf("server was not shut down after %s", sig)
			}
		})
	}
}

func TestShutdownForcesCloseWhenOptimizationOutlivesGrace(t *testing.T) {
	fakeSignal(t, syscall.SIGTERM)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	inFlight := make(chan struct{})
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(inFlight)
		<-r.Context().Done()
	})}
	go func() { _ = server.Serve(ln) }()

	clientDone := make(chan error, 1)
	go func() {
		resp, err := http.Post("http://"+ln.Addr().String()+"/api/optimize", "application/json", nil)
		if resp != nil {
			resp.Body.Close()
		}
		clientDone <- err
	}()
	<-inFlight

	start := time.Now()
	shutdown(server, 20*time.Millisecond, zaptest.NewLogger(t))
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("shutdown waited %s for a stuck optimization", elapsed)
	}

	select {
	case err := <-clientDone:
		if err == nil {
			t.Fatalf("expected the stuck request to be cut off")
		}
	case <-time.After(time.Second):
		t.Fatalf("stuck request survived forced close")
	}
}
