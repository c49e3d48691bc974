package solver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
	"github.com/axion-mining/fleet-optimizer/internal/routes"
)

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithBackoff(time.Millisecond), WithLogger(zaptest.NewLogger(t))}, opts...)
	c, err := NewClient(url, opts...)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return c
}

func TestOptimizeReturnsSolverResultsVerbatim(t *testing.T) {
	engine, err := optimizer.New(routes.Default())
	if err != nil {
		t.Fatalf("optimizer.New returned error: %v", err)
	}
	want, err := engine.Optimize(context.Background(), optimizer.DefaultParameters())
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	want.Status = optimizer.StatusOptimal

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/optimize" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var params optimizer.Parameters
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("decode parameters: %v", err)
		}
		if params.NumDays != 31 || params.Availability(26) != 0.55 {
			t.Errorf("unexpected parameters: %+v", params)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL+"/").Optimize(context.Background(), optimizer.DefaultParameters())
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected solver results to be returned verbatim")
	}
}

func TestOptimizeRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"Optimal","objectiveValue":0,"utilizationSummary":[],"dailyTonnage":[],"routeAllocations":{},"avgUtilization":0}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).Optimize(context.Background(), optimizer.DefaultParameters())
	if err != nil {
		t.Fatalf("Optimize returned error: %v", err)
	}
	if res.Status != optimizer.StatusOptimal {
		t.Fatalf("unexpected status %q", res.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestOptimizeDoesNotRetrySolverErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"Error","error":"model infeasible"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Optimize(context.Background(), optimizer.DefaultParameters())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "model infeasible") {
		t.Fatalf("expected solver message in error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestOptimizeGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, WithMaxAttempts(2)).Optimize(context.Background(), optimizer.DefaultParameters())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestOptimizeRejectsMalformedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).Optimize(context.Background(), optimizer.DefaultParameters()); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestOptimizeValidatesBeforeCalling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Errorf("solver should not be called for invalid parameters")
	}))
	defer srv.Close()

	params := optimizer.DefaultParameters()
	params.NumDays = 0
	if _, err := newTestClient(t, srv.URL).Optimize(context.Background(), params); !errors.Is(err, optimizer.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestOptimizeHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestClient(t, srv.URL).Optimize(ctx, optimizer.DefaultParameters()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOptimizeTimeoutKeepsDeadlineInChain(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL,
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}),
		WithMaxAttempts(1),
	)
	_, err := c.Optimize(context.Background(), optimizer.DefaultParameters())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the client timeout to match context.DeadlineExceeded, got %v", err)
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	for _, url := range []string{"", "   ", "ftp://solver"} {
		if _, err := NewClient(url); !errors.Is(err, optimizer.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration for %q, got %v", url, err)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	if got := errorMessage([]byte(`{"error":"Invalid request","details":"bad days"}`)); got != "Invalid request: bad days" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := errorMessage([]byte(" plain text \n")); got != "plain text" {
		t.Fatalf("unexpected message %q", got)
	}
}
