package upstream

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/zhengwenj/cursor-api-sub001/internal/circuitbreaker"
	"github.com/zhengwenj/cursor-api-sub001/internal/cursorpb"
	"github.com/zhengwenj/cursor-api-sub001/internal/testutil"
)

func testBundle() Bundle {
	return Bundle{RawJWT: "test-jwt", ProxyName: "general"}
}

// TestCallRecordsSuccessOnOKResponse checks that a 200 response records a
// success against the proxy's own breaker, keeping it closed.
func TestCallRecordsSuccessOnOKResponse(t *testing.T) {
	t.Parallel()
	fake := testutil.FakeUpstream(http.StatusOK, testutil.ContentStreamFrames("hi"))
	t.Cleanup(fake.Close)
	host := strings.TrimPrefix(fake.URL, "https://")

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	caller := New(Config{ReverseProxyHost: host}, testutil.Pool(), breakers)

	resp, err := caller.Call(context.Background(), &cursorpb.StreamUnifiedChatRequest{}, testBundle())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	resp.Body.Close()

	b := breakers.Get("general")
	if b == nil {
		t.Fatal("breakerFor(\"general\") did not register a breaker")
	}
	if b.State() != circuitbreaker.StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

// TestCallTripsBreakerOnRepeated5xx reproduces the §5 circuit-breaker
// wiring end to end: repeated 502s from the reverse proxy must weigh into
// breakerFor(proxyName)'s window via ClassifyError until it trips open, at
// which point Call fails fast without dialing the fake upstream again.
func TestCallTripsBreakerOnRepeated5xx(t *testing.T) {
	t.Parallel()
	fake := testutil.FakeUpstream(http.StatusBadGateway, nil)
	t.Cleanup(fake.Close)
	host := strings.TrimPrefix(fake.URL, "https://")

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		ErrorThreshold: 0.5,
		MinSamples:     3,
		WindowSeconds:  60,
		OpenTimeout:    time.Minute,
	})
	caller := New(Config{ReverseProxyHost: host}, testutil.Pool(), breakers)

	var lastErr error
	for i := 0; i < 3; i++ {
		resp, err := caller.Call(context.Background(), &cursorpb.StreamUnifiedChatRequest{}, testBundle())
		if resp != nil {
			resp.Body.Close()
		}
		lastErr = err
	}
	if lastErr != nil {
		t.Fatalf("Call during warmup: %v", lastErr)
	}

	b := breakers.Get("general")
	if b == nil || b.State() != circuitbreaker.StateOpen {
		state := "<no breaker>"
		if b != nil {
			state = b.State().String()
		}
		t.Fatalf("breaker state = %v, want open after 3 consecutive 502s", state)
	}

	if _, err := caller.Call(context.Background(), &cursorpb.StreamUnifiedChatRequest{}, testBundle()); err == nil {
		t.Error("Call succeeded through an open breaker, want circuit-open error")
	}
}

// TestRecordBreakerOutcomeSkipsPlainClientError checks that a 404 (the
// caller's fault, not the proxy's) never trips the breaker: ClassifyError
// weighs it 0, so recordBreakerOutcome must record neither an error nor a
// success for it. A threshold this low would trip after a single counted
// sample, so staying closed across several calls proves nothing was
// recorded at all.
func TestRecordBreakerOutcomeSkipsPlainClientError(t *testing.T) {
	t.Parallel()
	b := circuitbreaker.NewBreaker(circuitbreaker.Config{
		ErrorThreshold: 0.1,
		MinSamples:     1,
		WindowSeconds:  60,
		OpenTimeout:    time.Minute,
	})
	resp := &http.Response{StatusCode: http.StatusNotFound}
	for i := 0; i < 5; i++ {
		recordBreakerOutcome(b, resp, nil)
	}
	if b.State() != circuitbreaker.StateClosed {
		t.Errorf("state = %v after repeated plain 404s, want closed", b.State())
	}
}
