package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pdpnav/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
}
type FailRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkPush(ctx context.Context, id string, success bool, next *time.Time, lastErr string, code int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: code, LastErr: lastErr})
	r.mu.Unlock()
	return r.Memory.MarkPush(ctx, id, success, next, lastErr, code)
}
func (r *recordStore) FailPush(ctx context.Context, id string, lastErr string, code int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: code, LastErr: lastErr})
	r.mu.Unlock()
	return r.Memory.FailPush(ctx, id, lastErr, code)
}

func enqueue(t *testing.T, s store.Store, url, secret string) {
	t.Helper()
	err := s.EnqueuePush(context.Background(), store.Push{
		ID:        "push1",
		URL:       url,
		Secret:    secret,
		EventType: EventSchedule,
		Payload:   []byte(`{"id":"evt1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	enqueue(t, rs.Memory, srv.URL, "secret")

	w.processOnce()

	if gotSig == "" || gotType != EventSchedule {
		t.Fatalf("missing signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature does not verify over the body")
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	enqueue(t, rs.Memory, srv.URL, "")
	w.processOnce()
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
	// A failed push is terminal and never fetched again.
	due, _ := rs.Memory.FetchDuePushes(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("failed push still due: %+v", due)
	}
}

func TestWorkerBackoffSchedulesRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 5}
	enqueue(t, rs.Memory, srv.URL, "")
	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success {
		t.Fatalf("expected unsuccessful mark, got %+v", rs.marks)
	}
	// NextAttemptAt moved into the future, so nothing is due right away.
	due, _ := rs.Memory.FetchDuePushes(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("backoff did not delay the retry: %+v", due)
	}
}

func TestNextBackoff(t *testing.T) {
	if nextBackoff(0) != time.Second {
		t.Fatalf("attempt 0: %v", nextBackoff(0))
	}
	if nextBackoff(3) != 8*time.Second {
		t.Fatalf("attempt 3: %v", nextBackoff(3))
	}
	// Doubling continues right up to the hour cap.
	if nextBackoff(11) != 2048*time.Second {
		t.Fatalf("attempt 11: %v", nextBackoff(11))
	}
	if nextBackoff(12) != time.Hour {
		t.Fatalf("attempt 12: %v", nextBackoff(12))
	}
	if nextBackoff(100) != time.Hour {
		t.Fatalf("cap: %v", nextBackoff(100))
	}
	if nextBackoff(-5) != time.Second {
		t.Fatalf("negative: %v", nextBackoff(-5))
	}
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"x":1}`)
	sig := SignHMAC("s3cr3t", body)
	if !VerifyHMAC("s3cr3t", body, sig) {
		t.Fatalf("valid signature rejected")
	}
	if VerifyHMAC("other", body, sig) {
		t.Fatalf("wrong secret accepted")
	}
	if VerifyHMAC("s3cr3t", []byte(`{}`), sig) {
		t.Fatalf("tampered body accepted")
	}
	if VerifyHMAC("s3cr3t", body, "not-hex") {
		t.Fatalf("malformed signature accepted")
	}
}
