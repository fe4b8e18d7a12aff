package webpush

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/and161185/goph-push/internal/model"
)

type capturedRequest struct {
	method string
	header http.Header
	body   []byte
}

func recordingServer(t *testing.T, status int, respBody string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, capturedRequest{method: r.Method, header: r.Header.Clone(), body: b})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestClient_Deliver_HeadersAndBody(t *testing.T) {
	t.Parallel()

	srv, got := recordingServer(t, http.StatusCreated, "")
	c := NewClient(srv.Client(), -1, "")

	body := []byte{1, 2, 3, 4}
	res := c.Deliver(context.Background(), model.PushSubscription{Endpoint: srv.URL + "/ep1"}, body, "vapid t=a.b.c, k=KEY")
	if !res.Success() || res.StatusCode != http.StatusCreated || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Endpoint != srv.URL+"/ep1" {
		t.Fatalf("endpoint=%q", res.Endpoint)
	}

	if len(*got) != 1 {
		t.Fatalf("requests=%d, want exactly one attempt", len(*got))
	}
	r := (*got)[0]
	want := map[string]string{
		"Authorization":    "vapid t=a.b.c, k=KEY",
		"Content-Encoding": "aes128gcm",
		"Content-Type":     "application/octet-stream",
		"TTL":              "86400",
		"Urgency":          "normal",
	}
	for k, v := range want {
		if r.header.Get(k) != v {
			t.Fatalf("header %s=%q, want %q", k, r.header.Get(k), v)
		}
	}
	if r.method != http.MethodPost || !bytes.Equal(r.body, body) {
		t.Fatalf("method=%s body=%x", r.method, r.body)
	}
}

func TestClient_Deliver_CustomTTLAndUrgency(t *testing.T) {
	t.Parallel()

	srv, got := recordingServer(t, http.StatusOK, "")
	c := NewClient(srv.Client(), 0, "high")
	c.Deliver(context.Background(), model.PushSubscription{Endpoint: srv.URL}, nil, "h")

	r := (*got)[0]
	if r.header.Get("TTL") != "0" || r.header.Get("Urgency") != "high" {
		t.Fatalf("TTL=%q Urgency=%q", r.header.Get("TTL"), r.header.Get("Urgency"))
	}
}

func TestClient_Deliver_Classification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   model.Outcome
	}{
		{http.StatusOK, model.OutcomeDelivered},
		{http.StatusCreated, model.OutcomeDelivered},
		{http.StatusAccepted, model.OutcomeDelivered},
		{http.StatusNotFound, model.OutcomeGone},
		{http.StatusGone, model.OutcomeGone},
		{http.StatusBadRequest, model.OutcomeTransient},
		{http.StatusForbidden, model.OutcomeTransient},
		{http.StatusRequestEntityTooLarge, model.OutcomeTransient},
		{http.StatusTooManyRequests, model.OutcomeTransient},
		{http.StatusInternalServerError, model.OutcomeTransient},
		{http.StatusServiceUnavailable, model.OutcomeTransient},
	}
	for _, tc := range cases {
		srv, got := recordingServer(t, tc.status, "reason text")
		res := NewClient(srv.Client(), -1, "").Deliver(context.Background(), model.PushSubscription{Endpoint: srv.URL}, []byte("x"), "h")
		if res.Outcome != tc.want || res.StatusCode != tc.status {
			t.Fatalf("status %d: outcome=%v code=%d, want %v", tc.status, res.Outcome, res.StatusCode, tc.want)
		}
		if tc.want != model.OutcomeDelivered && (res.Err == nil || !strings.Contains(res.Err.Error(), "reason text")) {
			t.Fatalf("status %d: want error carrying response body, got %v", tc.status, res.Err)
		}
		if len(*got) != 1 {
			t.Fatalf("status %d: %d attempts, want 1", tc.status, len(*got))
		}
	}
}

func TestClient_Deliver_NetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewClient(nil, -1, "").Deliver(context.Background(), model.PushSubscription{Endpoint: url}, []byte("x"), "h")
	if res.Outcome != model.OutcomeTransient || res.StatusCode != 0 || res.Err == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClient_Deliver_BadEndpoint(t *testing.T) {
	t.Parallel()

	res := NewClient(nil, -1, "").Deliver(context.Background(), model.PushSubscription{Endpoint: "://bad"}, nil, "h")
	if res.Outcome != model.OutcomeTransient || res.Err == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if Classify(204) != model.OutcomeDelivered || Classify(299) != model.OutcomeDelivered {
		t.Fatalf("2xx must be delivered")
	}
	if Classify(404) != model.OutcomeGone || Classify(410) != model.OutcomeGone {
		t.Fatalf("404/410 must be gone")
	}
	if Classify(301) != model.OutcomeTransient || Classify(0) != model.OutcomeTransient {
		t.Fatalf("others must be transient")
	}
}
