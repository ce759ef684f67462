package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockalloc/internal/core/id"
	"stockalloc/internal/domain/notify"
	"stockalloc/internal/infrastructure/storage/postgres"
)

func outboxMessage(t *testing.T, evt notify.Event, at time.Time) *postgres.OutboxMessage {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return &postgres.OutboxMessage{
		ID:          id.New(),
		AggregateID: evt.AggregateID,
		EventType:   evt.Type,
		Payload:     payload,
		CreatedAt:   at,
	}
}

func TestHandle_PostsSignedPayload(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
		gotCT   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := New(Config{URL: srv.URL, Secret: "s3cret", Timeout: time.Second})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := notify.Event{
		Type:        notify.EventOrderFulfilled,
		AggregateID: id.New(),
		Data:        map[string]any{"orderNo": "SO-1"},
	}

	require.NoError(t, h.Handle(context.Background(), outboxMessage(t, evt, at)))

	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, Sign([]byte("s3cret"), gotBody), gotSig)

	var p struct {
		Event     string         `json:"event"`
		Timestamp time.Time      `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &p))
	assert.Equal(t, notify.EventOrderFulfilled, p.Event)
	assert.True(t, at.Equal(p.Timestamp))
	assert.Equal(t, "SO-1", p.Data["orderNo"])
}

func TestHandle_NoSecretNoSignature(t *testing.T) {
	sigSeen := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sigSeen = r.Header[SignatureHeader]
	}))
	defer srv.Close()

	h := New(Config{URL: srv.URL})
	err := h.Send(context.Background(), Payload{Event: notify.EventStockLow})
	require.NoError(t, err)
	assert.False(t, sigSeen)
}

func TestHandle_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := New(Config{URL: srv.URL})
	err := h.Send(context.Background(), Payload{Event: notify.EventStockLow})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "nope")
}

func TestHandle_Timeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	defer close(done)

	h := New(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	err := h.Send(context.Background(), Payload{Event: notify.EventStockLow})
	require.Error(t, err)
}

func TestHandle_BadPayload(t *testing.T) {
	h := New(Config{URL: "http://127.0.0.1:0"})
	err := h.Handle(context.Background(), &postgres.OutboxMessage{Payload: []byte("{")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode outbox payload")
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	got := Sign([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}
