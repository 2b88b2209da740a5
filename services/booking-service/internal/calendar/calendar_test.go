package calendar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

const bookingID = "3f0c9a52-8f7e-4b1c-9d2a-6e5b4c3a2f10"

func TestEventID_Deterministic(t *testing.T) {
	a, err := EventID(bookingID)
	if err != nil {
		t.Fatalf("event id: %v", err)
	}
	b, _ := EventID(strings.ToUpper(bookingID))
	if a != b || a != "bk3f0c9a528f7e4b1c9d2a6e5b4c3a2f10" {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
	if _, err := EventID("not_base32!"); err == nil {
		t.Fatal("expected error for invalid characters")
	}
}

func TestSealer_RoundTrip(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	s, err := NewSealer(key)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	sealed, err := s.Seal("ya29.token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "ya29") {
		t.Fatal("sealed value leaks plaintext")
	}
	got, err := s.Open(sealed)
	if err != nil || got != "ya29.token" {
		t.Fatalf("open: %q %v", got, err)
	}

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	if _, err := s.Open(base64.StdEncoding.EncodeToString(raw)); !errors.Is(err, ErrSealedValue) {
		t.Fatalf("expected tamper detection, got %v", err)
	}
	if _, err := NewSealer(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected short key error")
	}
}

type recordingConn struct {
	method string
	req    *structpb.Struct
	err    error
}

func (c *recordingConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	c.method = method
	c.req = args.(*structpb.Struct)
	return c.err
}

func (c *recordingConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not supported")
}

func TestGRPCProvider_SendsEvent(t *testing.T) {
	conn := &recordingConn{}
	p := NewGRPCProvider(conn)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	err := p.UpsertEvent(context.Background(), model.CalendarCredential{CreatorID: "c-1", AccessToken: "at"}, Event{
		BookingID: bookingID,
		Summary:   "Workshop with Bob",
		Start:     start,
		End:       start.Add(90 * time.Minute),
		Attendees: []string{"bob@example.com"},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if conn.method != upsertMethod {
		t.Fatalf("unexpected method %q", conn.method)
	}
	f := conn.req.GetFields()
	if f["end"].GetStringValue() != "2025-06-01T11:30:00Z" || f["creator_id"].GetStringValue() != "c-1" {
		t.Fatalf("unexpected request %v", conn.req)
	}

	conn.err = errors.New("unavailable")
	if err := p.UpsertEvent(context.Background(), model.CalendarCredential{}, Event{BookingID: bookingID}); err == nil {
		t.Fatal("expected sidecar error to surface")
	}
}

func TestGoogleProvider_FallsBackToInsert(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if got := r.Header.Get("Authorization"); got != "Bearer live-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
		case http.MethodPost:
			var ev map[string]any
			_ = json.NewDecoder(r.Body).Decode(&ev)
			_ = json.NewEncoder(w).Encode(ev)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer srv.Close()

	p := NewGoogleProvider(GoogleConfig{Endpoint: srv.URL + "/calendar/v3/"}, nil, zap.NewNop())
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	err := p.UpsertEvent(context.Background(), model.CalendarCredential{
		CreatorID:   "c-1",
		AccessToken: "live-token",
		Expiry:      time.Now().Add(time.Hour),
	}, Event{BookingID: bookingID, Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 || !strings.HasPrefix(calls[0], "PUT ") || !strings.HasPrefix(calls[1], "POST ") {
		t.Fatalf("expected PUT then POST, got %v", calls)
	}
	if !strings.HasSuffix(calls[0], "/calendars/primary/events/bk3f0c9a528f7e4b1c9d2a6e5b4c3a2f10") {
		t.Fatalf("unexpected update path %q", calls[0])
	}
}

func TestGoogleProvider_ExpiredWithoutRefreshFails(t *testing.T) {
	p := NewGoogleProvider(GoogleConfig{}, nil, zap.NewNop())
	err := p.UpsertEvent(context.Background(), model.CalendarCredential{
		AccessToken: "old",
		Expiry:      time.Now().Add(-time.Hour),
	}, Event{BookingID: bookingID})
	if err == nil {
		t.Fatal("expected refresh failure")
	}
}
