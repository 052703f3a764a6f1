package notifier

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.RetryCount != 3 || cfg.RetryDelay != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestNotifyBookingResultSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	n := New(Config{GroupURL: srv.URL, Groups: []string{"123"}, RetryCount: 1, RetryDelay: time.Millisecond}, nil)
	err := n.NotifyBookingResult(t.Context(), model.OrderIntent{Date: "2026-08-01", Start: "18:00", End: "19:00"},
		bookingapi.OrderResult{Success: true, OrderID: "abc", Message: "下单成功"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", hits)
	}
}

func TestNotifySkipsNonIntegerTargets(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	n := New(Config{UserURL: srv.URL, Users: []string{"not-a-number", "42"}, RetryCount: 1, RetryDelay: time.Millisecond}, nil)
	if err := n.NotifySlotsFound(t.Context(), model.BookingTarget{}, []model.Slot{{Start: "18:00", End: "19:00"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected delivery only to the valid numeric target, got %d", hits)
	}
}

func TestNotifyRetriesUntilOK(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.Write([]byte(`{"status":"fail"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	n := New(Config{GroupURL: srv.URL, Groups: []string{"1"}, RetryCount: 5, RetryDelay: time.Millisecond}, nil)
	err := n.NotifyBookingResult(t.Context(), model.OrderIntent{}, bookingapi.OrderResult{Success: false, Message: "失败"})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestNotifyGivesUpAfterRetryBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"fail"}`))
	}))
	defer srv.Close()

	n := New(Config{GroupURL: srv.URL, Groups: []string{"1"}, RetryCount: 2, RetryDelay: time.Millisecond}, nil)
	if err := n.NotifyBookingResult(t.Context(), model.OrderIntent{}, bookingapi.OrderResult{}); err == nil {
		t.Fatal("expected an error once the retry budget is exhausted")
	}
}

func TestFormatDayLabel(t *testing.T) {
	cases := []struct {
		offset int
		want   string
	}{
		{0, "今天"},
		{1, "明天"},
		{2, "后天"},
		{5, "2026-08-05"},
	}
	for _, c := range cases {
		if got := FormatDayLabel("2026-08-05", c.offset); got != c.want {
			t.Errorf("FormatDayLabel(offset=%d) = %q, want %q", c.offset, got, c.want)
		}
	}
}

func TestBroadcastSkipsEmptyURL(t *testing.T) {
	n := New(Config{Groups: []string{strconv.Itoa(1)}, RetryCount: 1, RetryDelay: time.Millisecond}, nil)
	if err := n.broadcast(t.Context(), "hello"); err != nil {
		t.Fatalf("expected no error when no URL is configured, got %v", err)
	}
}
