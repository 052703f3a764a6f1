package auditstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/courtrace/agent/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndListBookingRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := model.BookingRecord{
		OrderID:       "ord-1",
		PresetIndex:   13,
		VenueName:     "南洋北苑健身房",
		FieldTypeName: "羽毛球",
		Date:          "2026-08-07",
		Start:         "18:00",
		End:           "19:00",
		Status:        "success",
		Message:       "下单成功，订单ID: ord-1",
		CreatedAt:     time.Now(),
	}
	if _, err := s.InsertBookingRecord(ctx, rec); err != nil {
		t.Fatalf("InsertBookingRecord: %v", err)
	}

	records, err := s.ListBookingRecords(ctx, 0)
	if err != nil {
		t.Fatalf("ListBookingRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("want 1 record, got %d", len(records))
	}
	if records[0].OrderID != "ord-1" || records[0].VenueName != rec.VenueName {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestRecordJobTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordJobTransition(ctx, "3", model.JobMonitor, model.JobPending, model.JobRunning, ""); err != nil {
		t.Fatalf("RecordJobTransition: %v", err)
	}
	if err := s.RecordJobTransition(ctx, "3", model.JobMonitor, model.JobRunning, model.JobFailed, "进程意外终止"); err != nil {
		t.Fatalf("RecordJobTransition: %v", err)
	}

	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_events WHERE job_id = ?`, "3").Scan(&count); err != nil {
		t.Fatalf("count job_events: %v", err)
	}
	if count != 2 {
		t.Fatalf("want 2 job events, got %d", count)
	}
}
