// Package storetest holds the behaviour every link store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/BBbrighton/qr-suite/internal/core"
)

// Backend is what the suite needs from a store under test.
type Backend interface {
	core.Store
	core.Targets
	PutRecord(ctx context.Context, targetType, name string, fields map[string]string) error
}

// Run exercises open against a fresh backend per subtest.
func Run(t *testing.T, open func(t *testing.T) Backend) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, open(t)) })
	t.Run("TokenConflict", func(t *testing.T) { testTokenConflict(t, open(t)) })
	t.Run("LatestForTarget", func(t *testing.T) { testLatest(t, open(t)) })
	t.Run("SetStatus", func(t *testing.T) { testSetStatus(t, open(t)) })
	t.Run("RecordScan", func(t *testing.T) { testRecordScan(t, open(t)) })
	t.Run("QueryByStatusAndExpiry", func(t *testing.T) { testQueryExpiry(t, open(t)) })
	t.Run("Records", func(t *testing.T) { testRecords(t, open(t)) })
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func link(id, token string, created time.Time) *core.LinkRecord {
	return &core.LinkRecord{
		ID:          id,
		TargetKind:  core.DocumentQR,
		TargetType:  "Item",
		TargetName:  "ITEM-001",
		AddressMode: core.AddressToken,
		Token:       token,
		Action:      core.ActionView,
		QRURL:       "http://erp.local/qr?token=" + token,
		TargetURL:   "/app/item/ITEM-001",
		Status:      core.StatusActive,
		CreatedAt:   created,
	}
}

func testCreateAndGet(t *testing.T, s Backend) {
	ctx := context.Background()
	exp := epoch.Add(48 * time.Hour)
	l := link("l1", "tok-1", epoch)
	l.ExpiresAt = &exp
	l.ExtraParams = map[string]string{"src": "label"}
	if err := s.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.GetByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if diff := cmp.Diff(l, got); diff != "" {
		t.Fatalf("stored record mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.GetByID(ctx, "l1"); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if _, err := s.GetByID(ctx, "missing"); !core.IsNotFound(err) {
		t.Fatalf("GetByID(missing) err = %v, want not found", err)
	}
	if _, err := s.GetByToken(ctx, "missing"); !core.IsNotFound(err) {
		t.Fatalf("GetByToken(missing) err = %v, want not found", err)
	}
}

func testTokenConflict(t *testing.T, s Backend) {
	ctx := context.Background()
	if err := s.Create(ctx, link("a", "same", epoch)); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if err := s.Create(ctx, link("b", "same", epoch)); !core.IsConflict(err) {
		t.Fatalf("duplicate token err = %v, want conflict", err)
	}

	// Links without a token never collide with each other.
	v1 := link("v1", "", epoch)
	v1.TargetKind, v1.AddressMode = core.ValueQR, ""
	v2 := link("v2", "", epoch)
	v2.TargetKind, v2.AddressMode = core.ValueQR, ""
	if err := s.Create(ctx, v1); err != nil {
		t.Fatalf("Create v1: %v", err)
	}
	if err := s.Create(ctx, v2); err != nil {
		t.Fatalf("Create v2: %v", err)
	}
}

func testLatest(t *testing.T, s Backend) {
	ctx := context.Background()
	_ = s.Create(ctx, link("old", "t-old", epoch))
	_ = s.Create(ctx, link("new", "t-new", epoch.Add(time.Minute)))
	// Same timestamp as "new" but inserted later.
	_ = s.Create(ctx, link("tie", "t-tie", epoch.Add(time.Minute)))

	got, err := s.LatestForTarget(ctx, "Item", "ITEM-001")
	if err != nil {
		t.Fatalf("LatestForTarget: %v", err)
	}
	if got.ID != "tie" {
		t.Fatalf("latest = %s, want tie", got.ID)
	}
	if _, err := s.LatestForTarget(ctx, "Item", "ITEM-404"); !core.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func testSetStatus(t *testing.T, s Backend) {
	ctx := context.Background()
	_ = s.Create(ctx, link("l1", "tok", epoch))

	changed, err := s.SetStatus(ctx, "l1", core.StatusExpired, core.StatusActive)
	if err != nil || !changed {
		t.Fatalf("first SetStatus = %v, %v; want true, nil", changed, err)
	}
	changed, err = s.SetStatus(ctx, "l1", core.StatusExpired, core.StatusActive)
	if err != nil || changed {
		t.Fatalf("second SetStatus = %v, %v; want false, nil", changed, err)
	}
	got, _ := s.GetByID(ctx, "l1")
	if got.Status != core.StatusExpired {
		t.Fatalf("status = %s, want Expired", got.Status)
	}
	if _, err := s.SetStatus(ctx, "nope", core.StatusRevoked); !core.IsNotFound(err) {
		t.Fatalf("SetStatus(missing) err = %v, want not found", err)
	}
}

func testRecordScan(t *testing.T, s Backend) {
	ctx := context.Background()
	_ = s.Create(ctx, link("l1", "tok", epoch))

	for i := 0; i < 3; i++ {
		err := s.RecordScan(ctx, &core.ScanLogEntry{
			ID:          "scan-" + string(rune('a'+i)),
			LinkID:      "l1",
			ScannedBy:   "Guest",
			ScannedAt:   epoch.Add(time.Duration(i) * time.Second),
			IP:          "10.0.0.1",
			UserAgent:   "scanner/1.0",
			TargetType:  "Item",
			TargetName:  "ITEM-001",
			Destination: "http://erp.local/app/item/ITEM-001",
		})
		if err != nil {
			t.Fatalf("RecordScan #%d: %v", i, err)
		}
	}

	got, _ := s.GetByID(ctx, "l1")
	if got.ScanCount != 3 {
		t.Fatalf("scan_count = %d, want 3", got.ScanCount)
	}
	if got.LastScannedAt == nil || !got.LastScannedAt.Equal(epoch.Add(2*time.Second)) {
		t.Fatalf("last_scanned_at = %v", got.LastScannedAt)
	}
	if got.LastScannedBy != "Guest" || got.LastScanIP != "10.0.0.1" {
		t.Fatalf("last scan audit = %q %q", got.LastScannedBy, got.LastScanIP)
	}

	scans, err := s.ListScans(ctx, "l1", 2)
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	if len(scans) != 2 || scans[0].ID != "scan-c" {
		t.Fatalf("ListScans returned %d entries, first=%v", len(scans), scans)
	}

	err = s.RecordScan(ctx, &core.ScanLogEntry{ID: "orphan", LinkID: "missing", ScannedAt: epoch})
	if err == nil {
		t.Fatalf("RecordScan for missing link succeeded")
	}
	if all, _ := s.ListScans(ctx, "missing", 0); len(all) != 0 {
		t.Fatalf("orphan scan was persisted")
	}
}

func testQueryExpiry(t *testing.T, s Backend) {
	ctx := context.Background()
	past := epoch.Add(-time.Hour)
	future := epoch.Add(time.Hour)

	due := link("due", "t1", epoch)
	due.ExpiresAt = &past
	later := link("later", "t2", epoch)
	later.ExpiresAt = &future
	never := link("never", "t3", epoch)
	revoked := link("revoked", "t4", epoch)
	revoked.ExpiresAt = &past
	revoked.Status = core.StatusRevoked
	for _, l := range []*core.LinkRecord{due, later, never, revoked} {
		if err := s.Create(ctx, l); err != nil {
			t.Fatalf("Create %s: %v", l.ID, err)
		}
	}

	got, err := s.QueryByStatusAndExpiry(ctx, core.StatusActive, epoch)
	if err != nil {
		t.Fatalf("QueryByStatusAndExpiry: %v", err)
	}
	if len(got) != 1 || got[0].ID != "due" {
		t.Fatalf("got %d links, want only due", len(got))
	}
}

func testRecords(t *testing.T, s Backend) {
	ctx := context.Background()
	ok, err := s.Exists(ctx, "Item", "ITEM-001")
	if err != nil || ok {
		t.Fatalf("Exists before put = %v, %v", ok, err)
	}
	if err := s.PutRecord(ctx, "Item", "ITEM-001", map[string]string{"barcode": "0123"}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
	if ok, _ := s.Exists(ctx, "Item", "ITEM-001"); !ok {
		t.Fatalf("record not found after put")
	}

	v, ok, err := s.ReadField(ctx, "Item", "ITEM-001", "barcode")
	if err != nil || !ok || v != "0123" {
		t.Fatalf("ReadField = %q, %v, %v", v, ok, err)
	}
	if _, ok, _ := s.ReadField(ctx, "Item", "ITEM-001", "nope"); ok {
		t.Fatalf("absent field reported present")
	}

	if err := s.PutRecord(ctx, "Item", "ITEM-001", map[string]string{"barcode": "9999"}); err != nil {
		t.Fatalf("PutRecord replace: %v", err)
	}
	if v, _, _ := s.ReadField(ctx, "Item", "ITEM-001", "barcode"); v != "9999" {
		t.Fatalf("field not replaced: %q", v)
	}
}
