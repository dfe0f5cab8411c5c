package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BBbrighton/qr-suite/internal/core"
)

func TestIsValidIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	past := testNow.Add(-time.Minute)
	l := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", ExpiresAt: &past})

	for i := 0; i < 3; i++ {
		ok, err := f.svc.IsValid(ctx, l, testNow)
		if err != nil || ok {
			t.Fatalf("IsValid #%d = %v, %v; want false, nil", i, ok, err)
		}
		if l.Status != core.StatusExpired {
			t.Fatalf("status = %s", l.Status)
		}
	}
	stored, _ := f.store.GetByID(ctx, l.ID)
	if stored.Status != core.StatusExpired {
		t.Fatalf("stored status = %s", stored.Status)
	}
}

func TestIsValidNoExpiry(t *testing.T) {
	f := newFixture(t, nil)
	l := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001"})
	ok, err := f.svc.IsValid(context.Background(), l, testNow.AddDate(50, 0, 0))
	if err != nil || !ok {
		t.Fatalf("IsValid = %v, %v; want true", ok, err)
	}
}

func TestIsValidTerminal(t *testing.T) {
	f := newFixture(t, nil)
	for _, st := range []core.Status{core.StatusExpired, core.StatusRevoked, core.StatusInactive} {
		l := &core.LinkRecord{ID: string(st), Status: st}
		if ok, _ := f.svc.IsValid(context.Background(), l, testNow); ok {
			t.Fatalf("%s link reported valid", st)
		}
	}
}

func TestRevoke(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	l := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001"})

	got, err := f.svc.Revoke(ctx, l.ID)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if got.Status != core.StatusRevoked {
		t.Fatalf("status = %s", got.Status)
	}
	before, _ := f.store.GetByID(ctx, l.ID)

	if _, err := f.svc.Revoke(ctx, l.ID); !core.IsAlreadyRevoked(err) {
		t.Fatalf("second Revoke err = %v, want already revoked", err)
	}
	after, _ := f.store.GetByID(ctx, l.ID)
	if after.Status != before.Status || after.ScanCount != before.ScanCount {
		t.Fatalf("second revoke changed the record: %+v -> %+v", before, after)
	}

	if _, err := f.svc.Revoke(ctx, "missing"); !core.IsNotFound(err) {
		t.Fatalf("Revoke(missing) err = %v, want not found", err)
	}
}

func TestRevokeExpired(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	past := testNow.Add(-time.Minute)
	l := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", ExpiresAt: &past})
	if _, err := f.svc.SweepExpired(ctx); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if _, err := f.svc.Revoke(ctx, l.ID); err != nil {
		t.Fatalf("Revoke expired link: %v", err)
	}
	stored, _ := f.store.GetByID(ctx, l.ID)
	if stored.Status != core.StatusRevoked {
		t.Fatalf("status = %s", stored.Status)
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)
	due := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", ExpiresAt: &past})
	later := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", ExpiresAt: &future})
	f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001"})

	n, err := f.svc.SweepExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepExpired = %d, %v; want 1", n, err)
	}
	if n, _ := f.svc.SweepExpired(ctx); n != 0 {
		t.Fatalf("second sweep changed %d links", n)
	}
	if s, _ := f.store.GetByID(ctx, due.ID); s.Status != core.StatusExpired {
		t.Fatalf("due status = %s", s.Status)
	}

	f.clock.Advance(2 * time.Hour)
	if n, _ := f.svc.SweepExpired(ctx); n != 1 {
		t.Fatalf("later sweep changed %d links, want 1", n)
	}
	if s, _ := f.store.GetByID(ctx, later.ID); s.Status != core.StatusExpired {
		t.Fatalf("later status = %s", s.Status)
	}
}

func TestResolveReportsLinkState(t *testing.T) {
	f := newFixture(t, nil)
	l := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001"})
	_, _ = f.svc.Revoke(context.Background(), l.ID)

	_, err := f.svc.Resolve(context.Background(), core.ResolveRequest{Token: l.Token})
	var se *core.LinkStateError
	if !errors.As(err, &se) || se.Status != core.StatusRevoked {
		t.Fatalf("err = %v, want LinkStateError{Revoked}", err)
	}
}
