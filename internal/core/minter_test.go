package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BBbrighton/qr-suite/internal/core"
	"github.com/BBbrighton/qr-suite/internal/store/memory"
)

func TestMintTokenView(t *testing.T) {
	f := newFixture(t, nil)
	l := f.mint(t, core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Action: core.ActionView})

	if l.Status != core.StatusActive || l.TargetKind != core.DocumentQR || l.AddressMode != core.AddressToken {
		t.Fatalf("unexpected link: %+v", l)
	}
	if len(l.Token) < 43 {
		t.Fatalf("token %q is shorter than 256 bits of base64", l.Token)
	}
	if want := testBase + "/qr?token=" + l.Token; l.QRURL != want {
		t.Fatalf("qr_url = %q, want %q", l.QRURL, want)
	}
	if l.TargetURL != "/app/item/ITEM-001" {
		t.Fatalf("target_url = %q", l.TargetURL)
	}
	if l.Payload() != l.QRURL {
		t.Fatalf("payload = %q, want qr_url", l.Payload())
	}
	if !l.CreatedAt.Equal(testNow) {
		t.Fatalf("created_at = %v", l.CreatedAt)
	}

	stored, err := f.store.GetByToken(context.Background(), l.Token)
	if err != nil || stored.ID != l.ID {
		t.Fatalf("stored lookup = %v, %v", stored, err)
	}
}

func TestMintDefaultAction(t *testing.T) {
	f := newFixture(t, nil)
	item := f.mint(t, core.MintRequest{TargetType: "Item", TargetName: "ITEM-001"})
	if item.Action != core.ActionStockBalance {
		t.Fatalf("item action = %q, want stock_balance", item.Action)
	}
	asset := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", Action: "teleport"})
	if asset.Action != core.ActionView || asset.TargetURL != "/app/asset/AST-0001" {
		t.Fatalf("unknown action should fall back to view: %+v", asset)
	}
}

func TestMintDirectMergesParams(t *testing.T) {
	f := newFixture(t, nil)
	l := f.mint(t, core.MintRequest{
		TargetType:  "Asset",
		TargetName:  "AST-0001",
		Action:      core.ActionEdit,
		AddressMode: core.AddressDirect,
		ExtraParams: map[string]string{"src": "qr", "a b": "c&d"},
	})
	want := testBase + "/app/asset/AST-0001?edit=1&a+b=c%26d&src=qr"
	if l.QRURL != want {
		t.Fatalf("qr_url = %q, want %q", l.QRURL, want)
	}
	if l.Token != "" {
		t.Fatalf("direct link got a token: %q", l.Token)
	}

	custom := f.mint(t, core.MintRequest{
		TargetType:      "Asset",
		TargetName:      "AST-0001",
		Action:          core.ActionView,
		AddressMode:     core.AddressDirect,
		CustomURLPrefix: "https://mobile.example/",
		ExtraParams:     map[string]string{"src": "qr"},
	})
	if custom.QRURL != "https://mobile.example/app/asset/AST-0001?src=qr" {
		t.Fatalf("custom prefix qr_url = %q", custom.QRURL)
	}
}

func TestMintValueQR(t *testing.T) {
	f := newFixture(t, nil)

	custom := f.mint(t, core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Kind: core.ValueQR, CustomValue: "ABC123"})
	if custom.Payload() != "ABC123" || custom.ValueContent != "ABC123" {
		t.Fatalf("value payload = %q", custom.Payload())
	}
	if custom.QRURL != "" || custom.Token != "" {
		t.Fatalf("value qr carries url fields: %+v", custom)
	}

	field := f.mint(t, core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Kind: core.ValueQR, ValueField: "barcode"})
	if field.ValueContent != "8901234567890" {
		t.Fatalf("field value = %q", field.ValueContent)
	}

	tpl := f.mint(t, core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Kind: core.ValueQR, Template: "barcode"})
	if tpl.ValueContent != "8901234567890" {
		t.Fatalf("template field value = %q", tpl.ValueContent)
	}

	name := f.mint(t, core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Kind: core.ValueQR})
	if name.ValueContent != "ITEM-001" {
		t.Fatalf("fallback value = %q, want the target name", name.ValueContent)
	}

	blank := f.mint(t, core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Kind: core.ValueQR, ValueField: "empty"})
	if blank.ValueContent != "ITEM-001" {
		t.Fatalf("blank field value = %q, want the target name", blank.ValueContent)
	}
}

func TestMintFailures(t *testing.T) {
	tests := []struct {
		name string
		req  core.MintRequest
		want error
	}{
		{"missing target", core.MintRequest{TargetType: "Item"}, core.ErrInvalidInput},
		{"unknown target", core.MintRequest{TargetType: "Item", TargetName: "ITEM-404"}, core.ErrTargetNotFound},
		{"absent field", core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Kind: core.ValueQR, ValueField: "colour"}, core.ErrInvalidTargetField},
		{"blank custom value", core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Kind: core.ValueQR, CustomValue: "   "}, core.ErrMissingValueContent},
		{"unknown template", core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Template: "nope"}, core.ErrUnknownTemplate},
		{"bad mode", core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", AddressMode: "carrier-pigeon"}, core.ErrInvalidInput},
		{"bad kind", core.MintRequest{TargetType: "Item", TargetName: "ITEM-001", Kind: "Hologram"}, core.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.svc.Mint(context.Background(), core.Guest, tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !core.IsCreation(err) {
				t.Fatalf("IsCreation(%v) = false", err)
			}
			if got, _ := f.store.QueryByStatusAndExpiry(context.Background(), core.StatusActive, testNow.Add(time.Hour)); len(got) != 0 {
				t.Fatalf("failed mint persisted a record")
			}
		})
	}
}

func TestMintPermission(t *testing.T) {
	f := newFixture(t, func(o *core.Options) {
		o.Permission = func(targetType string, p core.Principal) bool {
			return targetType == "Item" && p.HasRole("QR User")
		}
	})
	ctx := context.Background()
	req := core.MintRequest{TargetType: "Item", TargetName: "ITEM-001"}
	if _, err := f.svc.Mint(ctx, core.Guest, req); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("guest mint err = %v, want forbidden", err)
	}
	user := core.Principal{Name: "ops@example.com", Roles: []string{"QR User"}}
	if _, err := f.svc.Mint(ctx, user, req); err != nil {
		t.Fatalf("QR User mint: %v", err)
	}
	asset := core.MintRequest{TargetType: "Asset", TargetName: "AST-0001"}
	if _, err := f.svc.Mint(ctx, user, asset); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("disabled type err = %v, want forbidden", err)
	}
}

func TestMintTemplateExpiry(t *testing.T) {
	f := newFixture(t, nil)
	l := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", Template: "short-lived"})
	if l.ExpiresAt == nil || !l.ExpiresAt.Equal(testNow.AddDate(0, 0, 7)) {
		t.Fatalf("expires_at = %v, want now+7d", l.ExpiresAt)
	}

	explicit := testNow.Add(time.Hour)
	l = f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", Template: "short-lived", ExpiresAt: &explicit})
	if !l.ExpiresAt.Equal(explicit) {
		t.Fatalf("explicit expiry overridden: %v", l.ExpiresAt)
	}

	direct := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", Template: "direct"})
	if direct.AddressMode != core.AddressDirect || !strings.HasPrefix(direct.QRURL, testBase+"/app/asset/") {
		t.Fatalf("template url mode ignored: %+v", direct)
	}
}

func TestMintLabel(t *testing.T) {
	f := newFixture(t, nil)
	l := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", IncludeLabel: true})
	if l.LabelText != "AST-0001" {
		t.Fatalf("label = %q, want target name", l.LabelText)
	}
	l = f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", IncludeLabel: true, LabelText: "Forklift #1"})
	if l.LabelText != "Forklift #1" {
		t.Fatalf("label = %q", l.LabelText)
	}
}

func TestMintTokensUnique(t *testing.T) {
	f := newFixture(t, nil)
	seen := make(map[string]bool)
	for i := 0; i < 2000; i++ {
		l := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001", Action: core.ActionView})
		if seen[l.Token] {
			t.Fatalf("duplicate token after %d mints", i)
		}
		seen[l.Token] = true
	}
}

func TestMintRetriesTokenCollision(t *testing.T) {
	st := memory.New()
	_ = st.PutRecord(context.Background(), "Asset", "AST-0001", nil)
	gen := &seqGen{tokens: []string{"dup", "dup", "dup"}}
	f := newFixtureWith(t, st, st, gen, core.Options{BaseURL: testBase, Logger: quietLogger()})

	first := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001"})
	second := f.mint(t, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001"})
	if first.Token != "dup" || second.Token != "generated-1" {
		t.Fatalf("tokens = %q, %q", first.Token, second.Token)
	}

	stuck := &seqGen{tokens: []string{"dup", "dup", "dup", "dup", "dup", "dup", "dup"}}
	f = newFixtureWith(t, st, st, stuck, core.Options{BaseURL: testBase, Logger: quietLogger()})
	if _, err := f.svc.Mint(context.Background(), core.Guest, core.MintRequest{TargetType: "Asset", TargetName: "AST-0001"}); !core.IsConflict(err) {
		t.Fatalf("err = %v, want conflict after retries", err)
	}
}
