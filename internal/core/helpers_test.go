package core_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BBbrighton/qr-suite/internal/core"
	"github.com/BBbrighton/qr-suite/internal/id"
	"github.com/BBbrighton/qr-suite/internal/store/memory"
)

const testBase = "http://erp.local"

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type templates map[string]core.Template

func (m templates) Template(_ context.Context, name string) (*core.Template, bool) {
	t, ok := m[name]
	if !ok {
		return nil, false
	}
	return &t, true
}

type fixture struct {
	svc   *core.Service
	store *memory.Store
	clock *clock
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newFixture seeds Item/ITEM-001 and Asset/AST-0001 and applies mutate to
// the options before constructing the service.
func newFixture(t *testing.T, mutate func(*core.Options)) *fixture {
	t.Helper()
	st := memory.New()
	ctx := context.Background()
	_ = st.PutRecord(ctx, "Item", "ITEM-001", map[string]string{"barcode": "8901234567890", "empty": ""})
	_ = st.PutRecord(ctx, "Asset", "AST-0001", map[string]string{"asset_name": "Forklift"})

	opts := core.Options{
		BaseURL: testBase + "/",
		Templates: templates{
			"short-lived": {Name: "short-lived", TokenExpiryDays: 7},
			"barcode":     {Name: "barcode", ValueField: "barcode"},
			"direct":      {Name: "direct", URLMode: core.AddressDirect},
		},
		Logger: quietLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return newFixtureWith(t, st, st, id.NewGenerator(0), opts)
}

func newFixtureWith(t *testing.T, st core.Store, mem *memory.Store, gen core.TokenGenerator, opts core.Options) *fixture {
	t.Helper()
	c := &clock{now: testNow}
	svc := core.NewService(st, mem, gen, opts)
	svc.SetClock(c.Now)
	return &fixture{svc: svc, store: mem, clock: c}
}

func (f *fixture) mint(t *testing.T, req core.MintRequest) *core.LinkRecord {
	t.Helper()
	l, err := f.svc.Mint(context.Background(), core.Guest, req)
	if err != nil {
		t.Fatalf("Mint(%+v): %v", req, err)
	}
	return l
}

// failingScans rejects every scan log write.
type failingScans struct {
	*memory.Store
}

func (failingScans) RecordScan(context.Context, *core.ScanLogEntry) error {
	return errors.New("disk full")
}

// panickyScans panics on every scan log write.
type panickyScans struct {
	*memory.Store
}

func (panickyScans) RecordScan(context.Context, *core.ScanLogEntry) error {
	panic("boom")
}

// seqGen replays fixed tokens, then numbered ones.
type seqGen struct {
	mu     sync.Mutex
	tokens []string
	n      int
}

func (g *seqGen) NewToken(context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.tokens) > 0 {
		t := g.tokens[0]
		g.tokens = g.tokens[1:]
		return t, nil
	}
	g.n++
	return fmt.Sprintf("generated-%d", g.n), nil
}
