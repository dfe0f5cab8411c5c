package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/BBbrighton/qr-suite/internal/store/postgres"
	"github.com/BBbrighton/qr-suite/internal/store/storetest"
)

// TestStore runs against a scratch database named by QRSUITE_TEST_DATABASE_URL.
// Each subtest truncates the tables first.
func TestStore(t *testing.T) {
	dsn := os.Getenv("QRSUITE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("QRSUITE_TEST_DATABASE_URL not set")
	}
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		ctx := context.Background()
		s, err := postgres.Connect(ctx, dsn)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		if err := s.Truncate(ctx); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
