package memory_test

import (
	"testing"

	"github.com/BBbrighton/qr-suite/internal/store/memory"
	"github.com/BBbrighton/qr-suite/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend { return memory.New() })
}
