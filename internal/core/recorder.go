package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScanContext describes who scanned a link and where it sent them.
type ScanContext struct {
	Principal   Principal
	IP          string
	UserAgent   string
	At          time.Time
	Destination string
}

// RecordScan appends a scan log entry and bumps the link's audit counters.
// It is best-effort: failures are logged and swallowed, and the store rolls
// back any partial write.
func (s *Service) RecordScan(ctx context.Context, l *LinkRecord, sc ScanContext) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("link_id", l.ID).Errorf("record scan panicked: %v", r)
		}
	}()

	by := sc.Principal.Name
	if by == "" {
		by = Guest.Name
	}
	at := sc.At
	if at.IsZero() {
		at = s.nowFunc()
	}
	at = at.UTC()
	entry := &ScanLogEntry{
		ID:          uuid.NewString(),
		LinkID:      l.ID,
		ScannedBy:   by,
		ScannedAt:   at,
		IP:          sc.IP,
		UserAgent:   sc.UserAgent,
		TargetType:  l.TargetType,
		TargetName:  l.TargetName,
		Destination: sc.Destination,
	}
	if err := s.store.RecordScan(ctx, entry); err != nil {
		s.log.WithError(fmt.Errorf("record scan: %w", err)).WithField("link_id", l.ID).
			Error("scan log insert failed")
		return
	}
	l.ScanCount++
	l.LastScannedAt = &at
	l.LastScannedBy = by
	l.LastScanIP = sc.IP
}
