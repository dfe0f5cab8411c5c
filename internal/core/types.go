package core

import (
	"context"
	"time"
)

// TargetKind selects which payload of a link is authoritative.
type TargetKind string

const (
	DocumentQR TargetKind = "Document QR"
	ValueQR    TargetKind = "Value QR"
)

// AddressMode is meaningful only for DocumentQR links.
type AddressMode string

const (
	AddressToken  AddressMode = "token"
	AddressDirect AddressMode = "direct"
)

// Status of a link. Active is the only non-terminal state.
type Status string

const (
	StatusActive   Status = "Active"
	StatusExpired  Status = "Expired"
	StatusRevoked  Status = "Revoked"
	StatusInactive Status = "Inactive"
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusExpired, StatusRevoked, StatusInactive:
		return true
	}
	return false
}

// LinkRecord is one issued QR code and its resolution metadata.
type LinkRecord struct {
	ID          string      `json:"id"`
	TargetKind  TargetKind  `json:"target_kind"`
	TargetType  string      `json:"target_type"`
	TargetName  string      `json:"target_name"`
	AddressMode AddressMode `json:"address_mode,omitempty"`
	Token       string      `json:"token,omitempty"`
	Action      string      `json:"action,omitempty"`
	Template    string      `json:"template,omitempty"`

	CustomURLPrefix string            `json:"custom_url_prefix,omitempty"`
	ExtraParams     map[string]string `json:"extra_params,omitempty"`

	// QRURL is the payload encoded in a DocumentQR symbol.
	QRURL string `json:"qr_url,omitempty"`
	// TargetURL is the action route the link opens, relative to the base URL
	// unless a custom prefix was given.
	TargetURL string `json:"target_url,omitempty"`
	// RedirectURL, when set, wins over every computed destination.
	RedirectURL  string `json:"redirect_url,omitempty"`
	ValueContent string `json:"value_content,omitempty"`

	IncludeLabel bool   `json:"include_label,omitempty"`
	LabelText    string `json:"label_text,omitempty"`

	Status    Status     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	ScanCount     int64      `json:"scan_count"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	LastScannedBy string     `json:"last_scanned_by,omitempty"`
	LastScanIP    string     `json:"last_scan_ip,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Payload returns what the QR symbol encodes.
func (l *LinkRecord) Payload() string {
	if l.TargetKind == ValueQR {
		return l.ValueContent
	}
	return l.QRURL
}

// ScanLogEntry is an append-only audit fact for one successful resolution.
type ScanLogEntry struct {
	ID         string    `json:"id"`
	LinkID     string    `json:"link_id"`
	ScannedBy  string    `json:"scanned_by"`
	ScannedAt  time.Time `json:"scanned_at"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	TargetType string    `json:"target_type"`
	TargetName string    `json:"target_name"`
	// Destination is the absolute URL the scan was redirected to.
	Destination string `json:"destination"`
}

// Principal is the acting user of an operation.
type Principal struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

// Guest is used when a request carries no credentials.
var Guest = Principal{Name: "Guest"}

// HasRole reports whether p holds any of roles.
func (p Principal) HasRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Template is an externally managed creation policy.
type Template struct {
	Name            string      `yaml:"name" json:"name"`
	TokenExpiryDays int         `yaml:"token_expiry_days" json:"token_expiry_days"`
	ValueField      string      `yaml:"value_field" json:"value_field,omitempty"`
	URLMode         AddressMode `yaml:"url_mode" json:"url_mode,omitempty"`
}

// MintRequest is the input to create a link.
type MintRequest struct {
	TargetType string     `json:"target_type"`
	TargetName string     `json:"target_name"`
	Kind       TargetKind `json:"kind,omitempty"` // default DocumentQR
	Template   string     `json:"template,omitempty"`

	// DocumentQR options.
	Action          string            `json:"action,omitempty"`
	AddressMode     AddressMode       `json:"address_mode,omitempty"`
	CustomURLPrefix string            `json:"custom_url_prefix,omitempty"`
	ExtraParams     map[string]string `json:"extra_params,omitempty"`
	RedirectURL     string            `json:"redirect_url,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`

	// ValueQR options.
	CustomValue string `json:"custom_value,omitempty"`
	ValueField  string `json:"value_field,omitempty"`

	IncludeLabel bool   `json:"include_label,omitempty"`
	LabelText    string `json:"label_text,omitempty"`
}

// ResolveRequest carries inbound scan parameters and request context.
type ResolveRequest struct {
	Token      string
	TargetType string
	TargetName string

	Principal Principal
	IP        string
	UserAgent string
}

// Outcome is a successful resolution.
type Outcome struct {
	URL  string
	Link *LinkRecord
}

// Store abstracts persistence for link records and their scan log.
type Store interface {
	// Create inserts a new record. Must fail with ErrConflict if the token is taken.
	Create(ctx context.Context, l *LinkRecord) error
	GetByID(ctx context.Context, id string) (*LinkRecord, error)
	GetByToken(ctx context.Context, token string) (*LinkRecord, error)
	// LatestForTarget returns the most recently created link for a target.
	LatestForTarget(ctx context.Context, targetType, targetName string) (*LinkRecord, error)
	// SetStatus moves a record to status only if its current status is one of
	// from. It reports whether a row changed.
	SetStatus(ctx context.Context, id string, status Status, from ...Status) (bool, error)
	// RecordScan bumps the audit counters and appends entry atomically.
	RecordScan(ctx context.Context, entry *ScanLogEntry) error
	ListScans(ctx context.Context, linkID string, limit int) ([]*ScanLogEntry, error)
	// QueryByStatusAndExpiry lists records in status whose expiry is before t.
	QueryByStatusAndExpiry(ctx context.Context, status Status, before time.Time) ([]*LinkRecord, error)
}

// Targets answers questions about the records links point to.
type Targets interface {
	Exists(ctx context.Context, targetType, name string) (bool, error)
	// ReadField returns ok=false when the field is absent on the target.
	ReadField(ctx context.Context, targetType, name, field string) (value string, ok bool, err error)
}

// TokenGenerator creates unguessable URL-safe tokens.
type TokenGenerator interface {
	NewToken(ctx context.Context) (string, error)
}

// Templates looks up creation templates by name.
type Templates interface {
	Template(ctx context.Context, name string) (*Template, bool)
}

// PermissionFunc decides whether principal may mint links for targetType.
type PermissionFunc func(targetType string, principal Principal) bool

// OverrideHook may supply a destination for a resolved link. An empty
// string means no override.
type OverrideHook interface {
	Destination(ctx context.Context, l *LinkRecord) (string, error)
}

// HookFunc adapts a function to OverrideHook.
type HookFunc func(ctx context.Context, l *LinkRecord) (string, error)

func (f HookFunc) Destination(ctx context.Context, l *LinkRecord) (string, error) {
	return f(ctx, l)
}
