package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/BBbrighton/qr-suite/internal/app"
	"github.com/BBbrighton/qr-suite/internal/config"
)

type testEnv struct {
	base    string
	client  *http.Client
	manager string // bearer token holding QR Manager
	clerk   string // bearer token without a QR role
}

func newTestServer(t *testing.T) (*testEnv, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Port:        0,
		BaseURL:     "http://example",
		TokenBytes:  32,
		HookTimeout: time.Second,
	}
	cfg.DB.Driver = "sqlite"
	cfg.DB.Path = ":memory:"
	cfg.JWT.Secret = "test-secret"
	cfg.Permissions.Doctypes = config.DefaultDoctypes
	cfg.Permissions.Roles = config.DefaultRoles

	log := logrus.New()
	log.SetOutput(io.Discard)
	a, err := app.NewWithLogger(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	manager, _ := a.Auth.Issue("manager@example.com", []string{"QR Manager"}, time.Hour)
	clerk, _ := a.Auth.Issue("clerk@example.com", []string{"Accounts User"}, time.Hour)

	srv := httptest.NewServer(a.Router)
	env := &testEnv{
		base: srv.URL,
		client: &http.Client{
			// Redirects are asserted, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		manager: manager,
		clerk:   clerk,
	}
	cleanup := func() {
		srv.Close()
		_ = a.Close()
	}
	return env, cleanup
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, header ...string) (*http.Response, []byte) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewBuffer(b)
	}
	req, _ := http.NewRequest(method, e.base+path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	res, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	return res, data
}

type linkResp struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	QRURL     string `json:"qr_url"`
	Status    string `json:"status"`
	ScanCount int64  `json:"scan_count"`
	Payload   string `json:"payload"`
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func (e *testEnv) seed(t *testing.T, typ, name string) {
	t.Helper()
	res, body := e.do(t, http.MethodPut, "/api/records/"+typ+"/"+name, e.manager, map[string]string{"barcode": "0042"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("seed %s/%s: %d %s", typ, name, res.StatusCode, body)
	}
}

func (e *testEnv) mint(t *testing.T, req map[string]any) linkResp {
	t.Helper()
	res, body := e.do(t, http.MethodPost, "/api/links", e.manager, req)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("mint: %d %s", res.StatusCode, body)
	}
	return decode[linkResp](t, body)
}

func TestQRSuite_EndToEnd(t *testing.T) {
	env, done := newTestServer(t)
	defer done()

	// health
	if res, _ := env.do(t, http.MethodGet, "/health", "", nil); res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}

	env.seed(t, "Item", "ITEM-001")
	l := env.mint(t, map[string]any{"target_type": "Item", "target_name": "ITEM-001", "action": "view"})
	if l.Status != "Active" || l.Token == "" || l.QRURL != "http://example/qr?token="+l.Token || l.Payload != l.QRURL {
		t.Fatalf("unexpected mint response: %+v", l)
	}

	// token, alias and target pair all land on the form
	for _, q := range []string{
		"/qr?token=" + l.Token,
		"/qr?t=" + l.Token,
		"/qr?target_doctype=Item&target_name=ITEM-001",
		"/qr?doctype=Item&name=ITEM-001",
	} {
		res, _ := env.do(t, http.MethodGet, q, "", nil)
		if res.StatusCode != http.StatusFound {
			t.Fatalf("GET %s: status %d, want 302", q, res.StatusCode)
		}
		if loc := res.Header.Get("Location"); loc != "http://example/app/item/ITEM-001" {
			t.Fatalf("GET %s: Location = %q", q, loc)
		}
	}

	// audit
	res, body := env.do(t, http.MethodGet, "/api/links/"+l.ID, env.manager, nil)
	if res.StatusCode != http.StatusOK || decode[linkResp](t, body).ScanCount != 4 {
		t.Fatalf("link metadata: %d %s", res.StatusCode, body)
	}
	res, body = env.do(t, http.MethodGet, "/api/links/"+l.ID+"/scans?limit=2", env.manager, nil)
	scans := decode[struct {
		Scans []struct {
			ScannedBy   string `json:"scanned_by"`
			Destination string `json:"destination"`
		} `json:"scans"`
	}](t, body)
	if res.StatusCode != http.StatusOK || len(scans.Scans) != 2 || scans.Scans[0].ScannedBy != "Guest" {
		t.Fatalf("scans: %d %s", res.StatusCode, body)
	}

	// revoke, then revoke again
	res, _ = env.do(t, http.MethodPost, "/api/links/"+l.ID+"/revoke", env.manager, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("revoke: %d", res.StatusCode)
	}
	res, _ = env.do(t, http.MethodPost, "/api/links/"+l.ID+"/revoke", env.manager, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second revoke: %d, want 409", res.StatusCode)
	}
	res, body = env.do(t, http.MethodGet, "/qr?token="+l.Token, "", nil)
	if res.StatusCode != http.StatusGone {
		t.Fatalf("revoked scan: %d, want 410", res.StatusCode)
	}
	msg := decode[map[string]string](t, body)
	if msg["error"] != "QR Code Expired" || msg["message"] != "This QR code is disabled." {
		t.Fatalf("revoked body = %v", msg)
	}
}

func TestQRSuite_ScanErrors(t *testing.T) {
	env, done := newTestServer(t)
	defer done()
	env.seed(t, "Asset", "AST-1")

	res, body := env.do(t, http.MethodGet, "/qr", "", nil)
	if res.StatusCode != http.StatusNotFound || decode[map[string]string](t, body)["error"] != "QR Code Not Found" {
		t.Fatalf("missing reference: %d %s", res.StatusCode, body)
	}

	res, body = env.do(t, http.MethodGet, "/qr?token=nope", "", nil, "Accept", "text/html,application/xhtml+xml")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown token: %d", res.StatusCode)
	}
	if !strings.HasPrefix(res.Header.Get("Content-Type"), "text/html") || !strings.Contains(string(body), "QR Code Not Found") {
		t.Fatalf("browser did not get the html page: %s", body)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	l := env.mint(t, map[string]any{"target_type": "Asset", "target_name": "AST-1", "expires_at": past})
	res, body = env.do(t, http.MethodGet, "/qr?token="+l.Token, "", nil)
	if res.StatusCode != http.StatusGone || decode[map[string]string](t, body)["message"] != "This QR code has expired." {
		t.Fatalf("expired scan: %d %s", res.StatusCode, body)
	}
	_, body = env.do(t, http.MethodGet, "/api/links/"+l.ID, env.manager, nil)
	if decode[linkResp](t, body).Status != "Expired" {
		t.Fatalf("expiry not persisted: %s", body)
	}
}

func TestQRSuite_MintAuthorization(t *testing.T) {
	env, done := newTestServer(t)
	defer done()
	env.seed(t, "Asset", "AST-1")
	req := map[string]any{"target_type": "Asset", "target_name": "AST-1"}

	if res, _ := env.do(t, http.MethodPost, "/api/links", "", req); res.StatusCode != http.StatusForbidden {
		t.Fatalf("guest mint: %d, want 403", res.StatusCode)
	}
	if res, _ := env.do(t, http.MethodPost, "/api/links", env.clerk, req); res.StatusCode != http.StatusForbidden {
		t.Fatalf("clerk mint: %d, want 403", res.StatusCode)
	}
	if res, _ := env.do(t, http.MethodPost, "/api/links", "garbage", req); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token mint: %d, want 401", res.StatusCode)
	}
	unknown := map[string]any{"target_type": "Asset", "target_name": "AST-404"}
	if res, _ := env.do(t, http.MethodPost, "/api/links", env.manager, unknown); res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown target: %d, want 404", res.StatusCode)
	}
	disabled := map[string]any{"target_type": "Project", "target_name": "P-1"}
	if res, _ := env.do(t, http.MethodPost, "/api/links", env.manager, disabled); res.StatusCode != http.StatusForbidden {
		t.Fatalf("disabled type: %d, want 403", res.StatusCode)
	}
	value := map[string]any{"target_type": "Asset", "target_name": "AST-1", "kind": "Value QR", "value_field": "colour"}
	if res, _ := env.do(t, http.MethodPost, "/api/links", env.manager, value); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("absent field: %d, want 400", res.StatusCode)
	}

	if res, _ := env.do(t, http.MethodPut, "/api/records/Asset/AST-2", "", nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("guest record write: %d, want 401", res.StatusCode)
	}
	if res, _ := env.do(t, http.MethodPut, "/api/records/Asset/AST-2", env.clerk, nil); res.StatusCode != http.StatusForbidden {
		t.Fatalf("clerk record write: %d, want 403", res.StatusCode)
	}
}
