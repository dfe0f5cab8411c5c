// Package hook lets an external service override where a scan lands.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BBbrighton/qr-suite/internal/core"
)

// maxBody caps how much of a hook response is read.
const maxBody = 64 << 10

// Request is the JSON body posted to the hook.
type Request struct {
	LinkID      string           `json:"link_id"`
	TargetKind  core.TargetKind  `json:"target_kind"`
	TargetType  string           `json:"target_type"`
	TargetName  string           `json:"target_name"`
	Action      string           `json:"action,omitempty"`
	AddressMode core.AddressMode `json:"address_mode,omitempty"`
	TargetURL   string           `json:"target_url,omitempty"`
	Template    string           `json:"template,omitempty"`
}

// Response is what the hook answers. Any of the keys may carry the
// destination; the first non-empty one wins.
type Response struct {
	RedirectURL string `json:"redirect_url"`
	URL         string `json:"url"`
	QRURL       string `json:"qr_url"`
	TargetURL   string `json:"target_url"`
}

func (r Response) destination() string {
	for _, u := range []string{r.RedirectURL, r.URL, r.QRURL, r.TargetURL} {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// Webhook posts each resolved link to URL and uses the returned destination.
// A 204 or an empty body means no override.
type Webhook struct {
	URL    string
	Client *http.Client
}

// New returns a Webhook for url using client, or http.DefaultClient when nil.
func New(url string, client *http.Client) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{URL: url, Client: client}
}

// Destination implements core.OverrideHook.
func (w *Webhook) Destination(ctx context.Context, l *core.LinkRecord) (string, error) {
	body, err := json.Marshal(Request{
		LinkID:      l.ID,
		TargetKind:  l.TargetKind,
		TargetType:  l.TargetType,
		TargetName:  l.TargetName,
		Action:      l.Action,
		AddressMode: l.AddressMode,
		TargetURL:   l.TargetURL,
		Template:    l.Template,
	})
	if err != nil {
		return "", fmt.Errorf("encode hook request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build hook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := w.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call hook: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return "", nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", fmt.Errorf("hook returned %s", res.Status)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("read hook response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil
	}
	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode hook response: %w", err)
	}
	return out.destination(), nil
}

var _ core.OverrideHook = (*Webhook)(nil)
