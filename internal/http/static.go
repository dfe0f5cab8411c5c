package http

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BBbrighton/qr-suite/internal/core"
)

// Scan error titles shown to whoever pointed a camera at the code.
const (
	titleNotFound = "QR Code Not Found"
	titleExpired  = "QR Code Expired"
	titleError    = "QR Error"
)

var errorPage = template.Must(template.New("qr-error").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width,initial-scale=1"/>
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;margin:0;padding:2rem;background:#0b0b0c;color:#e8e8ea}
.container{max-width:520px;margin:10vh auto 0}
.card{background:#151517;border:1px solid #2b2b2f;border-radius:12px;padding:1.5rem}
h1{font-size:1.25rem;margin:0 0 .75rem}
p{margin:0 0 1rem;opacity:.85}
a{color:#97b3ff}
small{opacity:.6}
</style>
</head>
<body>
<div class="container">
  <div class="card">
    <h1>{{.Title}}</h1>
    <p>{{.Message}}</p>
    <p><a href="{{.Home}}">Go to home page</a></p>
    <small>HTTP {{.Status}}</small>
  </div>
</div>
</body>
</html>`))

type errorView struct {
	Status  int
	Title   string
	Message string
	Home    string
}

// scanError renders a failed scan as an HTML page for browsers and as JSON
// for everything else. Internal failures are logged, never shown.
func (h *Handlers) scanError(c *gin.Context, err error) {
	v := errorView{Home: h.svc.BaseURL() + "/"}
	var state *core.LinkStateError
	switch {
	case core.IsMissingReference(err):
		v.Status, v.Title, v.Message = http.StatusNotFound, titleNotFound, "Missing token or document reference."
	case core.IsNotFound(err):
		v.Status, v.Title, v.Message = http.StatusNotFound, titleNotFound, "Invalid or unknown QR code."
	case errors.As(err, &state) && state.Status == core.StatusExpired:
		v.Status, v.Title, v.Message = http.StatusGone, titleExpired, "This QR code has expired."
	case core.IsExpired(err):
		v.Status, v.Title, v.Message = http.StatusGone, titleExpired, "This QR code is disabled."
	default:
		h.log.WithError(err).WithField("query", c.Request.URL.RawQuery).Error("qr resolution failed")
		v.Status, v.Title, v.Message = http.StatusInternalServerError, titleError, "Something went wrong while opening this QR code."
	}

	c.Header("Cache-Control", "no-store")
	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		var buf bytes.Buffer
		if err := errorPage.Execute(&buf, v); err == nil {
			c.Data(v.Status, "text/html; charset=utf-8", buf.Bytes())
			c.Abort()
			return
		}
	}
	c.AbortWithStatusJSON(v.Status, gin.H{"error": v.Title, "message": v.Message})
}
