package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/BBbrighton/qr-suite/internal/core"
	"github.com/BBbrighton/qr-suite/internal/http/middleware"
)

// RecordWriter upserts the target records links point to.
type RecordWriter interface {
	PutRecord(ctx context.Context, targetType, name string, fields map[string]string) error
}

type Handlers struct {
	svc     *core.Service
	records RecordWriter
	log     logrus.FieldLogger
}

func NewHandlers(svc *core.Service, records RecordWriter, log logrus.FieldLogger) *Handlers {
	return &Handlers{svc: svc, records: records, log: log}
}

// linkView is a LinkRecord plus the payload a renderer should encode.
type linkView struct {
	*core.LinkRecord
	Payload string `json:"payload"`
}

func view(l *core.LinkRecord) linkView {
	return linkView{LinkRecord: l, Payload: l.Payload()}
}

// ---- endpoints ----

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Scan is the front door: GET /qr?token=... or ?target_doctype=...&target_name=...
func (h *Handlers) Scan(c *gin.Context) {
	req := core.ResolveRequest{
		Token:      firstQuery(c, "token", "t"),
		TargetType: firstQuery(c, "target_doctype", "doctype"),
		TargetName: firstQuery(c, "target_name", "name"),
		Principal:  middleware.Principal(c),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
	out, err := h.svc.Resolve(c.Request.Context(), req)
	if err != nil {
		h.scanError(c, err)
		return
	}
	// Never 301: a revoked link must stop working on the next scan.
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, out.URL)
}

func (h *Handlers) Mint(c *gin.Context) {
	var in core.MintRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	rec, err := h.svc.Mint(c.Request.Context(), middleware.Principal(c), in)
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view(rec))
}

func (h *Handlers) GetLink(c *gin.Context) {
	rec, err := h.svc.Link(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, view(rec))
}

func (h *Handlers) ListScans(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	scans, err := h.svc.Scans(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.apiError(c, err)
		return
	}
	if scans == nil {
		scans = []*core.ScanLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (h *Handlers) Revoke(c *gin.Context) {
	rec, err := h.svc.Revoke(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, view(rec))
}

// PutRecord upserts a target record. The body is a flat JSON object of
// readable fields and may be empty.
func (h *Handlers) PutRecord(c *gin.Context) {
	typ, name := strings.TrimSpace(c.Param("type")), strings.TrimSpace(c.Param("name"))
	if typ == "" || name == "" {
		jsonError(c, http.StatusBadRequest, "record type and name are required")
		return
	}
	var fields map[string]string
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&fields); err != nil {
			jsonError(c, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	if err := h.records.PutRecord(c.Request.Context(), typ, name, fields); err != nil {
		h.log.WithError(err).WithField("record", typ+"/"+name).Error("put record failed")
		jsonError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"target_type": typ, "name": name, "fields": fields})
}

// ---- helpers ----

func firstQuery(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Query(k)); v != "" {
			return v
		}
	}
	return ""
}

// apiError maps service errors for the JSON API. Only typed failures carry
// their message; anything else is logged and reported as a bare 500.
func (h *Handlers) apiError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrTargetNotFound), core.IsNotFound(err):
		jsonError(c, http.StatusNotFound, err.Error())
	case core.IsCreation(err):
		jsonError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrForbidden):
		jsonError(c, http.StatusForbidden, err.Error())
	case core.IsAlreadyRevoked(err):
		jsonError(c, http.StatusConflict, err.Error())
	default:
		h.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		jsonError(c, http.StatusInternalServerError, "internal error")
	}
}

func jsonError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
