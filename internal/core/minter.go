package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mint validates in, builds the link payload and persists exactly one Active
// record.
func (s *Service) Mint(ctx context.Context, principal Principal, in MintRequest) (*LinkRecord, error) {
	in.TargetType = strings.TrimSpace(in.TargetType)
	in.TargetName = strings.TrimSpace(in.TargetName)
	if in.TargetType == "" || in.TargetName == "" {
		return nil, fmt.Errorf("%w: target type and name are required", ErrInvalidInput)
	}
	if in.Kind == "" {
		in.Kind = DocumentQR
	}
	if in.Kind != DocumentQR && in.Kind != ValueQR {
		return nil, fmt.Errorf("%w: unknown qr kind %q", ErrInvalidInput, in.Kind)
	}
	if s.canGenerate != nil && !s.canGenerate(in.TargetType, principal) {
		return nil, ErrForbidden
	}

	exists, err := s.targets.Exists(ctx, in.TargetType, in.TargetName)
	if err != nil {
		return nil, internalErr("check target", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s %s", ErrTargetNotFound, in.TargetType, in.TargetName)
	}

	var tpl *Template
	if in.Template != "" {
		var ok bool
		if s.templates != nil {
			tpl, ok = s.templates.Template(ctx, in.Template)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, in.Template)
		}
	}

	now := s.nowFunc().UTC()
	rec := &LinkRecord{
		ID:           uuid.NewString(),
		TargetKind:   in.Kind,
		TargetType:   in.TargetType,
		TargetName:   in.TargetName,
		Template:     in.Template,
		IncludeLabel: in.IncludeLabel,
		LabelText:    in.LabelText,
		Status:       StatusActive,
		CreatedAt:    now,
	}
	if rec.IncludeLabel && rec.LabelText == "" {
		rec.LabelText = rec.TargetName
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		rec.ExpiresAt = &exp
	}

	switch in.Kind {
	case DocumentQR:
		if err := s.prepareDocument(rec, in, tpl, now); err != nil {
			return nil, err
		}
		if rec.AddressMode == AddressToken {
			return s.insertWithToken(ctx, rec)
		}
	case ValueQR:
		if err := s.prepareValue(ctx, rec, in, tpl); err != nil {
			return nil, err
		}
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, internalErr("create link", err)
	}
	s.log.WithField("link_id", rec.ID).WithField("target", rec.TargetType+"/"+rec.TargetName).
		Info("minted qr link")
	return rec, nil
}

func (s *Service) prepareDocument(rec *LinkRecord, in MintRequest, tpl *Template, now time.Time) error {
	action := strings.TrimSpace(in.Action)
	if action == "" {
		action = DefaultAction(in.TargetType)
	}
	if !KnownAction(action) {
		action = ActionView
	}
	rec.Action = action

	mode := in.AddressMode
	if mode == "" && tpl != nil {
		mode = tpl.URLMode
	}
	if mode == "" {
		mode = AddressToken
	}
	if mode != AddressToken && mode != AddressDirect {
		return fmt.Errorf("%w: unknown address mode %q", ErrInvalidInput, mode)
	}
	rec.AddressMode = mode
	rec.RedirectURL = strings.TrimSpace(in.RedirectURL)
	rec.TargetURL = ActionRoute(action, rec.TargetType, rec.TargetName)

	if mode == AddressDirect {
		prefix := strings.TrimRight(strings.TrimSpace(in.CustomURLPrefix), "/")
		rec.CustomURLPrefix = prefix
		rec.ExtraParams = in.ExtraParams
		if prefix == "" {
			prefix = s.baseURL
		}
		rec.QRURL = AppendParams(prefix+rec.TargetURL, in.ExtraParams)
	}

	if rec.ExpiresAt == nil && tpl != nil && tpl.TokenExpiryDays > 0 {
		exp := now.AddDate(0, 0, tpl.TokenExpiryDays)
		rec.ExpiresAt = &exp
	}
	return nil
}

func (s *Service) prepareValue(ctx context.Context, rec *LinkRecord, in MintRequest, tpl *Template) error {
	content := in.CustomValue
	if content == "" {
		field := in.ValueField
		if field == "" && tpl != nil {
			field = tpl.ValueField
		}
		if field != "" {
			v, ok, err := s.targets.ReadField(ctx, rec.TargetType, rec.TargetName, field)
			if err != nil {
				return internalErr("read target field", err)
			}
			if !ok {
				return fmt.Errorf("%w: %s.%s", ErrInvalidTargetField, rec.TargetType, field)
			}
			content = v
		}
	}
	if content == "" {
		content = rec.TargetName
	}
	if strings.TrimSpace(content) == "" {
		return ErrMissingValueContent
	}
	rec.ValueContent = content
	if rec.LabelText == "" {
		rec.LabelText = content
	}
	return nil
}

// insertWithToken generates tokens until the store accepts one.
func (s *Service) insertWithToken(ctx context.Context, rec *LinkRecord) (*LinkRecord, error) {
	for i := 0; i < generateRetries; i++ {
		token, err := s.gen.NewToken(ctx)
		if err != nil {
			return nil, internalErr("generate token", err)
		}
		rec.Token = token
		rec.QRURL = s.baseURL + "/qr?token=" + url.QueryEscape(token)
		err = s.store.Create(ctx, rec)
		if err == nil {
			s.log.WithField("link_id", rec.ID).WithField("target", rec.TargetType+"/"+rec.TargetName).
				Info("minted qr link")
			return rec, nil
		}
		if !IsConflict(err) {
			return nil, internalErr("create link", err)
		}
		s.log.WithField("attempt", i+1).Warn("token collision, regenerating")
	}
	return nil, ErrConflict
}
