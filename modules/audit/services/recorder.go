package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/backoffice/modules/audit/domain/auditsession"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/pkg/composables"
)

const redactedValue = "<redacted>"

// RecordParams describes one mutation to file in the audit trail.
type RecordParams struct {
	ActorID      uuid.UUID
	Action       auditentry.Action `validate:"required,oneof=create update delete approve_edit"`
	ResourceType resource.Type     `validate:"required,oneof=flights transfers parcels translations other_services"`
	ResourceID   string            `validate:"required,max=255"`
	OldValues    *fv.Object
	NewValues    *fv.Object
	Attribution  Attribution
	DisplayID    string `validate:"max=255"`
}

// AuditRecorder writes append-only audit entries.
type AuditRecorder struct {
	repo            auditentry.Repository
	now             clock
	defaultPageSize int
	maxPageSize     int
}

func NewAuditRecorder(repo auditentry.Repository) *AuditRecorder {
	return &AuditRecorder{
		repo:            repo,
		now:             utcNow,
		defaultPageSize: 50,
		maxPageSize:     500,
	}
}

// WithPaging overrides the default and maximum page sizes of List.
func (r *AuditRecorder) WithPaging(pageSize, maxPageSize int) *AuditRecorder {
	if pageSize > 0 {
		r.defaultPageSize = pageSize
	}
	if maxPageSize > 0 {
		r.maxPageSize = maxInt(maxPageSize, r.defaultPageSize)
	}
	return r
}

// Record validates p, redacts secrets from both snapshots, computes the changed
// keys and the old to new JSON patch, and persists the entry.
func (r *AuditRecorder) Record(ctx context.Context, p RecordParams) (*auditentry.AuditEntry, error) {
	if err := validate(p); err != nil {
		return nil, err
	}
	if p.ActorID == uuid.Nil {
		return nil, invalidPayload("actor is required")
	}
	if !p.Action.Valid() {
		return nil, invalidPayload("unknown audit action")
	}
	switch {
	case p.Action == auditentry.ActionCreate && p.OldValues != nil:
		return nil, invalidPayload("create entries carry no previous values")
	case p.Action == auditentry.ActionDelete && p.NewValues != nil:
		return nil, invalidPayload("delete entries carry no new values")
	}

	oldValues := redact(p.OldValues)
	newValues := redact(p.NewValues)

	meta := fv.NewObject().
		Set(auditentry.MetaRequestID, fv.String(p.Attribution.RequestID)).
		Set(auditentry.MetaReason, fv.String(p.Attribution.Reason))
	displayID := p.DisplayID
	if displayID == "" {
		displayID = p.Attribution.DisplayID
	}
	if displayID != "" {
		meta.Set(auditentry.MetaDisplayID, fv.String(displayID))
	}
	meta.Set(auditentry.MetaChangedKeys, changedKeys(oldValues, newValues))
	patch, err := jsonPatch(oldValues, newValues)
	if err != nil {
		return nil, errors.Wrap(err, "compute audit patch")
	}
	meta.Set(auditentry.MetaPatch, patch)

	e := &auditentry.AuditEntry{
		ActorID:      p.ActorID,
		Action:       p.Action,
		ResourceType: p.ResourceType,
		ResourceID:   p.ResourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		Metadata:     meta,
		CreatedAt:    r.now(),
	}
	err = r.repo.Create(ctx, e)
	recordAuditEntry(string(p.Action), err)
	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"resource_type": p.ResourceType,
		"resource_id":   p.ResourceID,
		"actor_id":      p.ActorID,
		"action":        p.Action,
		"request_id":    p.Attribution.RequestID,
	})
	if err != nil {
		logger.WithError(err).Error("failed to write audit entry")
		return nil, errors.Wrap(err, "write audit entry")
	}
	logger.WithField("seq", e.Seq).Debug("audit entry written")
	return e, nil
}

// AuditQuery filters the audit trail for review screens.
type AuditQuery struct {
	ResourceType resource.Type
	ResourceID   string
	ActorID      *uuid.UUID
	Action       auditentry.Action
	RequestID    string
	DisplayID    string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

func (q AuditQuery) findParams(limit int) *auditentry.FindParams {
	return &auditentry.FindParams{
		ResourceType: q.ResourceType,
		ResourceID:   q.ResourceID,
		ActorID:      q.ActorID,
		Action:       q.Action,
		RequestID:    strings.TrimSpace(q.RequestID),
		DisplayID:    strings.TrimSpace(q.DisplayID),
		From:         q.From,
		To:           q.To,
		Limit:        limit,
		Offset:       maxInt(q.Offset, 0),
	}
}

// List returns matching entries newest first together with the total count.
func (r *AuditRecorder) List(ctx context.Context, q AuditQuery) ([]*auditentry.AuditEntry, int64, error) {
	if q.Action != "" && !q.Action.Valid() {
		return nil, 0, invalidPayload("unknown audit action")
	}
	params := q.findParams(clampLimit(q.Limit, r.defaultPageSize, r.maxPageSize))
	entries, err := r.repo.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.repo.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func changedKeys(oldValues, newValues *fv.Object) fv.Value {
	var changes []auditsession.Change
	if newValues == nil {
		changes = auditsession.Removed(oldValues, auditsession.Options{})
	} else {
		changes = auditsession.Diff(oldValues, newValues, auditsession.Options{})
	}
	keys := make([]fv.Value, 0, len(changes))
	for _, c := range changes {
		keys = append(keys, fv.String(c.Key))
	}
	return fv.Array(keys...)
}

func jsonPatch(oldValues, newValues *fv.Object) (fv.Value, error) {
	source, err := oldValues.MarshalJSON()
	if err != nil {
		return fv.Value{}, err
	}
	target, err := newValues.MarshalJSON()
	if err != nil {
		return fv.Value{}, err
	}
	patch, err := jsondiff.CompareJSON(source, target)
	if err != nil {
		return fv.Value{}, err
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return fv.Value{}, err
	}
	var v fv.Value
	if err := v.UnmarshalJSON(raw); err != nil {
		return fv.Value{}, err
	}
	return v, nil
}

func redact(o *fv.Object) *fv.Object {
	if o == nil {
		return nil
	}
	out := fv.NewObject()
	o.Range(func(k string, v fv.Value) bool {
		if isSensitiveKey(k) {
			out.Set(k, fv.String(redactedValue))
			return true
		}
		out.Set(k, redactValue(v))
		return true
	})
	return out
}

func redactValue(v fv.Value) fv.Value {
	if obj, ok := v.Object(); ok {
		return fv.ObjectOf(redact(obj))
	}
	if items, ok := v.Items(); ok {
		out := make([]fv.Value, len(items))
		for i, item := range items {
			out[i] = redactValue(item)
		}
		return fv.Array(out...)
	}
	return v
}

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"passwd":        {},
	"secret":        {},
	"token":         {},
	"api_key":       {},
	"apikey":        {},
	"private_key":   {},
	"client_secret": {},
}

var sensitiveSuffixes = []string{"_password", "_secret", "_token", "_api_key", "_private_key"}

// isSensitiveKey matches credential names exactly or by suffix, so business
// fields such as tokens_used keep their values.
func isSensitiveKey(key string) bool {
	k := snakeKey(key)
	if _, ok := sensitiveKeys[k]; ok {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}

// snakeKey lower-cases camelCase and kebab-case keys into snake_case.
func snakeKey(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '-' || r == ' ':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
