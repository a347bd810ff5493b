package dtos

import (
	"strings"
	"time"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/services"
)

type ListAuditEntriesDTO struct {
	ResourceType string `form:"resource_type"`
	ResourceID   string `form:"resource_id"`
	ActorID      string `form:"actor_id"`
	Action       string `form:"action"`
	RequestID    string `form:"request_id"`
	DisplayID    string `form:"display_id"`
	From         string `form:"from"`
	To           string `form:"to"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

func parseOptionalTime(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, invalidField(field, field+" must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}

func (d *ListAuditEntriesDTO) ToQuery() (services.AuditQuery, error) {
	actor, err := parseOptionalUUID("actor_id", d.ActorID)
	if err != nil {
		return services.AuditQuery{}, err
	}
	from, err := parseOptionalTime("from", d.From)
	if err != nil {
		return services.AuditQuery{}, err
	}
	to, err := parseOptionalTime("to", d.To)
	if err != nil {
		return services.AuditQuery{}, err
	}
	return services.AuditQuery{
		ResourceType: resource.Type(strings.ToLower(strings.TrimSpace(d.ResourceType))),
		ResourceID:   strings.TrimSpace(d.ResourceID),
		ActorID:      actor,
		Action:       auditentry.Action(strings.ToLower(strings.TrimSpace(d.Action))),
		RequestID:    d.RequestID,
		DisplayID:    d.DisplayID,
		From:         from,
		To:           to,
		Limit:        d.Limit,
		Offset:       d.Offset,
	}, nil
}

type HistoryDTO struct {
	Fields string `form:"fields"`
}

// FieldOrder splits the comma-separated fields parameter.
func (d *HistoryDTO) FieldOrder() []string {
	var out []string
	for _, f := range strings.Split(d.Fields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
