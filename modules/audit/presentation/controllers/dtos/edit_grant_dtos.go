package dtos

import (
	"net/url"
	"strings"

	"github.com/go-playground/form"
	"github.com/google/uuid"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
	"github.com/iota-uz/backoffice/modules/audit/services"
	"github.com/iota-uz/backoffice/pkg/serrors"
)

var queryDecoder = form.NewDecoder()

// DecodeQuery fills dst from URL query values using `form` tags.
func DecodeQuery(dst any, values url.Values) error {
	if err := queryDecoder.Decode(dst, values); err != nil {
		return serrors.NewError(services.CodeValidation, "invalid query parameters", "Errors.Validation")
	}
	return nil
}

func invalidField(field, msg string) error {
	return serrors.NewError(services.CodeValidation, msg, "Errors.Validation").
		WithTemplateData(map[string]string{field: msg})
}

func parseOptionalUUID(field, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalidField(field, field+" must be a UUID")
	}
	return &id, nil
}

type SubmitEditGrantDTO struct {
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	Reason       string     `json:"reason"`
	Draft        *fv.Object `json:"draft,omitempty"`
	Metadata     *fv.Object `json:"metadata,omitempty"`
}

func (d *SubmitEditGrantDTO) ToParams() services.SubmitParams {
	return services.SubmitParams{
		ResourceType: resource.Type(strings.TrimSpace(d.ResourceType)),
		ResourceID:   d.ResourceID,
		Reason:       d.Reason,
		Draft:        d.Draft,
		Metadata:     d.Metadata,
	}
}

// ResourceRefDTO names one record, either in a JSON body or in the query string.
type ResourceRefDTO struct {
	ResourceType string `json:"resource_type" form:"resource_type"`
	ResourceID   string `json:"resource_id" form:"resource_id"`
}

func (d *ResourceRefDTO) ToRef() (resource.Ref, error) {
	t, err := resource.ParseType(d.ResourceType)
	if err != nil {
		return resource.Ref{}, invalidField("resource_type", err.Error())
	}
	id := strings.TrimSpace(d.ResourceID)
	if id == "" {
		return resource.Ref{}, invalidField("resource_id", "resource_id is required")
	}
	return resource.Ref{Type: t, ID: id}, nil
}

type ListEditGrantsDTO struct {
	Status       string `form:"status"`
	ResourceType string `form:"resource_type"`
	ResourceID   string `form:"resource_id"`
	RequesterID  string `form:"requester_id"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

func (d *ListEditGrantsDTO) ToParams() (services.ListGrantsParams, error) {
	requester, err := parseOptionalUUID("requester_id", d.RequesterID)
	if err != nil {
		return services.ListGrantsParams{}, err
	}
	return services.ListGrantsParams{
		Status:       editgrant.Status(strings.ToLower(strings.TrimSpace(d.Status))),
		ResourceType: resource.Type(strings.ToLower(strings.TrimSpace(d.ResourceType))),
		ResourceID:   strings.TrimSpace(d.ResourceID),
		RequesterID:  requester,
		Limit:        d.Limit,
		Offset:       d.Offset,
	}, nil
}
