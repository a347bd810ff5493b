package dtos

import (
	fv "github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
)

type UpdateResourceDTO struct {
	Changes *fv.Object `json:"changes"`
}

type ChangeStatusDTO struct {
	Status fv.Value `json:"status"`
}
