package modules

import (
	"github.com/iota-uz/backoffice/modules/audit"
	"github.com/iota-uz/backoffice/pkg/application"
)

// BuiltInModules returns the modules served by every entrypoint.
func BuiltInModules(auditOptions *audit.ModuleOptions) []application.Module {
	return []application.Module{
		audit.NewModule(auditOptions),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	return application.Load(app, externalModules...)
}
