package audit

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/backoffice/modules/audit/domain/entities/auditentry"
	"github.com/iota-uz/backoffice/modules/audit/domain/entities/editgrant"
	"github.com/iota-uz/backoffice/modules/audit/domain/resource"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/invalidation"
	"github.com/iota-uz/backoffice/modules/audit/infrastructure/persistence"
	"github.com/iota-uz/backoffice/modules/audit/presentation/controllers"
	"github.com/iota-uz/backoffice/modules/audit/services"
	"github.com/iota-uz/backoffice/pkg/application"
	"github.com/iota-uz/backoffice/pkg/authz"
	"github.com/iota-uz/backoffice/pkg/configuration"
)

// LabelFields are tried in order to derive the human-readable label of a record.
var LabelFields = []string{"display_id", "flight_number", "reference", "code", "name"}

type ModuleOptions struct {
	EditGrants        configuration.EditGrantOptions
	ResourceStore     string
	InvalidationTopic string
	PageSize          int
	MaxPageSize       int
	// InvalidationEnabled re-publishes change signals on InvalidationTopic. Requires Redis.
	InvalidationEnabled bool
	// Redis backs the redis resource store and the invalidation publisher. Optional.
	Redis *redis.Client
	// Authz overrides the policy service built from the default configuration.
	Authz *authz.Service
	// Store overrides the store selected by ResourceStore.
	Store resource.Store
}

// OptionsFromConfig maps the environment configuration onto module options.
func OptionsFromConfig(conf *configuration.Configuration) *ModuleOptions {
	return &ModuleOptions{
		EditGrants:          conf.EditGrants,
		ResourceStore:       conf.ResourceStore,
		InvalidationTopic:   conf.InvalidationTopic,
		InvalidationEnabled: conf.InvalidationEnabled,
		PageSize:            conf.PageSize,
		MaxPageSize:         conf.MaxPageSize,
	}
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) repositories(app application.Application) (editgrant.Repository, auditentry.Repository) {
	if app.DB() == nil {
		return persistence.NewInmemEditGrantRepository(), persistence.NewInmemAuditLogRepository()
	}
	return persistence.NewEditGrantRepository(), persistence.NewAuditLogRepository()
}

func (m *Module) store(app application.Application) (resource.Store, error) {
	if m.options.Store != nil {
		return m.options.Store, nil
	}
	switch m.options.ResourceStore {
	case configuration.ResourceStoreMemory:
		return persistence.NewMemoryResourceStore(), nil
	case configuration.ResourceStoreRedis:
		if m.options.Redis == nil {
			return nil, fmt.Errorf("resource store %q requires a redis client", m.options.ResourceStore)
		}
		return persistence.NewRedisResourceStore(m.options.Redis), nil
	case configuration.ResourceStorePostgres, "":
		if app.DB() == nil {
			return nil, fmt.Errorf("resource store %q requires a database pool", configuration.ResourceStorePostgres)
		}
		return persistence.NewPostgresResourceStore(), nil
	}
	return nil, fmt.Errorf("unknown resource store %q", m.options.ResourceStore)
}

func (m *Module) Register(app application.Application) error {
	authzService := m.options.Authz
	if authzService == nil {
		svc, err := authz.NewService(authz.Config{Logger: app.Logger()})
		if err != nil {
			return err
		}
		authzService = svc
	}
	store, err := m.store(app)
	if err != nil {
		return err
	}
	grantRepo, auditRepo := m.repositories(app)

	bus := app.EventPublisher()
	if m.options.InvalidationEnabled {
		if m.options.Redis == nil {
			return fmt.Errorf("invalidation fan-out requires a redis client")
		}
		publisher := invalidation.NewRedisPublisher(m.options.Redis, m.options.InvalidationTopic)
		bus.Subscribe(publisher.Handle)
	}
	invalidator := services.NewBusInvalidator(bus)
	labeler := resource.FieldLabeler{Fields: LabelFields}

	recorder := services.NewAuditRecorder(auditRepo).WithPaging(m.options.PageSize, m.options.MaxPageSize)
	grantService := services.NewGrantService(grantRepo, recorder, store, authzService, services.GrantOptions{
		TTL:         m.options.EditGrants.TTL,
		Labeler:     labeler,
		Publisher:   bus,
		Invalidator: invalidator,
		PageSize:    m.options.PageSize,
		MaxPageSize: m.options.MaxPageSize,
	})
	gate := services.NewMutationGate(services.ContextActors{}, authzService, grantService, recorder, store, services.GateOptions{
		RestoreOnWriteFailure: m.options.EditGrants.RestoreOnWriteFailure,
		Labeler:               labeler,
		Invalidator:           invalidator,
	})

	app.RegisterServices(
		authzService,
		recorder,
		grantService,
		gate,
		services.NewHistoryService(auditRepo, authzService),
	)
	if seeder, ok := store.(persistence.Seeder); ok {
		app.RegisterServices(&Records{Seeder: seeder})
	}

	app.RegisterControllers(
		controllers.NewEditGrantsController(app),
		controllers.NewResourcesController(app),
		controllers.NewAuditController(app),
	)
	return nil
}

func (m *Module) Name() string {
	return "audit"
}

// Records exposes unaudited record seeding to tooling.
type Records struct {
	persistence.Seeder
}
