package registry

import (
	"context"
	"strings"
	"time"

	api "github.com/mohitkumar/mediaflow/api/v1"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
	c "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// ModuleRegistry is the directory of capability modules. Resolve is on the
// dispatch path and is served from a short lived cache that Register
// invalidates.
type ModuleRegistry struct {
	storage   persistence.ModuleStorage
	publisher events.Publisher
	cache     *c.Cache
}

func NewModuleRegistry(storage persistence.ModuleStorage, publisher events.Publisher, ttl time.Duration) *ModuleRegistry {
	return &ModuleRegistry{
		storage:   storage,
		publisher: publisher,
		cache:     c.New(ttl, 10*time.Minute),
	}
}

// Register upserts a module. Only id, category and version are required.
func (r *ModuleRegistry) Register(ctx context.Context, module model.ModuleCapability) (*model.ModuleCapability, error) {
	if len(strings.TrimSpace(module.Id)) == 0 {
		return nil, api.ValidationError{Field: "id", Reason: "required"}
	}
	if len(strings.TrimSpace(module.Category)) == 0 {
		return nil, api.ValidationError{Field: "category", Reason: "required"}
	}
	if len(strings.TrimSpace(module.Version)) == 0 {
		return nil, api.ValidationError{Field: "version", Reason: "required"}
	}
	if len(module.EndpointType) == 0 {
		module.EndpointType = model.ENDPOINT_INTERNAL
	}
	if len(module.Name) == 0 {
		module.Name = module.Id
	}
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now
	if existing, err := r.storage.GetModule(ctx, module.Id); err == nil {
		module.CreatedAt = existing.CreatedAt
	} else if !api.IsNotFound(err) {
		return nil, err
	}
	if err := r.storage.SaveModule(ctx, &module); err != nil {
		logger.Error("error saving module", zap.String("moduleId", module.Id), zap.Error(err))
		return nil, err
	}
	// category fallbacks are cached under whatever key resolved them
	r.cache.Flush()
	logger.Info("module registered", zap.String("moduleId", module.Id), zap.String("category", module.Category), zap.Bool("active", module.Active))
	r.publisher.Publish(ctx, model.MODULE_REGISTERED, map[string]any{
		"module_id":     module.Id,
		"category":      module.Category,
		"version":       module.Version,
		"active":        module.Active,
		"endpoint_type": string(module.EndpointType),
		"timestamp":     now,
	}, "")
	return &module, nil
}

func (r *ModuleRegistry) Get(ctx context.Context, id string) (*model.ModuleCapability, error) {
	return r.storage.GetModule(ctx, id)
}

// List returns the active modules, optionally narrowed to one category.
func (r *ModuleRegistry) List(ctx context.Context, category string) ([]*model.ModuleCapability, error) {
	modules, err := r.storage.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ModuleCapability, 0, len(modules))
	for _, m := range modules {
		if !m.Active {
			continue
		}
		if len(category) != 0 && !strings.EqualFold(m.Category, category) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Resolve returns the route of an active module. A bare category such as
// "image" resolves to the first active module of that category by id.
func (r *ModuleRegistry) Resolve(ctx context.Context, moduleId string) (*model.Route, error) {
	if cached, found := r.cache.Get(moduleId); found {
		route := cached.(model.Route)
		return &route, nil
	}
	module, err := r.lookup(ctx, moduleId)
	if err != nil {
		return nil, err
	}
	route := model.Route{
		ModuleId:       module.Id,
		Category:       module.Category,
		Endpoint:       module.Endpoint,
		EndpointType:   module.EndpointType,
		TimeoutSeconds: module.TimeoutSeconds,
	}
	r.cache.SetDefault(moduleId, route)
	return &route, nil
}

func (r *ModuleRegistry) lookup(ctx context.Context, moduleId string) (*model.ModuleCapability, error) {
	module, err := r.storage.GetModule(ctx, moduleId)
	if err == nil {
		if !module.Active {
			return nil, api.UnknownModuleError{ModuleId: moduleId}
		}
		return module, nil
	}
	if !api.IsNotFound(err) {
		return nil, err
	}
	if !strings.Contains(moduleId, ".") {
		modules, err := r.List(ctx, moduleId)
		if err != nil {
			return nil, err
		}
		if len(modules) != 0 {
			return modules[0], nil
		}
	}
	return nil, api.UnknownModuleError{ModuleId: moduleId}
}
