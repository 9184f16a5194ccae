package services

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jacksonlee411/recordhub/modules/record/domain/fieldtypes"
	"github.com/jacksonlee411/recordhub/modules/record/domain/metadata"
	"github.com/jacksonlee411/recordhub/modules/record/domain/ports"
	"github.com/jacksonlee411/recordhub/pkg/httperr"
	"github.com/jacksonlee411/recordhub/pkg/uuidv7"
)

// Deps are the collaborators shared by every record service.
type Deps struct {
	Store    ports.RecordStore
	Metadata *metadata.Registry
	Access   ports.AccessChecker
	Fields   *fieldtypes.Registry
	Exporter ports.Exporter
	Logger   *slog.Logger
	NewID    func() (string, error)
	Now      func() time.Time
	Observer MassObserver
}

// MassObserver records how many records a mass operation touched.
type MassObserver interface {
	ObserveMass(entityType string, operation string, n int)
}

func (d Deps) withDefaults() Deps {
	if d.Fields == nil {
		d.Fields = fieldtypes.NewRegistry()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.NewID == nil {
		d.NewID = uuidv7.NewString
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Factory builds the service for one entity type.
type Factory func(entityType string, deps Deps) (ports.RecordService, error)

// Resolver maps entity type names to services. Types without a registered
// factory get a DefaultService bound to the type, provided metadata declares
// the type. A service is built once per type and reused.
type Resolver struct {
	deps Deps

	mu        sync.RWMutex
	factories map[string]Factory
	services  map[string]ports.RecordService
}

func NewResolver(deps Deps) *Resolver {
	return &Resolver{
		deps:      deps.withDefaults(),
		factories: make(map[string]Factory),
		services:  make(map[string]ports.RecordService),
	}
}

// Register binds a factory to entityType and drops a service already built
// for it.
func (r *Resolver) Register(entityType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[entityType] = f
	delete(r.services, entityType)
}

func (r *Resolver) Resolve(entityType string) (ports.RecordService, error) {
	r.mu.RLock()
	svc, ok := r.services[entityType]
	r.mu.RUnlock()
	if ok {
		return svc, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.services[entityType]; ok {
		return svc, nil
	}
	svc, err := r.build(entityType)
	if err != nil {
		return nil, err
	}
	r.services[entityType] = svc
	return svc, nil
}

func (r *Resolver) build(entityType string) (ports.RecordService, error) {
	if f, ok := r.factories[entityType]; ok {
		return f(entityType, r.deps)
	}
	if r.deps.Metadata == nil || !r.deps.Metadata.Has(entityType) {
		return nil, httperr.NewNotFound(fmt.Sprintf("entity type %q not found", entityType))
	}
	return NewDefaultService(entityType, r.deps)
}
