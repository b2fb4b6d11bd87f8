package core

import (
	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/hostname"
	"github.com/edvin/domains/internal/lock"
)

type Services struct {
	Store     DomainStore
	Engine    *VerificationEngine
	Scheduler *Scheduler
	Domains   *CustomDomainService
	APIKey    *APIKeyService
}

// ServiceDeps are the collaborators shared by the core services. Locker may
// be nil.
type ServiceDeps struct {
	Classifier   *hostname.Classifier
	Checker      Checker
	Locker       lock.Locker
	Verification VerificationPolicy
	Scheduling   SchedulerPolicy
	Logger       zerolog.Logger
}

func NewServices(db DB, deps ServiceDeps) *Services {
	store := NewPGDomainStore(db)
	engine := NewVerificationEngine(store, deps.Checker, deps.Classifier, deps.Verification, deps.Logger)
	scheduler := NewScheduler(engine, store, deps.Locker, deps.Scheduling, deps.Logger)
	return &Services{
		Store:     store,
		Engine:    engine,
		Scheduler: scheduler,
		Domains:   NewCustomDomainService(store, scheduler, deps.Classifier, deps.Logger),
		APIKey:    NewAPIKeyService(db),
	}
}
