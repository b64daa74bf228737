package automation

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-notify/core"
)

type (
	// Repository persists automation rules. Get, Update and Delete return core.ErrNotFound for unknown ids.
	Repository interface {
		Create(ctx context.Context, rule Rule) error
		Update(ctx context.Context, rule Rule) error
		Delete(ctx context.Context, id string) error
		Get(ctx context.Context, id string) (Rule, error)
		// List returns every rule, oldest first.
		List(ctx context.Context) ([]Rule, error)
		ListEnabled(ctx context.Context) ([]Rule, error)
	}

	// RuleService manages rules and keeps a read-through cache of enabled rules per event.
	// Every write through the service drops the cache; ttl bounds staleness against other writers.
	RuleService struct {
		repo     Repository
		validate *validator.Validate
		ttl      time.Duration
		now      func() time.Time

		mu       sync.RWMutex
		byEvent  map[string][]Rule
		loadedAt time.Time
	}
)

func NewRuleService(repo Repository, validate *validator.Validate, ttl time.Duration) *RuleService {
	return &RuleService{
		repo:     repo,
		validate: validate,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (svc *RuleService) invalidate() {
	svc.mu.Lock()
	svc.byEvent = nil
	svc.mu.Unlock()
}

func (svc *RuleService) fresh() bool {
	if svc.byEvent == nil {
		return false
	}
	return svc.ttl <= 0 || svc.now().Sub(svc.loadedAt) < svc.ttl
}

// EnabledFor returns the enabled rules listening to event.
func (svc *RuleService) EnabledFor(ctx context.Context, event string) ([]Rule, error) {
	svc.mu.RLock()
	if svc.fresh() {
		rules := svc.byEvent[event]
		svc.mu.RUnlock()
		return rules, nil
	}
	svc.mu.RUnlock()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if !svc.fresh() {
		rules, err := svc.repo.ListEnabled(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "loading enabled rules")
		}
		byEvent := make(map[string][]Rule)
		for _, r := range rules {
			byEvent[r.Event] = append(byEvent[r.Event], r)
		}
		svc.byEvent = byEvent
		svc.loadedAt = svc.now()
	}
	return svc.byEvent[event], nil
}

func (svc *RuleService) List(ctx context.Context) ([]Rule, error) {
	rules, err := svc.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing rules")
	}
	if rules == nil {
		rules = []Rule{}
	}
	return rules, nil
}

func (svc *RuleService) Get(ctx context.Context, id string) (Rule, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *RuleService) Create(ctx context.Context, nr NewRule) (Rule, error) {
	if err := nr.Validate(svc.validate); err != nil {
		return Rule{}, err
	}
	now := svc.now().UTC()
	rule := Rule{
		ID:         uuid.NewString(),
		Name:       nr.Name,
		Event:      nr.Event,
		Conditions: nr.Conditions,
		Template:   nr.Template,
		Recipients: nr.Recipients,
		Enabled:    nr.enabled(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := svc.repo.Create(ctx, rule); err != nil {
		return Rule{}, errors.Wrap(err, "creating rule")
	}
	svc.invalidate()
	return rule, nil
}

// Update replaces the rule definition. Enabled is only changed when provided.
func (svc *RuleService) Update(ctx context.Context, id string, nr NewRule) (Rule, error) {
	rule, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	if err = nr.Validate(svc.validate); err != nil {
		return Rule{}, err
	}
	rule.Name = nr.Name
	rule.Event = nr.Event
	rule.Conditions = nr.Conditions
	rule.Template = nr.Template
	rule.Recipients = nr.Recipients
	if nr.Enabled != nil {
		rule.Enabled = *nr.Enabled
	}
	rule.UpdatedAt = svc.now().UTC()

	if err = svc.repo.Update(ctx, rule); err != nil {
		return Rule{}, errors.Wrap(err, "updating rule")
	}
	svc.invalidate()
	return rule, nil
}

// Toggle flips the rule's Enabled flag.
func (svc *RuleService) Toggle(ctx context.Context, id string) (Rule, error) {
	rule, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	return svc.SetEnabled(ctx, id, !rule.Enabled)
}

func (svc *RuleService) SetEnabled(ctx context.Context, id string, enabled bool) (Rule, error) {
	rule, err := svc.repo.Get(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	rule.Enabled = enabled
	rule.UpdatedAt = svc.now().UTC()
	if err = svc.repo.Update(ctx, rule); err != nil {
		return Rule{}, errors.Wrap(err, "updating rule")
	}
	svc.invalidate()
	return rule, nil
}

func (svc *RuleService) Delete(ctx context.Context, id string) error {
	if err := svc.repo.Delete(ctx, id); err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return err
		}
		return errors.Wrap(err, "deleting rule")
	}
	svc.invalidate()
	return nil
}

// SeedDefaults creates the DefaultRules whose name is not taken yet and returns how many were added.
func (svc *RuleService) SeedDefaults(ctx context.Context) (int, error) {
	existing, err := svc.List(ctx)
	if err != nil {
		return 0, err
	}
	names := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		names[r.Name] = struct{}{}
	}

	var created int
	for _, nr := range DefaultRules() {
		if _, ok := names[nr.Name]; ok {
			continue
		}
		if _, err = svc.Create(ctx, nr); err != nil {
			return created, errors.Wrapf(err, "seeding rule %q", nr.Name)
		}
		created++
	}
	return created, nil
}
