package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/automation"
)

type ruleRepository struct {
	db *ruleTable
}

var _ automation.Repository = (*ruleRepository)(nil) // interface compliance check

func NewRuleRepository(db *DB) automation.Repository {
	return &ruleRepository{db: db.rule}
}

func (repo *ruleRepository) query(enabledOnly bool) []automation.Rule {
	rules := make([]automation.Rule, 0, len(repo.db.table))
	for _, r := range repo.db.table {
		if enabledOnly && !r.Enabled {
			continue
		}
		rules = append(rules, copyRule(*r))
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules
}

func (repo *ruleRepository) Create(_ context.Context, rule automation.Rule) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored := copyRule(rule)
	repo.db.table[rule.ID] = &stored
	return nil
}

func (repo *ruleRepository) Update(_ context.Context, rule automation.Rule) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[rule.ID]; !ok {
		return core.ErrNotFound
	}
	stored := copyRule(rule)
	repo.db.table[rule.ID] = &stored
	return nil
}

func (repo *ruleRepository) Delete(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return core.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *ruleRepository) Get(_ context.Context, id string) (automation.Rule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.table[id]; ok {
		return copyRule(*r), nil
	}
	return automation.Rule{}, core.ErrNotFound
}

func (repo *ruleRepository) List(_ context.Context) ([]automation.Rule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(false), nil
}

func (repo *ruleRepository) ListEnabled(_ context.Context) ([]automation.Rule, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(true), nil
}

func copyRule(r automation.Rule) automation.Rule {
	if r.Conditions != nil {
		conds := make(automation.Conditions, len(r.Conditions))
		for k, v := range r.Conditions {
			conds[k] = v
		}
		r.Conditions = conds
	}
	r.Recipients.Roles = append([]string(nil), r.Recipients.Roles...)
	r.Recipients.UserIDs = append([]string(nil), r.Recipients.UserIDs...)
	return r
}
