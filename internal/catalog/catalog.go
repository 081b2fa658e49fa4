// Package catalog holds the static plan and payment-method catalogs. Both are
// loaded once at startup from JSON files and are immutable for the process
// lifetime.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Plan is a purchasable subscription plan.
type Plan struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	DurationDays int     `json:"duration_days"`
	Description  string  `json:"description,omitempty"`
}

// MonthlyPrice returns the per-month price for display. Plans of 30 days or
// less are priced as a single month.
func (p Plan) MonthlyPrice() float64 {
	if p.DurationDays <= 30 {
		return p.Price
	}
	return p.Price / (float64(p.DurationDays) / 30)
}

// PaymentMethod describes a manual payment destination shown to the user
// (e.g. a card number). Receipt verification stays with the admins.
type PaymentMethod struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Details string `json:"details"`
}

// Catalog bundles both static catalogs.
type Catalog struct {
	plans   []Plan
	methods []PaymentMethod
}

// New builds a catalog from already-validated entries. Used by tests and by
// Load.
func New(plans []Plan, methods []PaymentMethod) (*Catalog, error) {
	for _, p := range plans {
		if p.DurationDays <= 0 {
			return nil, fmt.Errorf("plan %d (%s): duration_days must be positive", p.ID, p.Name)
		}
		if p.Price <= 0 {
			return nil, fmt.Errorf("plan %d (%s): price must be positive", p.ID, p.Name)
		}
	}
	seen := make(map[int]bool, len(plans))
	for _, p := range plans {
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate plan id %d", p.ID)
		}
		seen[p.ID] = true
	}
	return &Catalog{plans: plans, methods: methods}, nil
}

// Load reads both catalog files from disk.
func Load(plansFile, methodsFile string) (*Catalog, error) {
	var plansDoc struct {
		Plans []Plan `json:"plans"`
	}
	if err := readJSON(plansFile, &plansDoc); err != nil {
		return nil, fmt.Errorf("loading plans: %w", err)
	}

	var methods []PaymentMethod
	if methodsFile != "" {
		if err := readJSON(methodsFile, &methods); err != nil {
			return nil, fmt.Errorf("loading payment methods: %w", err)
		}
	}

	return New(plansDoc.Plans, methods)
}

func readJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Plans returns all plans in catalog order.
func (c *Catalog) Plans() []Plan {
	return c.plans
}

// PlanByID looks up a plan. The second return distinguishes an absent id from
// a found plan.
func (c *Catalog) PlanByID(id int) (Plan, bool) {
	for _, p := range c.plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// PaymentMethods returns all configured payment destinations.
func (c *Catalog) PaymentMethods() []PaymentMethod {
	return c.methods
}

// PlanIDs returns the catalog's plan ids, for usage hints in admin commands.
func (c *Catalog) PlanIDs() []int {
	ids := make([]int, 0, len(c.plans))
	for _, p := range c.plans {
		ids = append(ids, p.ID)
	}
	return ids
}
