package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func validPlans() []Plan {
	return []Plan{
		{ID: 1, Name: "1 Month", Price: 150000, DurationDays: 30},
		{ID: 2, Name: "3 Months", Price: 400000, DurationDays: 90},
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(validPlans(), nil); err != nil {
		t.Fatalf("valid catalog rejected: %v", err)
	}

	bad := []Plan{{ID: 1, Name: "free", Price: 0, DurationDays: 30}}
	if _, err := New(bad, nil); err == nil {
		t.Fatalf("zero price accepted")
	}

	bad = []Plan{{ID: 1, Name: "instant", Price: 100, DurationDays: 0}}
	if _, err := New(bad, nil); err == nil {
		t.Fatalf("zero duration accepted")
	}

	dup := append(validPlans(), Plan{ID: 1, Name: "clone", Price: 100, DurationDays: 30})
	if _, err := New(dup, nil); err == nil {
		t.Fatalf("duplicate plan id accepted")
	}
}

func TestPlanByID(t *testing.T) {
	c, err := New(validPlans(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plan, ok := c.PlanByID(2)
	if !ok || plan.Name != "3 Months" {
		t.Fatalf("PlanByID(2): ok=%t plan=%+v", ok, plan)
	}
	if _, ok := c.PlanByID(99); ok {
		t.Fatalf("unknown plan id found")
	}
}

func TestMonthlyPrice(t *testing.T) {
	oneMonth := Plan{Price: 150000, DurationDays: 30}
	if got := oneMonth.MonthlyPrice(); got != 150000 {
		t.Fatalf("single month: got %v", got)
	}

	threeMonths := Plan{Price: 300000, DurationDays: 90}
	if got := threeMonths.MonthlyPrice(); got != 100000 {
		t.Fatalf("three months: got %v, want 100000", got)
	}

	week := Plan{Price: 50000, DurationDays: 7}
	if got := week.MonthlyPrice(); got != 50000 {
		t.Fatalf("sub-month plans are priced whole: got %v", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	plansFile := filepath.Join(dir, "plans.json")
	methodsFile := filepath.Join(dir, "methods.json")

	plansJSON := `{"plans":[{"id":1,"name":"1 Month","price":150000,"duration_days":30}]}`
	methodsJSON := `[{"id":"card","name":"Card to card","details":"6037..."}]`
	if err := os.WriteFile(plansFile, []byte(plansJSON), 0o600); err != nil {
		t.Fatalf("write plans: %v", err)
	}
	if err := os.WriteFile(methodsFile, []byte(methodsJSON), 0o600); err != nil {
		t.Fatalf("write methods: %v", err)
	}

	c, err := Load(plansFile, methodsFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Plans()) != 1 || len(c.PaymentMethods()) != 1 {
		t.Fatalf("catalog contents wrong: plans=%d methods=%d", len(c.Plans()), len(c.PaymentMethods()))
	}

	// Missing plans file is fatal; payment methods are optional.
	if _, err := Load(filepath.Join(dir, "absent.json"), ""); err == nil {
		t.Fatalf("missing plans file accepted")
	}
	if _, err := Load(plansFile, ""); err != nil {
		t.Fatalf("empty methods path should be allowed: %v", err)
	}
}

func TestPlanIDs(t *testing.T) {
	c, err := New(validPlans(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ids := c.PlanIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("PlanIDs = %v", ids)
	}
}
