package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestChecker(t *testing.T) *Checker {
	t.Helper()
	checker, err := NewChecker(&Config{
		Enabled:       true,
		CheckInterval: 10 * time.Millisecond,
		Timeout:       time.Second,
	})
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}
	return checker
}

func TestNewChecker_Defaults(t *testing.T) {
	t.Parallel()

	checker, err := NewChecker(nil)
	if err != nil {
		t.Fatalf("NewChecker(nil) error = %v", err)
	}
	if checker.config.CheckInterval != 30*time.Second {
		t.Errorf("default CheckInterval = %v, want 30s", checker.config.CheckInterval)
	}
}

func TestRegisterCheck_Duplicate(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	fn := InvariantCheck(func() error { return nil })

	if err := checker.RegisterCheck("i1", "I1", CategoryInvariant, PriorityCritical, fn); err != nil {
		t.Fatalf("first RegisterCheck error = %v", err)
	}
	if err := checker.RegisterCheck("i1", "I1", CategoryInvariant, PriorityCritical, fn); err == nil {
		t.Error("expected error registering duplicate check name")
	}
}

func TestRunCheck_Success(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	if err := checker.RegisterCheck("i1", "occupied never exceeds capacity",
		CategoryInvariant, PriorityCritical, InvariantCheck(func() error { return nil })); err != nil {
		t.Fatalf("RegisterCheck error = %v", err)
	}

	result, err := checker.RunCheck(context.Background(), "i1")
	if err != nil {
		t.Fatalf("RunCheck error = %v", err)
	}
	if result.Status != StatusHealthy {
		t.Errorf("status = %v, want %v", result.Status, StatusHealthy)
	}
}

func TestRunCheck_Failure(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	wantErr := errors.New("occupied bytes exceeded capacity")
	if err := checker.RegisterCheck("i1", "occupied never exceeds capacity",
		CategoryInvariant, PriorityCritical, InvariantCheck(func() error { return wantErr })); err != nil {
		t.Fatalf("RegisterCheck error = %v", err)
	}

	result, err := checker.RunCheck(context.Background(), "i1")
	if err != nil {
		t.Fatalf("RunCheck error = %v", err)
	}
	if result.Status != StatusUnhealthy {
		t.Errorf("status = %v, want %v", result.Status, StatusUnhealthy)
	}
	if result.Error != wantErr.Error() {
		t.Errorf("error = %q, want %q", result.Error, wantErr.Error())
	}
}

func TestRunCheck_NotFound(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	if _, err := checker.RunCheck(context.Background(), "missing"); err == nil {
		t.Error("expected error for unregistered check")
	}
}

func TestRunAllChecks_UpdatesStats(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	if err := checker.RegisterCheck("i1", "I1", CategoryInvariant, PriorityCritical,
		InvariantCheck(func() error { return nil })); err != nil {
		t.Fatalf("RegisterCheck error = %v", err)
	}
	if err := checker.RegisterCheck("i2", "I2", CategoryInvariant, PriorityCritical,
		InvariantCheck(func() error { return errors.New("violated") })); err != nil {
		t.Fatalf("RegisterCheck error = %v", err)
	}

	results, err := checker.RunAllChecks(context.Background())
	if err != nil {
		t.Fatalf("RunAllChecks error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}

	stats := checker.GetStats()
	if stats.OverallStatus != StatusUnhealthy {
		t.Errorf("overall status = %v, want %v (a critical check failed)", stats.OverallStatus, StatusUnhealthy)
	}
	if checker.IsHealthy() {
		t.Error("IsHealthy() = true, want false")
	}
}

func TestEnableDisableCheck(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	if err := checker.RegisterCheck("i1", "I1", CategoryInvariant, PriorityCritical,
		InvariantCheck(func() error { return nil })); err != nil {
		t.Fatalf("RegisterCheck error = %v", err)
	}

	if err := checker.DisableCheck("i1"); err != nil {
		t.Fatalf("DisableCheck error = %v", err)
	}

	result, err := checker.RunCheck(context.Background(), "i1")
	if err != nil {
		t.Fatalf("RunCheck error = %v", err)
	}
	if result.Status != StatusUnknown {
		t.Errorf("status for disabled check = %v, want %v", result.Status, StatusUnknown)
	}

	if err := checker.EnableCheck("i1"); err != nil {
		t.Fatalf("EnableCheck error = %v", err)
	}
	result, err = checker.RunCheck(context.Background(), "i1")
	if err != nil {
		t.Fatalf("RunCheck error = %v", err)
	}
	if result.Status != StatusHealthy {
		t.Errorf("status after re-enable = %v, want %v", result.Status, StatusHealthy)
	}
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	if err := checker.RegisterCheck("i1", "I1", CategoryInvariant, PriorityCritical,
		InvariantCheck(func() error { return nil })); err != nil {
		t.Fatalf("RegisterCheck error = %v", err)
	}
	if _, err := checker.RunAllChecks(context.Background()); err != nil {
		t.Fatalf("RunAllChecks error = %v", err)
	}

	status := checker.GetStatus()
	if _, ok := status["overall_status"]; !ok {
		t.Error("status missing overall_status")
	}
	checks, ok := status["checks"].(map[string]*Result)
	if !ok {
		t.Fatal("status[\"checks\"] has unexpected type")
	}
	if _, ok := checks["i1"]; !ok {
		t.Error("status checks missing i1")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	if err := checker.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if err := checker.Start(context.Background()); err == nil {
		t.Error("expected error starting an already-started checker")
	}
	if err := checker.Stop(); err != nil {
		t.Fatalf("Stop error = %v", err)
	}
	if err := checker.Stop(); err == nil {
		t.Error("expected error stopping an already-stopped checker")
	}
}

func TestNewServiceStatus(t *testing.T) {
	t.Parallel()

	checker := newTestChecker(t)
	if err := checker.RegisterCheck("i1", "I1", CategoryInvariant, PriorityCritical,
		InvariantCheck(func() error { return nil })); err != nil {
		t.Fatalf("RegisterCheck error = %v", err)
	}
	if _, err := checker.RunAllChecks(context.Background()); err != nil {
		t.Fatalf("RunAllChecks error = %v", err)
	}

	status := checker.NewServiceStatus("0.1.0", map[string]interface{}{"trace": "test.oracleGeneral"})
	if status.Version != "0.1.0" {
		t.Errorf("Version = %q, want 0.1.0", status.Version)
	}
	if _, ok := status.Checks["i1"]; !ok {
		t.Error("ServiceStatus.Checks missing i1")
	}
}
