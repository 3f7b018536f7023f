package usage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{RequestLimit: 100, TokenBudget: 10_000, CostCapUSD: 5.0}
}

func TestAdmitAllowsUnderAllCaps(t *testing.T) {
	m := NewMeter(t.TempDir(), testLimits(), true, false)
	ok, reason := m.Admit(100)
	if !ok {
		t.Fatalf("expected admit, got denial: %s", reason)
	}
}

func TestAdmitRequestCapIsExactBoundary(t *testing.T) {
	m := NewMeter(t.TempDir(), Limits{RequestLimit: 100}, true, false)
	for i := 0; i < 99; i++ {
		m.Record(10, 0)
	}

	// 99 recorded: the 100th request is still admitted.
	if ok, reason := m.Admit(10); !ok {
		t.Fatalf("request 100 denied early: %s", reason)
	}
	m.Record(10, 0)

	// 100 recorded: the 101st is denied.
	ok, reason := m.Admit(10)
	if ok {
		t.Fatal("request 101 should be denied")
	}
	if !strings.Contains(reason, "request limit") {
		t.Errorf("reason = %q, want request-limit explanation", reason)
	}
}

func TestAdmitTokenBudget(t *testing.T) {
	m := NewMeter(t.TempDir(), Limits{TokenBudget: 1000}, true, false)
	m.Record(900, 0)

	if ok, _ := m.Admit(50); !ok {
		t.Fatal("50 estimated tokens against 100 remaining should be admitted")
	}
	ok, reason := m.Admit(200)
	if ok {
		t.Fatal("200 estimated tokens against 100 remaining should be denied")
	}
	if !strings.Contains(reason, "token budget") {
		t.Errorf("reason = %q", reason)
	}
}

func TestAdmitCostCap(t *testing.T) {
	m := NewMeter(t.TempDir(), Limits{CostCapUSD: 1.0}, true, false)
	m.Record(10, 1.0)

	ok, reason := m.Admit(10)
	if ok {
		t.Fatal("cost at cap should deny")
	}
	if !strings.Contains(reason, "cost cap") {
		t.Errorf("reason = %q", reason)
	}
}

func TestAdmitCheckOrder(t *testing.T) {
	// All caps tripped at once: the request cap names the reason because it
	// is checked before tokens and cost.
	m := NewMeter(t.TempDir(), Limits{RequestLimit: 1, TokenBudget: 1, CostCapUSD: 0.001}, true, false)
	m.Record(100, 1.0)

	_, reason := m.Admit(10)
	if !strings.Contains(reason, "request limit") {
		t.Errorf("reason = %q, want the request cap to trip first", reason)
	}
}

func TestDisabledMeteringBypassesEverything(t *testing.T) {
	m := NewMeter(t.TempDir(), Limits{RequestLimit: 1}, false, false)
	m.Record(1_000_000, 1000)

	if ok, reason := m.Admit(1_000_000); !ok {
		t.Fatalf("disabled metering should always admit, got: %s", reason)
	}
}

func TestAIDisabledBlocksUnconditionally(t *testing.T) {
	m := NewMeter(t.TempDir(), testLimits(), true, true)
	ok, reason := m.Admit(1)
	if ok {
		t.Fatal("AI-disabled should deny every request")
	}
	if !strings.Contains(reason, "disabled") {
		t.Errorf("reason = %q", reason)
	}
}

func TestAIDisabledOutranksBudgets(t *testing.T) {
	m := NewMeter(t.TempDir(), Limits{RequestLimit: 1}, true, true)
	m.Record(100, 0)
	_, reason := m.Admit(1)
	if !strings.Contains(reason, "disabled") {
		t.Errorf("reason = %q, AI-disable should be reported before budget caps", reason)
	}
}

func TestDateRolloverResetsCounters(t *testing.T) {
	m := NewMeter(t.TempDir(), testLimits(), true, false)
	m.Record(500, 0.5)

	// Pretend the record was written yesterday.
	m.mu.Lock()
	m.rec.Date = time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	m.mu.Unlock()

	snap := m.Snapshot()
	if snap.Requests != 0 || snap.Tokens != 0 || snap.EstimatedCost != 0 {
		t.Errorf("counters not reset on rollover: %+v", snap.Record)
	}
	if snap.Limits != testLimits() {
		t.Errorf("limits not carried forward: %+v", snap.Limits)
	}
	if snap.Date != time.Now().Format("2006-01-02") {
		t.Errorf("date = %q, want today", snap.Date)
	}
}

func TestRolloverRunsBeforeChecks(t *testing.T) {
	m := NewMeter(t.TempDir(), Limits{RequestLimit: 10}, true, false)
	for i := 0; i < 10; i++ {
		m.Record(1, 0)
	}
	if ok, _ := m.Admit(1); ok {
		t.Fatal("cap should be reached")
	}

	m.mu.Lock()
	m.rec.Date = "2020-01-01"
	m.mu.Unlock()

	if ok, reason := m.Admit(1); !ok {
		t.Fatalf("stale date should reset before the cap check: %s", reason)
	}
}

func TestAdmitRollsOverEvenWhenAIDisabled(t *testing.T) {
	m := NewMeter(t.TempDir(), testLimits(), true, true)
	m.mu.Lock()
	m.rec.Date = "2020-01-01"
	m.rec.Requests = 9
	m.mu.Unlock()

	m.Admit(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec.Date != time.Now().Format("2006-01-02") || m.rec.Requests != 0 {
		t.Errorf("stale record survived a denied admission: %+v", m.rec)
	}
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	m := NewMeter(dir, testLimits(), true, false)
	m.Record(123, 0.25)
	m.Record(77, 0.05)

	reopened := NewMeter(dir, testLimits(), true, false)
	snap := reopened.Snapshot()
	if snap.Requests != 2 {
		t.Errorf("requests = %d, want 2", snap.Requests)
	}
	if snap.Tokens != 200 {
		t.Errorf("tokens = %d, want 200", snap.Tokens)
	}
	if diff := snap.EstimatedCost - 0.30; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("cost = %v, want 0.30", snap.EstimatedCost)
	}
}

func TestSaveIsAtomicNoTempFileLeft(t *testing.T) {
	dir := t.TempDir()
	m := NewMeter(dir, testLimits(), true, false)
	m.Record(10, 0)

	if _, err := os.Stat(filepath.Join(dir, "usage.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
	data, err := os.ReadFile(filepath.Join(dir, "usage.json"))
	if err != nil {
		t.Fatalf("usage.json missing: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("usage.json is not valid JSON: %v", err)
	}
}

func TestCorruptStoreStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "usage.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	m := NewMeter(dir, testLimits(), true, false)
	snap := m.Snapshot()
	if snap.Requests != 0 {
		t.Errorf("corrupt store should reset counters, got %+v", snap.Record)
	}
	if snap.Degraded {
		t.Error("corrupt-but-writable store should not degrade to memory-only")
	}
}

func TestConfigLimitsWinOverPersisted(t *testing.T) {
	dir := t.TempDir()
	m := NewMeter(dir, Limits{RequestLimit: 5}, true, false)
	m.Record(1, 0)

	reopened := NewMeter(dir, Limits{RequestLimit: 50}, true, false)
	if got := reopened.Snapshot().Limits.RequestLimit; got != 50 {
		t.Errorf("request limit = %d, want config value 50", got)
	}
}

func TestResetZeroesCountersKeepsLimits(t *testing.T) {
	m := NewMeter(t.TempDir(), testLimits(), true, false)
	m.Record(500, 2.0)
	m.Reset()

	snap := m.Snapshot()
	if snap.Requests != 0 || snap.Tokens != 0 || snap.EstimatedCost != 0 {
		t.Errorf("counters survive reset: %+v", snap.Record)
	}
	if snap.Limits != testLimits() {
		t.Errorf("limits lost on reset: %+v", snap.Limits)
	}
}

func TestOnChangeFires(t *testing.T) {
	m := NewMeter(t.TempDir(), testLimits(), true, false)
	var got []Snapshot
	m.OnChange = func(s Snapshot) { got = append(got, s) }

	m.Record(10, 0.01)
	m.Reset()

	if len(got) != 2 {
		t.Fatalf("OnChange fired %d times, want 2", len(got))
	}
	if got[0].Requests != 1 {
		t.Errorf("first snapshot requests = %d, want 1", got[0].Requests)
	}
}
