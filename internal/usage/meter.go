package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hackpilot/hackpilot/internal/logger"
)

// Limits carries the configured daily caps. A zero cap means "no cap" for
// that dimension.
type Limits struct {
	RequestLimit int     `json:"request_limit"`
	TokenBudget  int     `json:"token_budget"`
	CostCapUSD   float64 `json:"cost_cap_usd"`
}

// Record is the persisted per-day usage state. Exactly one live record
// exists; on date rollover it is replaced by a zeroed record carrying the
// limits forward.
type Record struct {
	Date          string  `json:"date"` // YYYY-MM-DD, local time
	Requests      int     `json:"requests"`
	Tokens        int     `json:"tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
	Limits        Limits  `json:"limits"`
}

// Snapshot is the externally visible metering state.
type Snapshot struct {
	Record
	Enabled    bool `json:"enabled"`
	AIDisabled bool `json:"ai_disabled"`
	Degraded   bool `json:"degraded"`
}

// Meter tracks per-day request, token, and cost counters against configured
// caps and persists them atomically. All methods are safe for concurrent
// use; the file is written under the same mutex that guards the counters.
type Meter struct {
	mu         sync.Mutex
	path       string
	rec        Record
	enabled    bool
	aiDisabled bool
	degraded   bool
	now        func() time.Time

	// OnChange is invoked (outside network calls, inside no locks held by
	// the caller) after counters change. Used for observer notifications.
	OnChange func(Snapshot)
}

// NewMeter loads the persisted record from dataDir, or starts fresh when
// none exists or the file is unreadable. An unreadable or unwritable store
// degrades to in-memory metering rather than failing startup.
func NewMeter(dataDir string, limits Limits, enabled, aiDisabled bool) *Meter {
	m := &Meter{
		path:       filepath.Join(dataDir, "usage.json"),
		enabled:    enabled,
		aiDisabled: aiDisabled,
		now:        time.Now,
		rec: Record{
			Date:   time.Now().Format("2006-01-02"),
			Limits: limits,
		},
	}

	data, err := os.ReadFile(m.path)
	if err == nil {
		var stored Record
		if jsonErr := json.Unmarshal(data, &stored); jsonErr == nil {
			stored.Limits = limits // config wins over persisted limits
			m.rec = stored
		} else {
			logger.Warn("Usage store corrupt, starting fresh: %v", jsonErr)
		}
	} else if !os.IsNotExist(err) {
		logger.Warn("Usage store unreadable, metering in-memory only: %v", err)
		m.degraded = true
	}

	m.mu.Lock()
	m.rollover()
	m.mu.Unlock()
	return m
}

// rollover replaces the record with a zeroed one carrying the limits forward
// when the stored date differs from today. Caller must hold mu.
func (m *Meter) rollover() {
	today := m.now().Format("2006-01-02")
	if m.rec.Date == today {
		return
	}
	m.rec = Record{Date: today, Limits: m.rec.Limits}
	m.save()
}

// save writes the record via temp-file-then-rename so a crash mid-write
// never corrupts the store. Caller must hold mu.
func (m *Meter) save() {
	if m.degraded {
		return
	}
	data, err := json.MarshalIndent(m.rec, "", "  ")
	if err != nil {
		return
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logger.Warn("Usage store unwritable, metering in-memory only: %v", err)
		m.degraded = true
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		logger.Warn("Usage store rename failed, metering in-memory only: %v", err)
		m.degraded = true
	}
}

// Admit decides whether a metered request may proceed. The date rollover is
// applied first, then checks in a fixed order: master disable, AI disable,
// request cap, token budget, cost cap. The first tripped check names the
// reason.
func (m *Meter) Admit(estimatedTokens int) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()

	if !m.enabled {
		return true, ""
	}
	if m.aiDisabled {
		return false, "AI calls are disabled by the operator"
	}

	l := m.rec.Limits
	if l.RequestLimit > 0 && m.rec.Requests >= l.RequestLimit {
		return false, fmt.Sprintf("daily request limit reached (%d/%d)", m.rec.Requests, l.RequestLimit)
	}
	if l.TokenBudget > 0 && m.rec.Tokens+estimatedTokens > l.TokenBudget {
		return false, fmt.Sprintf("daily token budget exceeded (%d of %d used)", m.rec.Tokens, l.TokenBudget)
	}
	if l.CostCapUSD > 0 && m.rec.EstimatedCost >= l.CostCapUSD {
		return false, fmt.Sprintf("daily cost cap reached ($%.2f of $%.2f)", m.rec.EstimatedCost, l.CostCapUSD)
	}
	return true, ""
}

// Record updates counters after a completed call and persists them.
func (m *Meter) Record(actualTokens int, actualCost float64) {
	m.mu.Lock()
	m.rollover()
	m.rec.Requests++
	m.rec.Tokens += actualTokens
	m.rec.EstimatedCost += actualCost
	m.save()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if m.OnChange != nil {
		m.OnChange(snap)
	}
}

// Reset zeroes today's counters (operator action); limits are kept.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.rec = Record{Date: m.now().Format("2006-01-02"), Limits: m.rec.Limits}
	m.save()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if m.OnChange != nil {
		m.OnChange(snap)
	}
}

// Rollover forces a date check; used by the midnight scheduler job so the
// snapshot observers see the reset without waiting for the next request.
func (m *Meter) Rollover() {
	m.mu.Lock()
	m.rollover()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if m.OnChange != nil {
		m.OnChange(snap)
	}
}

func (m *Meter) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return m.snapshotLocked()
}

func (m *Meter) snapshotLocked() Snapshot {
	return Snapshot{
		Record:     m.rec,
		Enabled:    m.enabled,
		AIDisabled: m.aiDisabled,
		Degraded:   m.degraded,
	}
}

// SetAIDisabled flips the unconditional AI kill switch.
func (m *Meter) SetAIDisabled(disabled bool) {
	m.mu.Lock()
	m.aiDisabled = disabled
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if m.OnChange != nil {
		m.OnChange(snap)
	}
}
