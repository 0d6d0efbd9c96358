package usage

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mandalnilabja/chatgate/internal/types"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	records map[string]*types.UsageRecord
	sets    int
	failGet error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*types.UsageRecord)}
}

func (s *memStore) Get(ctx context.Context, modelID string) (*types.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	rec, ok := s.records[modelID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) Set(ctx context.Context, rec *types.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ModelID] = &cp
	s.sets++
	return nil
}

func (s *memStore) Increment(ctx context.Context, modelID string, d types.UsageDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[modelID]
	if !ok {
		return errors.New("no record")
	}
	rec.TotalCostUSD += d.CostUSD
	rec.TotalInputTokens += d.InputTokens
	rec.TotalOutputTokens += d.OutputTokens
	rec.DailyCosts[d.Day] += d.CostUSD
	rec.DailyInputTokens[d.Day] += d.InputTokens
	rec.DailyOutputTokens[d.Day] += d.OutputTokens
	rec.LastUpdated = d.LastUpdated
	return nil
}

type staticPricing map[string]types.Pricing

func (p staticPricing) Pricing(id string) (types.Pricing, bool) {
	v, ok := p[id]
	return v, ok
}

type staticLimits map[string]float64

func (l staticLimits) MonthlyLimit(id string) (float64, bool) {
	v, ok := l[id]
	return v, ok
}

var testPricing = staticPricing{"gpt-4.1": {InputPerMillionUSD: 2, OutputPerMillionUSD: 8}}

func fixedNow(s string) func() time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestLedgerUpdate(t *testing.T) {
	store := newMemStore()
	l := NewLedger(store, testPricing, nil)
	l.now = fixedNow("2025-03-14T10:00:00Z")
	ctx := context.Background()

	if err := l.Update(ctx, "gpt-4.1", 3, 2); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if err := l.Update(ctx, "gpt-4.1", 1000, 500); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	rec := store.records["gpt-4.1"]
	want := (3.0/1e6)*2 + (2.0/1e6)*8 + (1000.0/1e6)*2 + (500.0/1e6)*8
	if !almostEqual(rec.TotalCostUSD, want) {
		t.Errorf("TotalCostUSD = %v, want %v", rec.TotalCostUSD, want)
	}
	if rec.TotalInputTokens != 1003 || rec.TotalOutputTokens != 502 {
		t.Errorf("tokens = %d/%d", rec.TotalInputTokens, rec.TotalOutputTokens)
	}
	if rec.YearMonth != "2025-03" {
		t.Errorf("YearMonth = %q", rec.YearMonth)
	}
	if !almostEqual(rec.DailyCosts["2025-03-14"], want) {
		t.Errorf("DailyCosts = %v", rec.DailyCosts)
	}
	if rec.LastUpdated == "" {
		t.Error("LastUpdated not set")
	}
	if store.sets != 1 {
		t.Errorf("record reset %d times, want 1", store.sets)
	}
}

func TestLedgerRollover(t *testing.T) {
	store := newMemStore()
	stale := types.NewUsageRecord("gpt-4.1", "2025-02")
	stale.TotalCostUSD = 42
	stale.DailyCosts["2025-02-28"] = 42
	store.records["gpt-4.1"] = stale

	l := NewLedger(store, testPricing, nil)
	l.now = fixedNow("2025-03-01T00:05:00Z")

	if err := l.Update(context.Background(), "gpt-4.1", 1e6, 0); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	rec := store.records["gpt-4.1"]
	if rec.YearMonth != "2025-03" {
		t.Errorf("YearMonth = %q, want 2025-03", rec.YearMonth)
	}
	if !almostEqual(rec.TotalCostUSD, 2) {
		t.Errorf("TotalCostUSD = %v, want 2 (old month discarded)", rec.TotalCostUSD)
	}
	if _, ok := rec.DailyCosts["2025-02-28"]; ok {
		t.Error("old daily bucket should be gone")
	}
}

func TestLedgerWithoutPricing(t *testing.T) {
	store := newMemStore()
	existing := types.NewUsageRecord("mystery", "2025-03")
	existing.TotalCostUSD = 5
	store.records["mystery"] = existing

	l := NewLedger(store, testPricing, nil)
	l.now = fixedNow("2025-03-14T10:00:00Z")

	if err := l.Update(context.Background(), "mystery", 100, 100); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if store.records["mystery"].TotalCostUSD != 5 || store.sets != 0 {
		t.Error("record for a model without pricing must not change")
	}
}

func TestLedgerZeroTokens(t *testing.T) {
	store := newMemStore()
	l := NewLedger(store, testPricing, nil)
	l.now = fixedNow("2025-03-14T10:00:00Z")

	if err := l.Update(context.Background(), "gpt-4.1", 0, 0); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if rec := store.records["gpt-4.1"]; rec == nil || rec.TotalCostUSD != 0 {
		t.Errorf("record = %+v", rec)
	}
}

func TestLedgerStoreError(t *testing.T) {
	store := newMemStore()
	store.failGet = errors.New("unavailable")
	l := NewLedger(store, testPricing, nil)

	if err := l.Update(context.Background(), "gpt-4.1", 1, 1); err == nil {
		t.Error("expected error")
	}
}

func TestLedgerCurrentIsReadOnly(t *testing.T) {
	store := newMemStore()
	stale := types.NewUsageRecord("gpt-4.1", "2025-02")
	stale.TotalCostUSD = 42
	store.records["gpt-4.1"] = stale

	l := NewLedger(store, testPricing, nil)
	l.now = fixedNow("2025-03-01T00:05:00Z")

	rec, err := l.Current(context.Background(), "gpt-4.1")
	if err != nil {
		t.Fatalf("Current() error: %v", err)
	}
	if rec.TotalCostUSD != 0 || rec.YearMonth != "2025-03" {
		t.Errorf("Current() = %+v, want zeroed record for 2025-03", rec)
	}
	if store.records["gpt-4.1"].YearMonth != "2025-02" || store.sets != 0 {
		t.Error("Current() must not write")
	}
}

func TestGuardCheck(t *testing.T) {
	tests := []struct {
		name        string
		cost        float64
		month       string
		wantBlocked bool
		wantWarning *int
	}{
		{"no usage", 0, "2025-03", false, nil},
		{"below warning", 79.9, "2025-03", false, nil},
		{"at warning", 80, "2025-03", false, intPtr(80)},
		{"near limit", 99.5, "2025-03", false, intPtr(99)},
		{"at limit", 100, "2025-03", true, intPtr(100)},
		{"over limit", 130, "2025-03", true, intPtr(130)},
		{"stale month over limit", 130, "2025-02", false, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			rec := types.NewUsageRecord("o3", tc.month)
			rec.TotalCostUSD = tc.cost
			store.records["o3"] = rec

			l := NewLedger(store, testPricing, nil)
			l.now = fixedNow("2025-03-14T10:00:00Z")
			g := NewGuard(l, staticLimits{"o3": 100})

			v, err := g.Check(context.Background(), "o3")
			if err != nil {
				t.Fatalf("Check() error: %v", err)
			}
			if v.Blocked != tc.wantBlocked {
				t.Errorf("Blocked = %v, want %v", v.Blocked, tc.wantBlocked)
			}
			switch {
			case tc.wantWarning == nil && v.WarningPercent != nil:
				t.Errorf("WarningPercent = %d, want nil", *v.WarningPercent)
			case tc.wantWarning != nil && (v.WarningPercent == nil || *v.WarningPercent != *tc.wantWarning):
				t.Errorf("WarningPercent = %v, want %d", v.WarningPercent, *tc.wantWarning)
			}
		})
	}
}

func TestGuardNoLimit(t *testing.T) {
	store := newMemStore()
	store.failGet = errors.New("must not be read")
	g := NewGuard(NewLedger(store, testPricing, nil), staticLimits{})

	v, err := g.Check(context.Background(), "gpt-4.1")
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if v.Blocked || v.WarningPercent != nil || v.HasLimit {
		t.Errorf("Check() = %+v, want zero verdict", v)
	}
}

func TestRecorder(t *testing.T) {
	store := newMemStore()
	l := NewLedger(store, testPricing, nil)
	r := NewRecorder(l, nil, 16, 1)

	for range 5 {
		if !r.Submit("gpt-4.1", 1e6, 0) {
			t.Fatal("Submit() returned false")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if rec := store.records["gpt-4.1"]; rec == nil || !almostEqual(rec.TotalCostUSD, 10) {
		t.Errorf("record = %+v, want total 10", rec)
	}
	if r.Submit("gpt-4.1", 1, 1) {
		t.Error("Submit() after Close() should return false")
	}
}

func intPtr(v int) *int { return &v }
