package accounts

import (
	"testing"
	"time"
)

func fixedSelector(t *testing.T) *Selector {
	t.Helper()
	s := NewSelector(10, 2, 1)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	return s
}

func acct(id string, status HealthStatus, level int, vip bool, lastUsed *time.Time) *Account {
	return &Account{
		ID:           id,
		Label:        id,
		HealthStatus: status,
		Level:        level,
		VIP:          vip,
		LastUsedAt:   lastUsed,
	}
}

func TestSelectBestPrefersHigherScore(t *testing.T) {
	s := fixedSelector(t)
	used := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	pool := []*Account{
		acct("plain", HealthHealthy, 2, false, &used),
		acct("vip", HealthHealthy, 2, true, &used),
	}
	best := s.SelectBest(pool, nil)
	if best == nil || best.ID != "vip" {
		t.Fatalf("expected vip account, got %+v", best)
	}
}

func TestSelectBestFavorsIdleAccounts(t *testing.T) {
	s := fixedSelector(t)
	recent := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)
	stale := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

	pool := []*Account{
		acct("busy", HealthHealthy, 3, false, &recent),
		acct("idle", HealthHealthy, 3, false, &stale),
	}
	best := s.SelectBest(pool, nil)
	if best == nil || best.ID != "idle" {
		t.Fatalf("expected idle account, got %+v", best)
	}
}

func TestSelectBestNeverUsedRanksAsMaximallyIdle(t *testing.T) {
	s := fixedSelector(t)
	recent := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	pool := []*Account{
		acct("used", HealthHealthy, 3, true, &recent),
		acct("fresh", HealthHealthy, 0, false, nil),
	}
	best := s.SelectBest(pool, nil)
	if best == nil || best.ID != "fresh" {
		t.Fatalf("expected never-used account, got %+v", best)
	}
}

func TestSelectBestTieBreaksOnLowestID(t *testing.T) {
	s := fixedSelector(t)
	used := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	pool := []*Account{
		acct("bbb", HealthHealthy, 1, false, &used),
		acct("aaa", HealthHealthy, 1, false, &used),
	}
	best := s.SelectBest(pool, nil)
	if best == nil || best.ID != "aaa" {
		t.Fatalf("expected lowest id on tie, got %+v", best)
	}
}

func TestSelectBestSkipsExcluded(t *testing.T) {
	s := fixedSelector(t)
	pool := []*Account{
		acct("a", HealthHealthy, 5, true, nil),
		acct("b", HealthHealthy, 1, false, nil),
	}
	exclude := map[string]struct{}{"a": {}}
	best := s.SelectBest(pool, exclude)
	if best == nil || best.ID != "b" {
		t.Fatalf("expected excluded account skipped, got %+v", best)
	}
}

func TestSelectBestWarningFallback(t *testing.T) {
	s := fixedSelector(t)
	pool := []*Account{
		acct("warn", HealthWarning, 1, false, nil),
		acct("crit", HealthCritical, 9, true, nil),
		acct("gone", HealthExpired, 9, true, nil),
	}
	best := s.SelectBest(pool, nil)
	if best == nil || best.ID != "warn" {
		t.Fatalf("expected warning fallback, got %+v", best)
	}
}

func TestSelectBestHealthyBeatsWarningRegardlessOfScore(t *testing.T) {
	s := fixedSelector(t)
	pool := []*Account{
		acct("warn-vip", HealthWarning, 9, true, nil),
		acct("healthy", HealthHealthy, 0, false, nil),
	}
	best := s.SelectBest(pool, nil)
	if best == nil || best.ID != "healthy" {
		t.Fatalf("expected healthy account preferred, got %+v", best)
	}
}

func TestSelectBestEmptyPool(t *testing.T) {
	s := fixedSelector(t)
	if best := s.SelectBest(nil, nil); best != nil {
		t.Fatalf("expected nil for empty pool, got %+v", best)
	}
	pool := []*Account{acct("crit", HealthCritical, 1, false, nil)}
	if best := s.SelectBest(pool, nil); best != nil {
		t.Fatalf("expected nil when no usable accounts, got %+v", best)
	}
}

func TestAllocateForBatchRoundRobins(t *testing.T) {
	s := fixedSelector(t)
	pool := []*Account{
		acct("b", HealthHealthy, 1, false, nil),
		acct("a", HealthHealthy, 1, true, nil),
	}

	assignment := s.AllocateForBatch(pool, 5)
	if len(assignment) != 5 {
		t.Fatalf("expected 5 assignments, got %d", len(assignment))
	}
	want := []string{"a", "b", "a", "b", "a"}
	for i, account := range assignment {
		if account.ID != want[i] {
			t.Fatalf("assignment[%d] = %s, want %s", i, account.ID, want[i])
		}
	}
}

func TestAllocateForBatchDistinctWhenPoolIsLarge(t *testing.T) {
	s := fixedSelector(t)
	pool := []*Account{
		acct("a", HealthHealthy, 3, false, nil),
		acct("b", HealthHealthy, 2, false, nil),
		acct("c", HealthHealthy, 1, false, nil),
	}

	assignment := s.AllocateForBatch(pool, 2)
	if len(assignment) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignment))
	}
	if assignment[0].ID == assignment[1].ID {
		t.Fatalf("expected distinct accounts, got %s twice", assignment[0].ID)
	}
}

func TestAllocateForBatchEmptyPool(t *testing.T) {
	s := fixedSelector(t)
	if got := s.AllocateForBatch(nil, 3); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := s.AllocateForBatch([]*Account{acct("a", HealthHealthy, 1, false, nil)}, 0); got != nil {
		t.Fatalf("expected nil for zero tasks, got %v", got)
	}
}

func TestWorseOf(t *testing.T) {
	cases := []struct {
		a, b, want HealthStatus
	}{
		{HealthHealthy, HealthWarning, HealthWarning},
		{HealthWarning, HealthUnknown, HealthWarning},
		{HealthCritical, HealthExpired, HealthExpired},
		{HealthHealthy, HealthHealthy, HealthHealthy},
	}
	for _, tc := range cases {
		if got := WorseOf(tc.a, tc.b); got != tc.want {
			t.Errorf("WorseOf(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}
