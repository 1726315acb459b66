package accounts

import (
	"sort"
	"time"
)

// defaultIdleHours stands in for accounts that were never used, so fresh
// accounts rank as maximally idle.
const defaultIdleHours = 24 * 30

// Selector picks accounts for tasks, load-balancing across the healthy pool.
// Selection has no side effects; the scheduler records last-used after it
// actually dispatches.
type Selector struct {
	vipWeight   float64
	levelWeight float64
	idleWeight  float64

	now func() time.Time
}

// NewSelector constructs a selector with the given scoring weights.
func NewSelector(vipWeight, levelWeight, idleWeight float64) *Selector {
	return &Selector{
		vipWeight:   vipWeight,
		levelWeight: levelWeight,
		idleWeight:  idleWeight,
		now:         time.Now,
	}
}

// SelectBest returns the highest-scoring usable account, or nil when the pool
// has none. Healthy accounts are preferred; when none exist the selector
// degrades to warning-state accounts rather than stalling the queue.
func (s *Selector) SelectBest(pool []*Account, exclude map[string]struct{}) *Account {
	candidates := s.eligible(pool, exclude)
	if len(candidates) == 0 {
		return nil
	}
	s.sortByScore(candidates)
	return candidates[0]
}

// AllocateForBatch assigns an account to each of n tasks. With at least n
// usable accounts every task gets a distinct account; with fewer, assignment
// round-robins over the pool so load stays balanced. Deterministic for a
// given pool and n.
func (s *Selector) AllocateForBatch(pool []*Account, n int) []*Account {
	if n <= 0 {
		return nil
	}
	candidates := s.eligible(pool, nil)
	if len(candidates) == 0 {
		return nil
	}
	s.sortByScore(candidates)

	assignment := make([]*Account, n)
	for i := 0; i < n; i++ {
		assignment[i] = candidates[i%len(candidates)]
	}
	return assignment
}

func (s *Selector) eligible(pool []*Account, exclude map[string]struct{}) []*Account {
	var healthy, warning []*Account
	for _, account := range pool {
		if account == nil {
			continue
		}
		if _, skip := exclude[account.ID]; skip {
			continue
		}
		switch account.HealthStatus {
		case HealthHealthy:
			healthy = append(healthy, account)
		case HealthWarning:
			warning = append(warning, account)
		}
	}
	if len(healthy) > 0 {
		return healthy
	}
	return warning
}

func (s *Selector) sortByScore(accounts []*Account) {
	now := s.now()
	sort.SliceStable(accounts, func(i, j int) bool {
		si, sj := s.score(accounts[i], now), s.score(accounts[j], now)
		if si != sj {
			return si > sj
		}
		return accounts[i].ID < accounts[j].ID
	})
}

func (s *Selector) score(account *Account, now time.Time) float64 {
	var score float64
	if account.VIP {
		score += s.vipWeight
	}
	score += s.levelWeight * float64(account.Level)

	idleHours := float64(defaultIdleHours)
	if account.LastUsedAt != nil {
		idleHours = now.Sub(*account.LastUsedAt).Hours()
		if idleHours < 0 {
			idleHours = 0
		}
	}
	score += s.idleWeight * idleHours
	return score
}
