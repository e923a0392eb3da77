package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/estatevault/portal/internal/portal/store"
)

const DefaultHousekeepingInterval = time.Hour

// HousekeepingService periodically deletes expired refresh sessions and
// login challenges so the tables do not grow without bound.
type HousekeepingService struct {
	Store      store.Store
	Challenges store.LoginChallenges
	Logger     *slog.Logger
	Interval   time.Duration

	// OnDeleted, when set, is told how many rows each sweep removed.
	OnDeleted func(table string, n int64)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval falls back to one hour. challenges may be nil, in which case the
// store's own challenge table is swept.
func NewHousekeepingService(st store.Store, challenges store.LoginChallenges, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	if challenges == nil {
		challenges = st.LoginChallenges()
	}
	return &HousekeepingService{
		Store:      st,
		Challenges: challenges,
		Logger:     logger,
		Interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one cleanup pass. A failure in one table does not stop the
// other.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	tasks := []struct {
		table string
		fn    func(context.Context) (int64, error)
	}{
		{"refresh_sessions", s.Store.RefreshSessions().DeleteExpiredRefreshSessions},
		{"login_challenges", s.Challenges.DeleteExpiredLoginChallenges},
	}

	for _, task := range tasks {
		n, err := task.fn(ctx)
		if err != nil {
			s.Logger.Error("housekeeping failed", "table", task.table, "error", err)
			continue
		}
		if n > 0 {
			s.Logger.Info("housekeeping deleted expired rows", "table", task.table, "deleted", n)
		}
		if s.OnDeleted != nil {
			s.OnDeleted(task.table, n)
		}
	}
}
