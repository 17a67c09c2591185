package sweeper

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"fundvault/native/fund"
	"fundvault/observability/metrics"
)

// FundLister supplies the fund ids to sweep.
type FundLister interface {
	ListFundIDs() ([]string, error)
}

// Sweeper drives the proposal expiry sweep on a cron schedule.
type Sweeper struct {
	engine *fund.Engine
	funds  FundLister
	log    *slog.Logger
	cron   *cron.Cron
}

// New constructs a sweeper. Start must be called to begin sweeping.
func New(engine *fund.Engine, funds FundLister, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{engine: engine, funds: funds, log: log}
}

// Start schedules the sweep with a cron spec such as "@every 1m".
func (s *Sweeper) Start(schedule string) error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}
	runner := cron.New()
	if _, err := runner.AddFunc(schedule, s.Sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	runner.Start()
	s.cron = runner
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// Sweep runs one expiry pass over every fund. Contended funds are skipped and
// picked up on the next pass.
func (s *Sweeper) Sweep() {
	ids, err := s.funds.ListFundIDs()
	if err != nil {
		s.log.Error("sweep: list funds", "error", err)
		return
	}
	total := 0
	for _, id := range ids {
		swept, err := s.engine.SweepExpired(id)
		if err != nil {
			if errors.Is(err, fund.ErrContended) {
				s.log.Debug("sweep: fund busy", "fund", id)
				continue
			}
			s.log.Error("sweep: fund failed", "fund", id, "error", err)
			continue
		}
		if swept > 0 {
			s.log.Info("sweep: expired proposals", "fund", id, "count", swept)
			total += swept
		}
	}
	metrics.Fund().RecordExpiredSwept(total)
}
