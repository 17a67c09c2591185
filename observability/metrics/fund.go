package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// FundMetrics tracks engine activity for the fund service.
type FundMetrics struct {
	contributions  *prometheus.CounterVec
	redemptions    *prometheus.CounterVec
	profitClaims   *prometheus.CounterVec
	proposals      *prometheus.CounterVec
	approvals      *prometheus.CounterVec
	executions     *prometheus.CounterVec
	expiredSwept   prometheus.Counter
	lockContention prometheus.Counter
}

var (
	fundOnce     sync.Once
	fundRegistry *FundMetrics
)

// Fund returns the lazily-initialised fund metrics registry.
func Fund() *FundMetrics {
	fundOnce.Do(func() {
		fundRegistry = &FundMetrics{
			contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_contributions_total",
				Help: "Count of accepted contributions by fund.",
			}, []string{"fund"}),
			redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_redemptions_total",
				Help: "Count of full redemptions by fund and outcome.",
			}, []string{"fund", "outcome"}),
			profitClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_profit_claims_total",
				Help: "Count of profit-only claims by fund.",
			}, []string{"fund"}),
			proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_proposals_total",
				Help: "Count of trade proposals opened by fund.",
			}, []string{"fund"}),
			approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_approvals_total",
				Help: "Count of recorded proposal approvals by fund.",
			}, []string{"fund"}),
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_executions_total",
				Help: "Count of settlement execution attempts by fund and result.",
			}, []string{"fund", "result"}),
			expiredSwept: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fund_proposals_expired_total",
				Help: "Count of proposals flipped to expired by the sweeper.",
			}),
			lockContention: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fund_lock_contention_total",
				Help: "Count of operations rejected because the fund lock was busy.",
			}),
		}
		prometheus.MustRegister(
			fundRegistry.contributions,
			fundRegistry.redemptions,
			fundRegistry.profitClaims,
			fundRegistry.proposals,
			fundRegistry.approvals,
			fundRegistry.executions,
			fundRegistry.expiredSwept,
			fundRegistry.lockContention,
		)
	})
	return fundRegistry
}

// RecordContribution increments the contribution counter for the fund.
func (m *FundMetrics) RecordContribution(fund string) {
	if m == nil {
		return
	}
	m.contributions.WithLabelValues(fund).Inc()
}

// RecordRedemption increments the redemption counter for the fund/outcome.
func (m *FundMetrics) RecordRedemption(fund, outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(fund, outcome).Inc()
}

// RecordProfitClaim increments the profit claim counter for the fund.
func (m *FundMetrics) RecordProfitClaim(fund string) {
	if m == nil {
		return
	}
	m.profitClaims.WithLabelValues(fund).Inc()
}

// RecordProposal increments the proposal counter for the fund.
func (m *FundMetrics) RecordProposal(fund string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(fund).Inc()
}

// RecordApproval increments the approval counter for the fund.
func (m *FundMetrics) RecordApproval(fund string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(fund).Inc()
}

// RecordExecution increments the execution counter for the fund/result.
func (m *FundMetrics) RecordExecution(fund, result string) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(fund, result).Inc()
}

// RecordExpiredSwept adds the number of proposals expired by a sweep pass.
func (m *FundMetrics) RecordExpiredSwept(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.expiredSwept.Add(float64(count))
}

// RecordLockContention increments the lock contention counter.
func (m *FundMetrics) RecordLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}
