package controller

import (
	"time"

	"github.com/BaSui01/agentcad/cad/model"
)

// ErrorTrend classifies how an agent's error rate is moving.
type ErrorTrend string

const (
	TrendImproving ErrorTrend = "improving"
	TrendDegrading ErrorTrend = "degrading"
	TrendStable    ErrorTrend = "stable"
)

// LearningStatus summarizes an agent's trajectory for operators.
type LearningStatus string

const (
	LearningNew            LearningStatus = "new"
	LearningProficient     LearningStatus = "proficient"
	LearningNeedsAttention LearningStatus = "needs_attention"
	LearningStruggling     LearningStatus = "struggling"
	LearningLearning       LearningStatus = "learning"
	LearningStable         LearningStatus = "stable"
)

// trendWindow is the minimum history length before a trend is computed;
// below it the trend is always stable.
const trendWindow = 10

// trendMargin is the error-rate delta between history halves required
// to call a trend.
const trendMargin = 0.1

// AgentMetricsReport aggregates an agent's operation history on demand.
type AgentMetricsReport struct {
	AgentID         string         `json:"agent_id"`
	OperationCount  int            `json:"operation_count"`
	SuccessCount    int            `json:"success_count"`
	ErrorCount      int            `json:"error_count"`
	SuccessRate     float64        `json:"success_rate"`
	AverageDuration time.Duration  `json:"average_duration"`
	ErrorTrend      ErrorTrend     `json:"error_trend"`
	LearningStatus  LearningStatus `json:"learning_status"`
}

// AgentMetrics computes the on-demand report for one agent.
func (c *Controller) AgentMetrics(agentID string) (*AgentMetricsReport, error) {
	state, err := c.state(agentID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return computeMetrics(state.agent), nil
}

func computeMetrics(agent *model.Agent) *AgentMetricsReport {
	report := &AgentMetricsReport{
		AgentID:        agent.AgentID,
		OperationCount: agent.OperationCount,
		SuccessCount:   agent.SuccessCount,
		ErrorCount:     agent.ErrorCount,
		ErrorTrend:     TrendStable,
	}
	if agent.OperationCount > 0 {
		report.SuccessRate = float64(agent.SuccessCount) / float64(agent.OperationCount)
	}

	history := agent.OperationHistory
	if len(history) > 0 {
		var total time.Duration
		for _, entry := range history {
			total += entry.Duration
		}
		report.AverageDuration = total / time.Duration(len(history))
	}
	report.ErrorTrend = errorTrend(history)
	report.LearningStatus = learningStatus(report)
	return report
}

// errorTrend splits the history in two and compares error rates; the
// trend is only called when the delta clears the margin.
func errorTrend(history []model.OperationHistoryEntry) ErrorTrend {
	if len(history) < trendWindow {
		return TrendStable
	}
	half := len(history) / 2
	former := errorRateOf(history[:half])
	latter := errorRateOf(history[half:])
	switch {
	case latter < former-trendMargin:
		return TrendImproving
	case latter > former+trendMargin:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func errorRateOf(entries []model.OperationHistoryEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	errs := 0
	for _, e := range entries {
		if !e.Success {
			errs++
		}
	}
	return float64(errs) / float64(len(entries))
}

// learningStatus applies the fixed precedence order: new, proficient,
// needs_attention, struggling, learning, stable.
func learningStatus(r *AgentMetricsReport) LearningStatus {
	switch {
	case r.OperationCount < trendWindow:
		return LearningNew
	case r.SuccessRate > 0.9 && r.ErrorTrend != TrendDegrading:
		return LearningProficient
	case r.ErrorTrend == TrendDegrading:
		return LearningNeedsAttention
	case r.SuccessRate < 0.5:
		return LearningStruggling
	case r.ErrorTrend == TrendImproving:
		return LearningLearning
	default:
		return LearningStable
	}
}
