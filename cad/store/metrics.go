package store

import (
	"context"

	"github.com/BaSui01/agentcad/cad/model"
)

// AgentMetrics is the store-level aggregate over an agent's logged
// operations, re-derivable from the journal at any time.
type AgentMetrics struct {
	TotalOperations    int
	SuccessRate        float64
	ErrorRateFirst10   float64
	ErrorRateLast10    float64
	ImprovementPercent float64
}

// AgentMetricsFor aggregates agent_id's operation journal, optionally
// scoped to a single workspace. error_rate_first_10/last_10 are
// computed over the first and last 10 operations (or fewer, if the
// agent has logged less than 10), in chronological order.
func (s *Store) AgentMetricsFor(ctx context.Context, agentID, workspaceID string) (*AgentMetrics, error) {
	ops, err := s.ListOperationsByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if workspaceID != "" {
		filtered := ops[:0:0]
		for _, op := range ops {
			if op.WorkspaceID == workspaceID {
				filtered = append(filtered, op)
			}
		}
		ops = filtered
	}

	if len(ops) == 0 {
		return &AgentMetrics{}, nil
	}

	successCount := 0
	for _, op := range ops {
		if op.ResultStatus == model.ResultSuccess {
			successCount++
		}
	}

	window := 10
	first := ops
	if len(ops) > window {
		first = ops[:window]
	}
	last := ops
	if len(ops) > window {
		last = ops[len(ops)-window:]
	}

	firstRate := errorRate(first)
	lastRate := errorRate(last)

	var improvement float64
	switch {
	case firstRate == 0 && lastRate == 0:
		improvement = 0
	case firstRate == 0 && lastRate > 0:
		improvement = -100
	default:
		improvement = (firstRate - lastRate) / firstRate * 100
	}

	return &AgentMetrics{
		TotalOperations:    len(ops),
		SuccessRate:        float64(successCount) / float64(len(ops)),
		ErrorRateFirst10:   firstRate,
		ErrorRateLast10:    lastRate,
		ImprovementPercent: improvement,
	}, nil
}

func errorRate(ops []*model.Operation) float64 {
	if len(ops) == 0 {
		return 0
	}
	errs := 0
	for _, op := range ops {
		if op.ResultStatus == model.ResultError {
			errs++
		}
	}
	return float64(errs) / float64(len(ops))
}
