package repository

import "github.com/okian/jury/internal/domain/model"

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithEvaluations seeds evaluation documents, keyed by their gate key.
func WithEvaluations(evs ...model.Evaluation) Option {
	return func(s *MemStore) {
		for _, ev := range evs {
			s.evals[ev.Key] = cloneEvaluation(ev)
		}
	}
}

// WithDecisions seeds final-decision documents.
func WithDecisions(decs ...model.FinalDecision) Option {
	return func(s *MemStore) {
		for _, dec := range decs {
			s.decs[dec.Key] = cloneDecision(dec)
		}
	}
}
