package indicators

import (
	"fmt"
	"sort"
	"sync"

	"index-signal-engine/internal/models"
)

// Registry organizes evaluators by category and runs them over candle
// windows. Registration is a local change: write the evaluator, declare its
// spec, register it. Nothing downstream depends on indicator names.
type Registry struct {
	mu         sync.RWMutex
	byName     map[string]Evaluator
	byCategory map[models.IndicatorCategory][]Evaluator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:     make(map[string]Evaluator),
		byCategory: make(map[models.IndicatorCategory][]Evaluator),
	}
}

// NewDefaultRegistry returns a registry with the full built-in indicator set.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, group := range [][]Evaluator{
		trendIndicators(),
		momentumIndicators(),
		volumeIndicators(),
		volatilityIndicators(),
		supportResistanceIndicators(),
		patternIndicators(),
	} {
		for _, e := range group {
			if err := r.Register(e); err != nil {
				// Duplicate built-in names are a programming error.
				panic(err)
			}
		}
	}
	return r
}

// Register adds an evaluator. Duplicate names are rejected.
func (r *Registry) Register(e Evaluator) error {
	spec := e.Spec()
	if spec.Name == "" {
		return fmt.Errorf("indicators: evaluator has empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[spec.Name]; exists {
		return fmt.Errorf("indicators: %q already registered", spec.Name)
	}
	r.byName[spec.Name] = e
	r.byCategory[spec.Category] = append(r.byCategory[spec.Category], e)
	return nil
}

// Count returns the number of registered evaluators.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// LookupImportance returns the importance weight for an indicator name,
// falling back to DefaultImportance for unknown names.
func (r *Registry) LookupImportance(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byName[name]; ok {
		return e.Spec().Importance
	}
	return DefaultImportance
}

// EvaluateCategory runs every evaluator of one category sequentially and
// returns results ordered by indicator name. params overrides the evaluators'
// defaults for matching keys and may be nil.
func (r *Registry) EvaluateCategory(category models.IndicatorCategory, candles []models.Candle, params Params) []models.IndicatorResult {
	r.mu.RLock()
	evaluators := r.byCategory[category]
	r.mu.RUnlock()

	results := make([]models.IndicatorResult, 0, len(evaluators))
	for _, e := range evaluators {
		results = append(results, e.Evaluate(candles, params))
	}
	sortResults(results)
	return results
}

// EvaluateAll fans categories out in parallel, joins, and returns all results
// in deterministic (category, name) order. Evaluators are pure, so identical
// windows produce identical output.
func (r *Registry) EvaluateAll(candles []models.Candle, params Params) []models.IndicatorResult {
	var wg sync.WaitGroup
	perCategory := make([][]models.IndicatorResult, len(models.Categories))

	for i, category := range models.Categories {
		wg.Add(1)
		go func(i int, category models.IndicatorCategory) {
			defer wg.Done()
			perCategory[i] = r.EvaluateCategory(category, candles, params)
		}(i, category)
	}
	wg.Wait()

	var all []models.IndicatorResult
	for _, results := range perCategory {
		all = append(all, results...)
	}
	return all
}

func sortResults(results []models.IndicatorResult) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})
}
