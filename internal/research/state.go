package research

import (
	"sort"
	"sync"
	"time"

	"github.com/spigell/hh-researcher/internal/ai"
)

// State is the single mutable object of one run. Nodes read it through
// accessors that return copies and change it only through the Set*, Add* and
// CompleteCycle methods. It is safe for concurrent use so that the gap
// analyser and the strategy node can run side by side.
type State struct {
	mu sync.RWMutex

	request    Request
	evaluation *EvaluationResult
	gaps       []ai.InformationGap
	search     map[ai.InfoType]*ai.SearchResult
	added      []ai.InfoType
	history    []CycleResult
	cycle      int
	maxCycles  int
	proceed    bool
	final      *FinalJudgement
	strategy   Strategy
	insights   *Insights
}

// NewState creates the state for a validated request.
func NewState(req Request, initial Strategy) *State {
	maxCycles := req.MaxCycles
	if maxCycles < 1 {
		maxCycles = 1
	}
	return &State{
		request:   req,
		search:    make(map[ai.InfoType]*ai.SearchResult),
		maxCycles: maxCycles,
		proceed:   true,
		strategy:  initial,
	}
}

func (s *State) Request() Request { return s.request }

// Cycle is the number of completed cycles.
func (s *State) Cycle() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle
}

func (s *State) MaxCycles() int { return s.maxCycles }

// ShouldContinue reports whether another cycle may run.
func (s *State) ShouldContinue() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proceed && s.cycle < s.maxCycles
}

// HasNextCycle reports whether a cycle will follow the one in progress.
func (s *State) HasNextCycle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proceed && s.cycle+1 < s.maxCycles
}

func (s *State) Evaluation() *EvaluationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluation.Clone()
}

func (s *State) Gaps() []ai.InformationGap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ai.InformationGap(nil), s.gaps...)
}

// SearchResults returns a deep copy of every accumulated search result.
func (s *State) SearchResults() map[ai.InfoType]*ai.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSearch(s.search)
}

func (s *State) History() []CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CycleResult(nil), s.history...)
}

func (s *State) Final() *FinalJudgement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.final == nil {
		return nil
	}
	f := *s.final
	return &f
}

func (s *State) Strategy() Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy
}

func (s *State) Insights() *Insights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.insights
}

func (s *State) SetEvaluation(e *EvaluationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluation = e.Clone()
}

// SetGaps stores the gaps of the current cycle. proceed=false stops the loop
// for good; proceed=true never restarts a stopped loop.
func (s *State) SetGaps(gaps []ai.InformationGap, proceed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gaps = append([]ai.InformationGap(nil), gaps...)
	if !proceed {
		s.proceed = false
	}
}

// Stop ends the loop after the current cycle.
func (s *State) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proceed = false
}

// AddSearchResult stores r under infoType, replacing an earlier result for
// the same type. Results are never removed.
func (s *State) AddSearchResult(infoType ai.InfoType, r *ai.SearchResult) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search[infoType] = r.Clone()
	for _, t := range s.added {
		if t == infoType {
			return
		}
	}
	s.added = append(s.added, infoType)
}

func (s *State) SetStrategy(st Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = st
}

func (s *State) SetInsights(in *Insights) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights = in
}

func (s *State) SetFinal(f FinalJudgement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.final = &f
}

// CompleteCycle freezes the current evaluation, gaps and the search results
// added since the previous cycle into the history and advances the counter.
func (s *State) CompleteCycle(duration time.Duration) CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make(map[ai.InfoType]*ai.SearchResult, len(s.added))
	for _, t := range s.added {
		added[t] = s.search[t].Clone()
	}
	s.cycle++
	res := CycleResult{
		Cycle:      s.cycle,
		Evaluation: s.evaluation.Clone(),
		Gaps:       append([]ai.InformationGap(nil), s.gaps...),
		Searches:   added,
		Duration:   duration,
	}
	s.history = append(s.history, res)
	s.added = nil
	return res
}

func cloneSearch(in map[ai.InfoType]*ai.SearchResult) map[ai.InfoType]*ai.SearchResult {
	out := make(map[ai.InfoType]*ai.SearchResult, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// searchKeys lists info types in a stable order.
func searchKeys(in map[ai.InfoType]*ai.SearchResult) []ai.InfoType {
	keys := make([]ai.InfoType, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
