package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/career"
	"github.com/spigell/hh-researcher/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deps are the outbound capabilities of the orchestrator. Web, Embedder and
// Index are optional.
type Deps struct {
	LLM      ai.Completer
	Web      WebSearcher
	Embedder Embedder
	Index    CaseIndex
	Logger   *zap.Logger
}

// Options tune the loop. Start from DefaultOptions.
type Options struct {
	ModelVersion         string
	Enhanced             bool
	Hybrid               bool
	SemanticMatching     bool
	ReliabilityThreshold float64
	SearchTimeout        time.Duration
	MaxLogLength         int
	Now                  func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Enhanced:             true,
		SemanticMatching:     true,
		ReliabilityThreshold: DefaultReliability,
		SearchTimeout:        DefaultSearchTimeout,
		MaxLogLength:         defaultMaxLogLength,
		Now:                  time.Now,
	}
}

// Orchestrator owns the nodes and runs one request through them:
// RAG once, then EVAL, GAP and STRATEGY side by side, SEARCH, repeated until
// the gap analyser stops or the cycle limit is hit, then REPORT.
type Orchestrator struct {
	evaluator  *Evaluator
	gaps       *GapAnalyzer
	strategist *Strategist
	searcher   *Searcher
	retriever  *Retriever
	reporter   *Reporter

	modelVersion string
	newID        func() string
	logger       *zap.Logger
}

func New(deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	evalOpts := []EvaluatorOption{
		WithEnhanced(opts.Enhanced),
		WithHybrid(opts.Hybrid),
		WithEvaluatorClock(opts.Now),
		WithMaxLogLength(opts.MaxLogLength),
	}
	if opts.SemanticMatching && deps.LLM != nil {
		matcher := career.NewSemanticMatcher(deps.LLM, logger.Named("career"), opts.MaxLogLength)
		evalOpts = append(evalOpts, WithCareerAnalyzer(career.New(logger.Named("career"),
			career.WithMatcher(matcher), career.WithClock(opts.Now))))
	}

	return &Orchestrator{
		evaluator:  NewEvaluator(deps.LLM, logger.Named("evaluator"), evalOpts...),
		gaps:       NewGapAnalyzer(deps.LLM, logger.Named("gaps"), opts.Now, opts.MaxLogLength),
		strategist: NewStrategist(logger.Named("strategy")),
		searcher: NewSearcher(deps.Web, deps.LLM, logger.Named("search"),
			WithSearchTimeout(opts.SearchTimeout),
			WithReliabilityThreshold(opts.ReliabilityThreshold),
			WithSearcherClock(opts.Now),
		),
		retriever:    NewRetriever(deps.Embedder, deps.Index, logger.Named("rag")),
		reporter:     NewReporter(deps.LLM, logger.Named("report"), opts.MaxLogLength),
		modelVersion: opts.ModelVersion,
		newID:        uuid.NewString,
		logger:       logger,
	}
}

// Run evaluates one request. An invalid request fails before any outbound
// call. A failed evaluation returns a D result together with the error; a
// cancelled context returns a report built from the cycles completed so far
// together with the context error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	requestID := o.newID()
	log := logger.ForRequest(o.logger, requestID)
	state := NewState(req, InitialStrategy(req))
	log.Info("research started", zap.Int("max_cycles", state.MaxCycles()))

	if o.retriever.Configured() {
		if err := runNode(ctx, log, o.retriever, state, 0); err != nil {
			log.Warn("similar cases unavailable", zap.Error(err))
		}
	}

	for state.ShouldContinue() && ctx.Err() == nil {
		started := time.Now()

		if err := o.evaluate(ctx, log, state); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("evaluation failed", zap.Error(err))
			return o.failed(requestID, state, err), err
		}

		if err := o.analyse(ctx, log, state); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("gap analysis failed, stopping research", zap.Error(err))
			state.Stop()
		}

		if state.HasNextCycle() {
			if err := runNode(ctx, log, o.searcher, state, state.Cycle()+1); err != nil {
				log.Warn("search step failed", zap.Error(err))
			}
		}

		res := state.CompleteCycle(time.Since(started))
		log.Info("cycle completed",
			zap.Int(logger.FieldCycle, res.Cycle),
			zap.Int("score", res.Evaluation.Score),
			zap.String("confidence", string(res.Evaluation.Confidence)),
			zap.Int("gaps", len(res.Gaps)),
			zap.Int("searches", len(res.Searches)),
			zap.Bool("continue", state.ShouldContinue()),
		)
	}

	if err := ctx.Err(); err != nil {
		log.Warn("research cancelled, reporting completed cycles", zap.Error(err), zap.Int("cycles", state.Cycle()))
		state.SetFinal(Fallback(state.Evaluation()))
		return o.result(requestID, state), err
	}

	if err := runNode(ctx, log, o.reporter, state, state.Cycle()); err != nil {
		state.SetFinal(Fallback(state.Evaluation()))
	}
	result := o.result(requestID, state)
	log.Info("research finished",
		zap.String("recommendation", string(result.FinalJudgment.Recommendation)),
		zap.Int("cycles", result.TotalCycles),
		zap.Int("searches", result.TotalSearches),
	)
	return result, nil
}

// evaluate runs the evaluator and retries once with the repair prompt when
// the answer had no readable score.
func (o *Orchestrator) evaluate(ctx context.Context, log *zap.Logger, s *State) error {
	err := runNode(ctx, log, o.evaluator, s, s.Cycle()+1)
	if !errors.Is(err, ErrEvaluationParse) {
		return err
	}
	log.Warn("evaluation unreadable, retrying with repair prompt", zap.Error(err))
	return runNode(ctx, log, repairNode{o.evaluator, err}, s, s.Cycle()+1)
}

type repairNode struct {
	evaluator *Evaluator
	cause     error
}

func (r repairNode) Name() string { return "evaluator_repair" }

func (r repairNode) Process(ctx context.Context, s *State) error {
	return r.evaluator.Repair(ctx, s, r.cause)
}

// analyse runs the gap analyser and the strategist concurrently, then copies
// the fresh uncertainty onto the evaluation.
func (o *Orchestrator) analyse(ctx context.Context, log *zap.Logger, s *State) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runNode(gctx, log, o.gaps, s, s.Cycle()+1) })
	g.Go(func() error { return runNode(gctx, log, o.strategist, s, s.Cycle()+1) })
	if err := g.Wait(); err != nil {
		return err
	}

	if u := s.Strategy().Uncertainty; u != nil {
		ev := s.Evaluation()
		ev.Uncertainty = u
		s.SetEvaluation(ev)
	}
	return nil
}

func (o *Orchestrator) failed(requestID string, s *State, cause error) *Result {
	s.SetFinal(FinalJudgement{
		Recommendation: GradeD,
		Reason:         "The evaluation could not be completed.",
		Concerns:       []string{"Evaluation error: " + cause.Error()},
		OverallAssessment: fmt.Sprintf("The candidate could not be evaluated because the evaluation step failed (%v). "+
			"No recommendation can be made until the evaluation is repeated.", cause),
	})
	return o.result(requestID, s)
}

func (o *Orchestrator) result(requestID string, s *State) *Result {
	history := s.History()
	summaries, searches := summarise(history)
	res := &Result{
		RequestID:         requestID,
		EvaluationHistory: summaries,
		TotalCycles:       len(history),
		TotalSearches:     searches,
		ModelVersion:      o.modelVersion,
	}
	if f := s.Final(); f != nil {
		res.FinalJudgment = *f
	}
	if ev := s.Evaluation(); ev != nil {
		score := ev.Score
		res.FinalScore = &score
		res.FinalConfidence = ev.Confidence
	}
	return res
}
