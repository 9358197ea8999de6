package research

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/spigell/hh-researcher/internal/uncertainty"
	"github.com/spigell/hh-researcher/internal/weights"
	"github.com/spigell/hh-researcher/internal/websearch"
	"go.uber.org/zap"
)

const validationScore = 80

// Strategy is what the next evaluation and search should use.
type Strategy struct {
	Weights     weights.Result
	Uncertainty *uncertainty.Report
	Depth       websearch.Depth
}

// InitialStrategy is the strategy of the first cycle.
func InitialStrategy(req Request) Strategy {
	return Strategy{
		Weights: weights.Adjust(jobSignals(req)),
		Depth:   websearch.DepthAdvanced,
	}
}

// Strategist recomputes the weight profile and the uncertainty of the
// current evaluation. It runs next to the gap analyser.
type Strategist struct {
	logger *zap.Logger
}

func NewStrategist(logger *zap.Logger) *Strategist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategist{logger: logger}
}

func (st *Strategist) Name() string { return "strategy" }

func (st *Strategist) Process(_ context.Context, s *State) error {
	ev := s.Evaluation()
	if ev == nil {
		return nil
	}
	req := s.Request()

	report := uncertainty.Quantify(uncertainty.Input{
		EvaluationText: ev.Raw,
		ResumeText:     req.Candidate.Resume,
		Requirements:   req.Job.Requirements(),
		RequiredSkills: req.Job.RequiredSkills(),
		Search:         s.SearchResults(),
	})

	// A high score only needs confirming, not broad digging.
	depth := websearch.DepthAdvanced
	if ev.Score >= validationScore {
		depth = websearch.DepthBasic
	}

	next := Strategy{
		Weights:     weights.Adjust(jobSignals(req)),
		Uncertainty: &report,
		Depth:       depth,
	}
	s.SetStrategy(next)

	st.logger.Debug("strategy updated",
		zap.String("weights", next.Weights.Explanation),
		zap.Float64("uncertainty", report.Total),
		zap.String("level", string(report.Level)),
		zap.String("depth", string(depth)),
	)
	return nil
}

func jobSignals(req Request) weights.Job {
	job := weights.Job{
		Title:       headline(req.Job.Description, 100),
		Description: req.Job.Description,
		Memo:        req.Job.Memo,
	}
	if sj := req.Job.Structured; sj != nil {
		if sj.Position != "" {
			job.Title = sj.Position
		}
		job.Industry = sj.Industry
		job.ExperienceYearsMin = sj.ExperienceYearsMin
		job.SalaryMax = sj.SalaryMax
	}
	return job
}

// headline returns the first non-empty line of text, cut to limit runes.
func headline(text string, limit int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > limit {
			line = string([]rune(line)[:limit])
		}
		return line
	}
	return ""
}
