// Package research runs the deep-research evaluation loop: score a candidate
// against a job, look for missing or conflicting information, search for it,
// re-score, and finally write a recommendation.
package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/career"
	"github.com/spigell/hh-researcher/internal/contradiction"
	"github.com/spigell/hh-researcher/internal/tenure"
	"github.com/spigell/hh-researcher/internal/uncertainty"
	"github.com/spigell/hh-researcher/internal/weights"
)

const (
	DefaultMaxCycles = 3
	MaxCyclesLimit   = 5
)

// ErrEvaluationParse is returned when no score can be recovered from the
// evaluator response.
var ErrEvaluationParse = errors.New("evaluation response could not be parsed")

// ParseError carries the response that failed to parse.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrEvaluationParse, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrEvaluationParse }

// StructuredJob is the optional structured form of a job posting.
type StructuredJob struct {
	Position           string   `json:"position,omitempty" mapstructure:"position"`
	EmploymentType     string   `json:"employment_type,omitempty" mapstructure:"employment_type"`
	Location           string   `json:"work_location,omitempty" mapstructure:"work_location"`
	Industry           string   `json:"industry,omitempty" mapstructure:"industry"`
	SalaryMin          *int     `json:"salary_min,omitempty" mapstructure:"salary_min" validate:"omitempty,min=0"`
	SalaryMax          *int     `json:"salary_max,omitempty" mapstructure:"salary_max" validate:"omitempty,min=0"`
	RequiredSkills     []string `json:"required_skills,omitempty" mapstructure:"required_skills"`
	PreferredSkills    []string `json:"preferred_skills,omitempty" mapstructure:"preferred_skills"`
	ExperienceYearsMin *int     `json:"experience_years_min,omitempty" mapstructure:"experience_years_min" validate:"omitempty,min=0"`
}

// DecodeStructuredJob converts loosely typed job data, such as a parsed YAML
// or JSON document, into a StructuredJob. Numbers given as strings are
// accepted.
func DecodeStructuredJob(raw map[string]any) (*StructuredJob, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out StructuredJob
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("create structured job decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode structured job: %w", err)
	}
	return &out, nil
}

// JobSpec describes the opening.
type JobSpec struct {
	Description string         `json:"job_description,omitempty"`
	Memo        string         `json:"job_memo" validate:"required"`
	Structured  *StructuredJob `json:"structured_job_data,omitempty"`
}

// RequiredSkills returns the structured required skills, if any.
func (j JobSpec) RequiredSkills() []string {
	if j.Structured == nil {
		return nil
	}
	return j.Structured.RequiredSkills
}

// Requirements is the free text the requirement heuristics read.
func (j JobSpec) Requirements() string {
	return strings.TrimSpace(j.Description + "\n" + j.Memo)
}

// UnmarshalJSON decodes structured_job_data through DecodeStructuredJob so
// numbers written as strings are accepted.
func (j *JobSpec) UnmarshalJSON(data []byte) error {
	var raw struct {
		Description string         `json:"job_description"`
		Memo        string         `json:"job_memo"`
		Structured  map[string]any `json:"structured_job_data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	structured, err := DecodeStructuredJob(raw.Structured)
	if err != nil {
		return err
	}
	*j = JobSpec{Description: raw.Description, Memo: raw.Memo, Structured: structured}
	return nil
}

// CandidateSpec describes the candidate.
type CandidateSpec struct {
	Resume    string `json:"resume" validate:"required"`
	Age       *int   `json:"candidate_age,omitempty" validate:"omitempty,min=15,max=100"`
	Gender    string `json:"candidate_gender,omitempty"`
	Company   string `json:"candidate_company,omitempty"`
	Companies *int   `json:"enrolled_company_count,omitempty" validate:"omitempty,min=1"`
}

// Request is the input of one evaluation run.
type Request struct {
	Candidate CandidateSpec `json:"candidate"`
	Job       JobSpec       `json:"job"`
	MaxCycles int           `json:"max_cycles" validate:"min=1,max=5"`
}

var validate = validator.New()

// Validate applies defaults and checks the request.
func (r *Request) Validate() error {
	if r.MaxCycles == 0 {
		r.MaxCycles = DefaultMaxCycles
	}
	r.Candidate.Resume = strings.TrimSpace(r.Candidate.Resume)
	r.Job.Memo = strings.TrimSpace(r.Job.Memo)
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// Item is one scored line of a category breakdown.
type Item struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Max      float64 `json:"max_score"`
	Evidence string  `json:"evidence,omitempty"`
}

// CategoryScore is the breakdown of one evaluation category.
type CategoryScore struct {
	Score     float64 `json:"actual_score"`
	Max       float64 `json:"max_score"`
	Items     []Item  `json:"items,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// CategoryMax is the number of points each category is scored out of.
var CategoryMax = map[weights.Dimension]float64{
	weights.RequiredSkills:    45,
	weights.PracticalAbility:  25,
	weights.PreferredSkills:   15,
	weights.OrganisationalFit: 10,
	weights.OutstandingCareer: 5,
}

// Adjustment records how the model score was turned into the final one.
type Adjustment struct {
	ModelScore     int     `json:"model_score"`
	RuleScore      *int    `json:"rule_score,omitempty"`
	CareerPenalty  int     `json:"career_penalty"`
	TenureFactor   float64 `json:"tenure_factor"`
	TenureDelta    int     `json:"tenure_delta"`
	RequiredMissed int     `json:"required_missed"`
}

// EvaluationResult is the verdict of one evaluator run.
type EvaluationResult struct {
	Score      int                                 `json:"score"`
	Confidence ai.Confidence                       `json:"confidence"`
	Strengths  []string                            `json:"strengths"`
	Concerns   []string                            `json:"concerns"`
	Summary    string                              `json:"summary"`
	Breakdown  map[weights.Dimension]CategoryScore `json:"breakdown,omitempty"`
	Missing    []string                            `json:"missing_required,omitempty"`
	Adjustment Adjustment                          `json:"adjustment"`
	Weights    weights.Profile                     `json:"weights"`
	Raw        string                              `json:"-"`

	ExperienceYears float64               `json:"experience_years"`
	Uncertainty     *uncertainty.Report   `json:"uncertainty,omitempty"`
	Contradictions  *contradiction.Report `json:"contradictions,omitempty"`
	Career          *career.Assessment    `json:"career,omitempty"`
	Tenure          *tenure.Assessment    `json:"tenure,omitempty"`
}

// Clone returns a copy that shares nothing mutable with e.
func (e *EvaluationResult) Clone() *EvaluationResult {
	if e == nil {
		return nil
	}
	out := *e
	out.Strengths = append([]string(nil), e.Strengths...)
	out.Concerns = append([]string(nil), e.Concerns...)
	out.Missing = append([]string(nil), e.Missing...)
	if e.Breakdown != nil {
		out.Breakdown = make(map[weights.Dimension]CategoryScore, len(e.Breakdown))
		for d, c := range e.Breakdown {
			c.Items = append([]Item(nil), c.Items...)
			out.Breakdown[d] = c
		}
	}
	if e.Adjustment.RuleScore != nil {
		v := *e.Adjustment.RuleScore
		out.Adjustment.RuleScore = &v
	}
	if e.Uncertainty != nil {
		u := *e.Uncertainty
		u.KeyFactors = append([]string(nil), u.KeyFactors...)
		u.Recommendations = append([]string(nil), u.Recommendations...)
		out.Uncertainty = &u
	}
	if e.Contradictions != nil {
		c := *e.Contradictions
		c.Contradictions = append([]contradiction.Contradiction(nil), c.Contradictions...)
		c.Recommendations = append([]string(nil), c.Recommendations...)
		out.Contradictions = &c
	}
	if e.Career != nil {
		c := *e.Career
		out.Career = &c
	}
	if e.Tenure != nil {
		t := *e.Tenure
		out.Tenure = &t
	}
	return &out
}

// RequiredCoverage is the share of required items scored above half their
// maximum. ok is false when the breakdown lists no required items.
func (e *EvaluationResult) RequiredCoverage() (ratio float64, ok bool) {
	if e == nil {
		return 0, false
	}
	cat, found := e.Breakdown[weights.RequiredSkills]
	if !found || len(cat.Items) == 0 {
		return 0, false
	}
	satisfied := 0
	for _, it := range cat.Items {
		if it.Max > 0 && it.Score/it.Max > 0.5 {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(cat.Items)), true
}

// CycleResult is the frozen outcome of one loop iteration.
type CycleResult struct {
	Cycle      int                              `json:"cycle"`
	Evaluation *EvaluationResult                `json:"evaluation"`
	Gaps       []ai.InformationGap              `json:"gaps"`
	Searches   map[ai.InfoType]*ai.SearchResult `json:"search_results"`
	Duration   time.Duration                    `json:"duration"`
}

// Grade is the final recommendation letter.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// FinalJudgement is the reporter's verdict.
type FinalJudgement struct {
	Recommendation    Grade    `json:"recommendation"`
	Reason            string   `json:"reason"`
	Strengths         []string `json:"strengths"`
	Concerns          []string `json:"concerns"`
	OverallAssessment string   `json:"overall_assessment"`
}

// CycleSummary is the serialised view of a CycleResult.
type CycleSummary struct {
	Cycle             int           `json:"cycle"`
	Score             int           `json:"score"`
	Confidence        ai.Confidence `json:"confidence"`
	GapsFound         int           `json:"gaps_found"`
	SearchesPerformed int           `json:"searches_performed"`
	Duration          float64       `json:"duration"`
}

// Result is what a run returns to callers.
type Result struct {
	RequestID         string         `json:"request_id"`
	FinalJudgment     FinalJudgement `json:"final_judgment"`
	EvaluationHistory []CycleSummary `json:"evaluation_history"`
	TotalCycles       int            `json:"total_cycles"`
	TotalSearches     int            `json:"total_searches"`
	FinalScore        *int           `json:"final_score"`
	FinalConfidence   ai.Confidence  `json:"final_confidence,omitempty"`
	ModelVersion      string         `json:"model_version"`
}

func summarise(history []CycleResult) ([]CycleSummary, int) {
	out := make([]CycleSummary, 0, len(history))
	total := 0
	for _, c := range history {
		s := CycleSummary{
			Cycle:             c.Cycle,
			GapsFound:         len(c.Gaps),
			SearchesPerformed: len(c.Searches),
			Duration:          math.Round(c.Duration.Seconds()*100) / 100,
		}
		if c.Evaluation != nil {
			s.Score = c.Evaluation.Score
			s.Confidence = c.Evaluation.Confidence
		}
		total += s.SearchesPerformed
		out = append(out, s)
	}
	return out, total
}
