package career

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/hh-researcher/internal/ai"
	"github.com/spigell/hh-researcher/internal/utils"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// SkillMatch is the verdict for one required skill.
type SkillMatch struct {
	Skill     string  `json:"skill"`
	Matched   bool    `json:"matched"`
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale,omitempty"`
}

// Verdict is the relevance judgement for one period.
type Verdict struct {
	Matches       []SkillMatch `json:"matches"`
	RoleRelevance float64      `json:"role_relevance"`
}

// MatchRatio is the share of required skills the period demonstrates.
func (v Verdict) MatchRatio() float64 {
	if len(v.Matches) == 0 {
		return 0
	}
	n := 0
	for _, m := range v.Matches {
		if m.Matched {
			n++
		}
	}
	return float64(n) / float64(len(v.Matches))
}

const (
	relevantSkillRatio = 0.3
	relevantRole       = 0.6
)

// Relevant applies the period relevance rule.
func (v Verdict) Relevant() bool {
	return v.MatchRatio() >= relevantSkillRatio || v.RoleRelevance >= relevantRole
}

// Matcher judges how one period relates to the job requirements.
type Matcher interface {
	Match(ctx context.Context, required []string, requiredExperience string, p Period) (Verdict, error)
}

// KeywordMatcher compares skills as whole terms and the role title against role
// keywords found in the required experience text.
type KeywordMatcher struct{}

var roleKeywords = []string{
	"エンジニア", "開発", "設計", "実装", "プログラミング",
	"マネージャー", "リーダー", "管理", "マネジメント",
	"営業", "セールス", "コンサル", "企画", "戦略",
	"engineer", "developer", "development", "architect", "programming",
	"manager", "lead", "management", "sales", "consultant", "planning", "strategy",
}

func (KeywordMatcher) Match(_ context.Context, required []string, requiredExperience string, p Period) (Verdict, error) {
	v := Verdict{Matches: make([]SkillMatch, 0, len(required))}
	for _, req := range required {
		m := SkillMatch{Skill: req}
		if strings.TrimSpace(req) == "" {
			v.Matches = append(v.Matches, m)
			continue
		}
		for _, have := range p.Skills {
			if utils.SameTerm(have, req) {
				m.Matched = true
				break
			}
		}
		if !m.Matched && utils.ContainsTerm(p.Text, req) {
			m.Matched = true
		}
		if m.Matched {
			m.Score = 1
		}
		v.Matches = append(v.Matches, m)
	}

	experience := strings.ToLower(requiredExperience)
	role := strings.ToLower(p.Role)
	for _, kw := range roleKeywords {
		kw = strings.ToLower(kw)
		if strings.Contains(experience, kw) && strings.Contains(role, kw) {
			v.RoleRelevance = 1
			break
		}
	}
	return v, nil
}

//go:embed skill_prompt.md
var promptTemplate string

const verdictSchema = `{
  "type": "object",
  "required": ["matches"],
  "properties": {
    "matches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["skill", "matched"],
        "properties": {
          "skill": {"type": "string"},
          "matched": {"type": "boolean"},
          "score": {"type": "number"},
          "rationale": {"type": "string"}
        }
      }
    },
    "role_relevance": {"type": "number"}
  }
}`

var schema = mustSchema(verdictSchema)

func mustSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compile verdict schema: %v", err))
	}
	return s
}

const defaultMaxLogLength = 200

// SemanticMatcher asks the fast model tier for a per-skill JSON verdict.
type SemanticMatcher struct {
	llm       ai.Completer
	logger    *zap.Logger
	maxLogLen int
}

func NewSemanticMatcher(llm ai.Completer, logger *zap.Logger, maxLogLength int) *SemanticMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &SemanticMatcher{
		llm:       llm,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (m *SemanticMatcher) Match(ctx context.Context, required []string, requiredExperience string, p Period) (Verdict, error) {
	if m.llm == nil {
		return Verdict{}, fmt.Errorf("semantic matcher has no model")
	}

	prompt := buildPrompt(required, requiredExperience, p)
	m.logger.Debug("skill verdict request",
		zap.String("company", p.Company),
		zap.String("role", p.Role),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)),
	)

	raw, err := m.llm.Complete(ctx, prompt, ai.TierFast)
	if err != nil {
		return Verdict{}, err
	}

	m.logger.Debug("skill verdict response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	return parseVerdict(raw, required)
}

func buildPrompt(required []string, requiredExperience string, p Period) string {
	skills := strings.Join(p.Skills, ", ")
	if skills == "" {
		skills = "(none listed)"
	}
	var list strings.Builder
	for _, s := range required {
		fmt.Fprintf(&list, "- %s\n", s)
	}
	r := strings.NewReplacer(
		"{{REQUIRED_SKILLS}}", strings.TrimRight(list.String(), "\n"),
		"{{REQUIRED_EXPERIENCE}}", strings.TrimSpace(requiredExperience),
		"{{ROLE}}", p.Role,
		"{{COMPANY}}", p.Company,
		"{{SKILLS}}", skills,
		"{{DESCRIPTION}}", p.Text,
	)
	return r.Replace(promptTemplate)
}

func parseVerdict(raw string, required []string) (Verdict, error) {
	fixed, err := utils.RepairJSON(raw)
	if err != nil {
		return Verdict{}, fmt.Errorf("parse skill verdict: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(fixed))
	if err != nil {
		return Verdict{}, fmt.Errorf("validate skill verdict: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return Verdict{}, fmt.Errorf("skill verdict does not match schema: %s", strings.Join(problems, "; "))
	}

	var decoded Verdict
	if err := json.Unmarshal([]byte(fixed), &decoded); err != nil {
		return Verdict{}, fmt.Errorf("decode skill verdict: %w", err)
	}

	bySkill := make(map[string]SkillMatch, len(decoded.Matches))
	for _, m := range decoded.Matches {
		bySkill[strings.ToLower(strings.TrimSpace(m.Skill))] = m
	}

	// One entry per required skill, in request order.
	v := Verdict{
		Matches:       make([]SkillMatch, 0, len(required)),
		RoleRelevance: clamp01(decoded.RoleRelevance),
	}
	for _, req := range required {
		m, ok := bySkill[strings.ToLower(strings.TrimSpace(req))]
		if !ok {
			v.Matches = append(v.Matches, SkillMatch{Skill: req})
			continue
		}
		m.Skill = req
		m.Score = clamp01(m.Score)
		v.Matches = append(v.Matches, m)
	}
	return v, nil
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
