// Package reporting writes the narrative reports attached to scored surveys.
// Reports come from an LLM when one is configured and from a fixed template
// otherwise, so submission never depends on the LLM being reachable.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const disclaimer = "\n\n---\n*이 보고서는 AI에 의해 생성되었으며, 전문 의료진의 진단을 대체하지 않습니다. 정확한 진단과 치료를 위해서는 반드시 전문의와 상담하시기 바랍니다.*"

// ScaleInput is one scored survey to report on.
type ScaleInput struct {
	SurveyType  string
	Score       int
	MaxScore    int
	Subscores   map[string]int
	Category    string
	Description string
	Gender      string
	SubmittedAt time.Time
}

type Generator struct {
	model   Model
	logger  zerolog.Logger
	timeout time.Duration
}

// NewGenerator returns a generator. A nil model produces template reports only.
func NewGenerator(model Model, logger zerolog.Logger) *Generator {
	return &Generator{model: model, logger: logger, timeout: 60 * time.Second}
}

// Enabled reports whether an LLM backs the generator.
func (g *Generator) Enabled() bool {
	return g.model != nil
}

// ScaleReport writes the report for one survey.
func (g *Generator) ScaleReport(ctx context.Context, in ScaleInput) string {
	if g.model == nil {
		return FallbackScaleReport(in)
	}
	text, err := g.generate(ctx, scalePrompt(in))
	if err != nil {
		g.logger.Warn().Err(err).Str("survey_type", in.SurveyType).Msg("llm report failed, using template")
		return FallbackScaleReport(in)
	}
	return text + disclaimer
}

// TotalSummary writes one summary across the latest result of each scale.
func (g *Generator) TotalSummary(ctx context.Context, patientID string, in []ScaleInput) string {
	if g.model == nil {
		return FallbackTotalSummary(in)
	}
	text, err := g.generate(ctx, totalPrompt(in))
	if err != nil {
		g.logger.Warn().Err(err).Str("patient_id", patientID).Msg("llm total summary failed, using template")
		return FallbackTotalSummary(in)
	}
	return text + disclaimer
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	text, err := g.model.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeScores(b *strings.Builder, in ScaleInput) {
	if in.MaxScore > 0 {
		fmt.Fprintf(b, "- 총점: %d / %d\n", in.Score, in.MaxScore)
	} else {
		fmt.Fprintf(b, "- 총점: %d\n", in.Score)
	}
	if len(in.Subscores) > 0 {
		b.WriteString("- 구성요소별 점수:\n")
		for _, k := range sortedKeys(in.Subscores) {
			fmt.Fprintf(b, "  - %s: %d\n", k, in.Subscores[k])
		}
	}
}

func scalePrompt(in ScaleInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "당신은 정신건강의학과 전문의입니다. 다음 %s 평가 결과를 바탕으로 환자를 위한 평가 보고서를 한국어 마크다운으로 작성하세요.\n\n", in.SurveyType)
	b.WriteString("## 평가 결과\n")
	writeScores(&b, in)
	if in.Category != "" {
		fmt.Fprintf(&b, "- 해석: %s (%s)\n", in.Category, in.Description)
	}
	if in.Gender != "" {
		fmt.Fprintf(&b, "- 성별: %s\n", in.Gender)
	}
	b.WriteString("\n다음 섹션을 포함하세요: ## 평가 개요, ## 점수 결과, ## 임상적 의미, ## 권장사항, ## 주의사항.\n")
	b.WriteString("진단을 확정하지 말고, 전문가 상담이 필요한 경우 이를 명확히 안내하세요.\n")
	return b.String()
}

func totalPrompt(in []ScaleInput) string {
	var b strings.Builder
	b.WriteString("당신은 정신건강의학과 전문의입니다. 다음은 한 환자가 완료한 여러 척도의 최신 결과입니다. 전체 결과를 종합한 요약 보고서를 한국어 마크다운으로 작성하세요.\n\n")
	for _, s := range in {
		fmt.Fprintf(&b, "### %s\n", s.SurveyType)
		writeScores(&b, s)
		if s.Category != "" {
			fmt.Fprintf(&b, "- 해석: %s\n", s.Category)
		}
		b.WriteString("\n")
	}
	b.WriteString("다음 섹션을 포함하세요: ## 종합 평가, ## 척도별 요약, ## 권장사항, ## 주의사항.\n")
	return b.String()
}

// FallbackScaleReport is the template report used without an LLM.
func FallbackScaleReport(in ScaleInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s 평가 보고서\n\n", in.SurveyType)
	b.WriteString("## 점수 결과\n")
	writeScores(&b, in)
	b.WriteString("\n## 해석\n")
	if in.Category != "" {
		fmt.Fprintf(&b, "**%s**: %s\n", in.Category, in.Description)
	} else {
		b.WriteString("해석 기준을 적용할 수 없습니다.\n")
	}
	b.WriteString("\n## 주의사항\n")
	b.WriteString("이 보고서는 자동 생성된 기본 보고서입니다. 정확한 평가를 위해 전문의와 상담하시기 바랍니다.\n")
	return b.String()
}

// FallbackTotalSummary is the template total summary used without an LLM.
func FallbackTotalSummary(in []ScaleInput) string {
	var b strings.Builder
	b.WriteString("# 종합 평가 보고서\n\n## 척도별 요약\n")
	for _, s := range in {
		fmt.Fprintf(&b, "- **%s**: %d점", s.SurveyType, s.Score)
		if s.Category != "" {
			fmt.Fprintf(&b, " (%s)", s.Category)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n## 주의사항\n")
	b.WriteString("이 보고서는 자동 생성된 기본 보고서입니다. 정확한 평가를 위해 전문의와 상담하시기 바랍니다.\n")
	return b.String()
}
