package processor

import (
	"context"
	"errors"

	"hirebyte-ats/internal/logger"
	"hirebyte-ats/internal/matcher"
	"hirebyte-ats/internal/parser"
	"hirebyte-ats/internal/types"
)

// ATSAnalyzer 计算确定性匹配指标并生成反馈。
// 反馈生成失败不会影响分数，只会退回模板反馈。
type ATSAnalyzer struct {
	feedback parser.FeedbackProvider
}

// NewATSAnalyzer feedback 为nil时等同于未配置LLM
func NewATSAnalyzer(feedback parser.FeedbackProvider) *ATSAnalyzer {
	if feedback == nil {
		feedback = parser.UnconfiguredFeedback{}
	}
	return &ATSAnalyzer{feedback: feedback}
}

// LLMConfigured 是否配置了LLM
func (a *ATSAnalyzer) LLMConfigured() bool {
	return a.feedback.Configured()
}

// Analyze 分析简历与职位描述
func (a *ATSAnalyzer) Analyze(ctx context.Context, resumeText, jobDescription string) types.AnalyzeATSResponse {
	analysis := matcher.Analyze(resumeText, jobDescription)
	result := analysis.Result

	feedback, err := a.feedback.GenerateFeedback(ctx, parser.FeedbackRequest{
		ResumeText:     resumeText,
		JobDescription: jobDescription,
		Analysis:       analysis,
	})
	switch {
	case err == nil:
	case errors.Is(err, parser.ErrNoText):
		feedback = parser.NoFeedbackText
	default:
		if !errors.Is(err, parser.ErrFeedbackUnconfigured) {
			logger.Ctx(ctx).Warn().Err(err).Msg("LLM反馈生成失败，使用模板反馈")
		}
		feedback = parser.FallbackFeedback(analysis, err)
	}

	logger.Ctx(ctx).Info().
		Int("score", result.CombinedScore).
		Float64("keyword_score", result.KeywordScore).
		Float64("skill_score", result.SkillScore).
		Int("missing_skills", len(analysis.AllMissing)).
		Msg("ATS分析完成")

	return types.AnalyzeATSResponse{
		Score:    matcher.Clamp(float64(result.CombinedScore)),
		Feedback: feedback,
		Breakdown: types.ScoreBreakdown{
			KeywordScore:  matcher.Round(result.KeywordScore),
			SkillScore:    matcher.Round(result.SkillScore),
			MissingSkills: result.MissingSkills,
		},
	}
}
