package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"hirebyte-ats/internal/agent"
	"hirebyte-ats/internal/config"
	"hirebyte-ats/internal/matcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validFeedbackJSON = `{
  "strengths": ["Solid Go experience", "- Clear project impact"],
  "weaknesses": ["No Kubernetes exposure"],
  "improvements": ["Add deployment metrics"],
  "remove": [],
  "atsTips": ["Use standard section headings"],
  "keywordGaps": ["kubernetes - skills section"]
}`

func sampleRequest() FeedbackRequest {
	resume := "Go developer with Docker and AWS experience building APIs"
	jd := "Looking for Go developer with Kubernetes, Docker and AWS"
	return FeedbackRequest{
		ResumeText:     resume,
		JobDescription: jd,
		Analysis:       matcher.Analyze(resume, jd),
	}
}

func TestDecodeFeedbackReplyRendersSections(t *testing.T) {
	text, err := DecodeFeedbackReply("```json\n" + validFeedbackJSON + "\n```")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "✅ STRENGTHS:\n• Solid Go experience\n• Clear project impact"))
	assert.Contains(t, text, "⚠️ WEAKNESSES:\n• No Kubernetes exposure")
	assert.Contains(t, text, "📊 KEYWORD GAPS:\n• kubernetes - skills section")
	assert.NotContains(t, text, "WHAT TO REMOVE", "空分节应省略")
}

func TestDecodeFeedbackReplyPlainTextPassesThrough(t *testing.T) {
	reply := "\uFEFF✅ STRENGTHS (3-5 points):\n• Strong Go background"
	text, err := DecodeFeedbackReply(reply)
	require.NoError(t, err)
	assert.Equal(t, "✅ STRENGTHS (3-5 points):\n• Strong Go background", text)
}

func TestDecodeFeedbackReplyErrors(t *testing.T) {
	_, err := DecodeFeedbackReply("   ")
	assert.ErrorIs(t, err, ErrNoText)

	_, err = DecodeFeedbackReply(`{"summary": "good"}`)
	assert.ErrorIs(t, err, ErrInvalidReply, "没有任何已知分节")

	_, err = DecodeFeedbackReply(`{"strengths": "a", "weaknesses": [], "improvements": [], "remove": [], "atsTips": [], "keywordGaps": []}`)
	assert.ErrorIs(t, err, ErrInvalidReply, "字段类型错误")

	_, err = DecodeFeedbackReply(`{"strengths": ["a"`)
	assert.ErrorIs(t, err, ErrInvalidReply, "JSON不完整")

	_, err = DecodeFeedbackReply(`{"strengths": [], "weaknesses": [], "improvements": [], "remove": [], "atsTips": [], "keywordGaps": []}`)
	assert.ErrorIs(t, err, ErrInvalidReply, "全部为空")
}

func TestDecodeFeedbackReplyDefaultsAbsentSections(t *testing.T) {
	text, err := DecodeFeedbackReply(`{"strengths":["Clear React experience"],"weaknesses":["No Kubernetes"]}`)
	require.NoError(t, err)
	assert.Equal(t, "✅ STRENGTHS:\n• Clear React experience\n\n⚠️ WEAKNESSES:\n• No Kubernetes", text)

	fb, err := validateFeedbackJSON(`{"atsTips":["Use standard headings"]}`)
	require.NoError(t, err)
	assert.Nil(t, fb.Strengths)
	assert.Equal(t, []string{"Use standard headings"}, fb.ATSTips)
}

func TestDecodeFeedbackReplyStripsFenceFromPlainText(t *testing.T) {
	text, err := DecodeFeedbackReply("```\n✅ STRENGTHS:\n• Strong Go background\n```")
	require.NoError(t, err)
	assert.Equal(t, "✅ STRENGTHS:\n• Strong Go background", text)
}

func TestDecodeFeedbackReplySanitizesInnerQuotes(t *testing.T) {
	raw := `{"strengths": ["Led the "Spring Launch" campaign"], "weaknesses": [], "improvements": [], "remove": [], "atsTips": [], "keywordGaps": []}`
	text, err := DecodeFeedbackReply(raw)
	require.NoError(t, err)
	assert.Contains(t, text, `Led the "Spring Launch" campaign`)
}

func TestExtractJSONObjectIgnoresBracesInStrings(t *testing.T) {
	got := extractJSONObject(`{"a": "x } y", "b": {"c": 1}} trailing`)
	assert.Equal(t, `{"a": "x } y", "b": {"c": 1}}`, got)
	assert.Equal(t, "", extractJSONObject("no json"))
}

func TestBuildPromptTruncatesAndCaps(t *testing.T) {
	e := NewLLMFeedbackEvaluator(agent.NewMockChatModel())

	skills := make([]string, 12)
	for i := range skills {
		skills[i] = fmt.Sprintf("skill%d", i)
	}
	req := FeedbackRequest{
		ResumeText:     strings.Repeat("r", 3500),
		JobDescription: strings.Repeat("简", 3200),
		Analysis:       matcher.Analysis{AllMissing: skills},
	}
	req.Analysis.Result.CombinedScore = 64
	req.Analysis.Result.KeywordScore = 57.142857
	req.Analysis.Result.SkillScore = 75

	prompt := e.BuildPrompt(req)
	assert.Contains(t, prompt, strings.Repeat("r", 3000)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("r", 3001))
	assert.Contains(t, prompt, strings.Repeat("简", 3000)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("简", 3001))
	assert.Contains(t, prompt, "• Overall ATS Match: 64/100")
	assert.Contains(t, prompt, "• Keyword Match: 57.1%")
	assert.Contains(t, prompt, "• Skill Match: 75.0%")
	assert.Contains(t, prompt, "skill7")
	assert.NotContains(t, prompt, "skill8", "提示词中最多8个缺失技能")
}

func TestBuildPromptNoMissingSkills(t *testing.T) {
	e := NewLLMFeedbackEvaluator(agent.NewMockChatModel())
	prompt := e.BuildPrompt(FeedbackRequest{})
	assert.Contains(t, prompt, "• Missing Skills: None identified")
}

func TestGenerateFeedbackUsesModel(t *testing.T) {
	mock := agent.NewMockChatModel(agent.MockResponse{Content: validFeedbackJSON})
	e := NewLLMFeedbackEvaluator(mock, WithGenerationParams(0.4, 2000))

	text, err := e.GenerateFeedback(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Contains(t, text, "✅ STRENGTHS:")
	assert.True(t, e.Configured())

	msgs := mock.LastMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, feedbackSystemPrompt, msgs[0].Content)
	assert.Contains(t, msgs[1].Content, "=== RESUME ===")

	opts := mock.LastOptions()
	require.NotNil(t, opts.Temperature)
	assert.InDelta(t, 0.4, *opts.Temperature, 1e-6)
	require.NotNil(t, opts.MaxTokens)
	assert.Equal(t, 2000, *opts.MaxTokens)
}

func TestGenerateFeedbackPropagatesModelError(t *testing.T) {
	boom := errors.New("upstream down")
	e := NewLLMFeedbackEvaluator(agent.NewMockChatModel(agent.MockResponse{Error: boom}))

	_, err := e.GenerateFeedback(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, boom)
}

func TestUnconfiguredFeedback(t *testing.T) {
	p, err := NewFeedbackProvider(config.LLMConfig{}, nil)
	require.NoError(t, err)
	assert.False(t, p.Configured())

	_, err = p.GenerateFeedback(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, ErrFeedbackUnconfigured)

	p, err = NewFeedbackProvider(config.LLMConfig{APIKey: "k", QPM: 30}, nil)
	require.NoError(t, err)
	assert.True(t, p.Configured())
}

func TestFallbackFeedback(t *testing.T) {
	analysis := matcher.Analysis{AllMissing: []string{"a", "b", "c", "d", "e", "f"}}
	analysis.Result.CombinedScore = 64
	analysis.Result.KeywordScore = 57.142857
	analysis.Result.SkillScore = 75

	unconfigured := FallbackFeedback(analysis, ErrFeedbackUnconfigured)
	expected := "\nCALCULATED SCORES:\n- Overall Match: 64/100\n- Keyword Match: 57.1%\n- Skill Match: 75.0%\n\n" +
		"MISSING SKILLS: a, b, c, d, e\n\nLLM API key is not configured. Please add GROQ_API_KEY to your .env.local file."
	assert.Equal(t, expected, unconfigured)

	failed := FallbackFeedback(analysis, fmt.Errorf("wrap: %w", ErrInvalidReply))
	assert.True(t, strings.HasSuffix(failed, "LLM API error. Please check your API key."))

	none := FallbackFeedback(matcher.Analysis{}, errors.New("x"))
	assert.Contains(t, none, "MISSING SKILLS: None identified")
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "57.1", FormatPercent(57.142857))
	assert.Equal(t, "0.3", FormatPercent(0.25))
	assert.Equal(t, "100.0", FormatPercent(100))
	assert.Equal(t, "0.0", FormatPercent(0))
}
