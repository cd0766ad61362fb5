// Package matcher 计算简历与职位描述之间确定性的匹配指标。
// 不依赖模型或外部服务，相同输入总是得到相同结果。
package matcher

import (
	"math"

	"hirebyte-ats/internal/constants"
	"hirebyte-ats/internal/types"
)

// Analysis 一次匹配的完整中间结果，供反馈生成使用
type Analysis struct {
	Result       types.MatchResult
	ResumeSkills []string
	JobSkills    []string
	// AllMissing 未截断的缺失技能
	AllMissing []string
}

// Match 计算关键词分、技能分、综合分和缺失技能（截断到展示上限）
func Match(resumeText, jobDescription string) types.MatchResult {
	return Analyze(resumeText, jobDescription).Result
}

// Analyze 与 Match 相同，但保留技能明细
func Analyze(resumeText, jobDescription string) Analysis {
	kw := keywordScore(ExtractKeywords(resumeText), ExtractKeywords(jobDescription))

	resumeSkills := ExtractTechnicalSkills(resumeText)
	jobSkills := ExtractTechnicalSkills(jobDescription)
	sk := skillScore(resumeSkills, jobSkills)
	missing := MissingSkills(resumeSkills, jobSkills)

	return Analysis{
		Result: types.MatchResult{
			KeywordScore:  kw,
			SkillScore:    sk,
			CombinedScore: CombinedScore(kw, sk),
			MissingSkills: Cap(missing, constants.MaxMissingSkillsInBreakdown),
		},
		ResumeSkills: resumeSkills.Skills(),
		JobSkills:    jobSkills.Skills(),
		AllMissing:   missing,
	}
}

// CombinedScore round(kw*0.6 + skill*0.4)，并夹到 [0,100]
func CombinedScore(keywordScore, skillScore float64) int {
	return Clamp(keywordScore*constants.KeywordWeight + skillScore*constants.SkillWeight)
}

// Clamp 四舍五入（.5向上）后夹到 [0,100]；NaN 视为 0
func Clamp(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Floor(v + 0.5)
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return int(r)
}

// Round 与 Clamp 相同的取整规则，用于分项得分展示
func Round(v float64) int {
	return Clamp(v)
}

// Cap 截取前n个元素，返回新切片
func Cap(items []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(items) < n {
		n = len(items)
	}
	out := make([]string, n)
	copy(out, items[:n])
	return out
}
