package matcher

import (
	"regexp"
	"strings"
)

// 按类别依次匹配（编程语言、框架、数据库、云与运维、通用实践），顺序决定缺失技能的输出顺序。
// \b 在 c++/c#/ci/cd 这类以符号结尾的词上需要后面紧跟单词字符才会命中，保持原有行为。
var skillPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(javascript|typescript|python|java|c\+\+|c#|ruby|go|rust|swift|kotlin|php|scala|r)\b`),
	regexp.MustCompile(`(?i)\b(react|angular|vue|next\.?js|node\.?js|express|django|flask|spring|laravel|rails)\b`),
	regexp.MustCompile(`(?i)\b(mongodb|postgresql|mysql|redis|elasticsearch|dynamodb|cassandra|oracle)\b`),
	regexp.MustCompile(`(?i)\b(aws|azure|gcp|docker|kubernetes|jenkins|terraform|ansible|git|github|gitlab)\b`),
	regexp.MustCompile(`(?i)\b(rest|graphql|api|microservices|ci/cd|agile|scrum|jira|webpack|babel)\b`),
}

// TechnicalSkillSet 识别出的技能，小写去重，保留首次出现顺序
type TechnicalSkillSet struct {
	skills []string
	seen   map[string]struct{}
}

// ExtractTechnicalSkills 在原始文本上依次应用各类别的模式
func ExtractTechnicalSkills(text string) TechnicalSkillSet {
	set := TechnicalSkillSet{seen: make(map[string]struct{})}
	if text == "" {
		return set
	}
	for _, pattern := range skillPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			set.add(strings.ToLower(match))
		}
	}
	return set
}

func (s *TechnicalSkillSet) add(skill string) {
	if _, ok := s.seen[skill]; ok {
		return
	}
	s.seen[skill] = struct{}{}
	s.skills = append(s.skills, skill)
}

// Len 技能数量
func (s TechnicalSkillSet) Len() int {
	return len(s.skills)
}

// Contains 是否包含某技能（小写）
func (s TechnicalSkillSet) Contains(skill string) bool {
	_, ok := s.seen[skill]
	return ok
}

// Skills 按首次出现顺序返回副本
func (s TechnicalSkillSet) Skills() []string {
	out := make([]string, len(s.skills))
	copy(out, s.skills)
	return out
}

// SkillMatchScore JD技能中简历也具备的百分比；JD没有可识别技能时为100
func SkillMatchScore(resumeText, jobDescription string) float64 {
	return skillScore(ExtractTechnicalSkills(resumeText), ExtractTechnicalSkills(jobDescription))
}

func skillScore(resume, job TechnicalSkillSet) float64 {
	if job.Len() == 0 {
		return 100
	}
	matches := 0
	for _, skill := range job.skills {
		if resume.Contains(skill) {
			matches++
		}
	}
	return float64(matches) / float64(job.Len()) * 100
}

// MissingSkills JD技能减去简历技能，保持JD中的顺序
func MissingSkills(resume, job TechnicalSkillSet) []string {
	missing := make([]string, 0, job.Len())
	for _, skill := range job.skills {
		if !resume.Contains(skill) {
			missing = append(missing, skill)
		}
	}
	return missing
}
