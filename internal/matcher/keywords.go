package matcher

import (
	"regexp"
	"sort"
	"strings"
)

// 英文功能词：冠词、连词、介词、助动词、限定词
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"of": {}, "with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "were": {}, "been": {},
	"be": {}, "have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "must": {}, "can": {}, "this": {}, "that": {}, "these": {}, "those": {},
}

const minKeywordLength = 3

var punctuationPattern = regexp.MustCompile(`[^\w\s]`)

// IsStopWord 判断小写token是否为停用词
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// Tokenize 小写化、标点替换为空白、按空白切分，丢弃短词和停用词
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	cleaned := punctuationPattern.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minKeywordLength || IsStopWord(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Keyword 带词频的关键词
type Keyword struct {
	Token string
	Count int
}

// KeywordSet 一段文本的关键词集合，按词频降序，同频按首次出现顺序
type KeywordSet struct {
	ranked []Keyword
	index  map[string]int
}

// ExtractKeywords 统计词频并排序
func ExtractKeywords(text string) KeywordSet {
	tokens := Tokenize(text)
	set := KeywordSet{index: make(map[string]int, len(tokens))}

	for _, tok := range tokens {
		if i, ok := set.index[tok]; ok {
			set.ranked[i].Count++
			continue
		}
		set.index[tok] = len(set.ranked)
		set.ranked = append(set.ranked, Keyword{Token: tok, Count: 1})
	}

	// 稳定排序保证同频词保持首次出现顺序
	sort.SliceStable(set.ranked, func(i, j int) bool {
		return set.ranked[i].Count > set.ranked[j].Count
	})
	for i, kw := range set.ranked {
		set.index[kw.Token] = i
	}
	return set
}

// Len 不同关键词的数量
func (s KeywordSet) Len() int {
	return len(s.ranked)
}

// Contains 是否包含某个token
func (s KeywordSet) Contains(token string) bool {
	_, ok := s.index[token]
	return ok
}

// Count 某个token的出现次数
func (s KeywordSet) Count(token string) int {
	if i, ok := s.index[token]; ok {
		return s.ranked[i].Count
	}
	return 0
}

// Tokens 排序后的关键词
func (s KeywordSet) Tokens() []string {
	out := make([]string, len(s.ranked))
	for i, kw := range s.ranked {
		out[i] = kw.Token
	}
	return out
}

// KeywordMatchScore JD关键词中出现在简历里的百分比，JD无关键词时为0。
// 参数顺序有意义：分母只看JD。
func KeywordMatchScore(resumeText, jobDescription string) float64 {
	return keywordScore(ExtractKeywords(resumeText), ExtractKeywords(jobDescription))
}

func keywordScore(resume, job KeywordSet) float64 {
	if job.Len() == 0 {
		return 0
	}
	matches := 0
	for _, kw := range job.ranked {
		if resume.Contains(kw.Token) {
			matches++
		}
	}
	return float64(matches) / float64(job.Len()) * 100
}
