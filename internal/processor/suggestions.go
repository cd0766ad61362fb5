package processor

import (
	"context"
	"fmt"
	"time"

	"hirebyte-ats/internal/storage"
	"hirebyte-ats/internal/types"
)

// SuggestionService 渲染建议邮件并交给外部邮件服务投递
type SuggestionService struct {
	publisher storage.SuggestionPublisher
	now       func() time.Time
}

// NewSuggestionService publisher 为nil时 Send 返回 storage.ErrPublisherUnavailable
func NewSuggestionService(publisher storage.SuggestionPublisher) *SuggestionService {
	return &SuggestionService{publisher: publisher, now: time.Now}
}

// Available 是否配置了消息队列
func (s *SuggestionService) Available() bool {
	return s != nil && s.publisher != nil
}

// Send 投递一封建议邮件，返回消息ID
func (s *SuggestionService) Send(ctx context.Context, email string, score int, feedback string) (string, error) {
	if !s.Available() {
		return "", storage.ErrPublisherUnavailable
	}
	job := BuildSuggestionEmail(email, score, feedback)
	job.CreatedAt = s.now().Unix()
	return s.publisher.PublishSuggestion(ctx, job)
}

// SuggestionSubject 邮件标题
func SuggestionSubject(score int) string {
	return fmt.Sprintf("Your Resume ATS Score: %d/100", score)
}

// BuildSuggestionEmail 渲染纯文本邮件正文
func BuildSuggestionEmail(email string, score int, feedback string) types.SuggestionEmailJob {
	body := fmt.Sprintf(`🎯 HireByte Resume Analysis

Your ATS Score: %d/100

📊 ANALYSIS RESULTS:
%s

What does this mean?
• 0-50: Your resume needs significant improvements
• 51-75: Good start, but room for optimization
• 76-90: Strong resume, minor tweaks recommended
• 91-100: Excellent ATS optimization!

Visit https://hirebyte2.netlify.app to improve your resume.

---
This email was sent from HireByte Resume Builder
© 2026 HireByte. All rights reserved.
`, score, feedback)

	return types.SuggestionEmailJob{
		To:      email,
		Subject: SuggestionSubject(score),
		Body:    body,
		Score:   score,
	}
}
