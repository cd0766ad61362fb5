package types

// ExtractTextResponse 文本提取接口的响应，质量问题不会变成HTTP错误
type ExtractTextResponse struct {
	Success          bool         `json:"success"`
	ExtractionMethod StrategyName `json:"extractionMethod"`
	Text             string       `json:"text"`
	TextLength       int          `json:"textLength"`
}

// AnalyzeATSRequest 简历/JD分析请求
type AnalyzeATSRequest struct {
	ResumeText     string `json:"resumeText" validate:"required"`
	JobDescription string `json:"jobDescription" validate:"required"`
}

// ScoreBreakdown 分析结果中的分项得分
type ScoreBreakdown struct {
	KeywordScore  int      `json:"keywordScore"`
	SkillScore    int      `json:"skillScore"`
	MissingSkills []string `json:"missingSkills"`
}

// AnalyzeATSResponse 分析接口响应，LLM不可用时结构不变
type AnalyzeATSResponse struct {
	Score     int            `json:"score"`
	Feedback  string         `json:"feedback"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// SendSuggestionsRequest 发送建议邮件请求
type SendSuggestionsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Score    *int   `json:"score" validate:"required,min=0,max=100"`
	Feedback string `json:"feedback" validate:"required"`
}

// SendSuggestionsResponse 投递结果
type SendSuggestionsResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

// SuggestionEmailJob 投递到消息队列、由外部邮件服务消费的任务
type SuggestionEmailJob struct {
	JobID     string `json:"job_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Score     int    `json:"score"`
	CreatedAt int64  `json:"created_at"`
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status        string `json:"status"`
	LLMConfigured bool   `json:"llmConfigured"`
	OCREnabled    bool   `json:"ocrEnabled"`
}

// ErrorResponse 传输层错误
type ErrorResponse struct {
	Error string `json:"error"`
}
