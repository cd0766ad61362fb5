package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"hirebyte-ats/internal/logger"
	"hirebyte-ats/internal/processor"
	"hirebyte-ats/internal/storage"
	"hirebyte-ats/internal/tracing"
	"hirebyte-ats/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"
)

const (
	msgNoFile             = "No file"
	msgReadFileFailed     = "Failed to read file"
	msgInvalidBody        = "Invalid request body"
	msgAnalyzeRequired    = "Both resume text and job description are required"
	msgValidEmailRequired = "Valid email is required"
	msgScoreFeedback      = "Score and feedback are required"
	msgScoreRange         = "Score must be between 0 and 100"
	msgEmailUnconfigured  = "Email service is not configured"
	msgEmailFailed        = "Failed to send email"
)

// ATSHandler 处理文本提取、简历分析与建议邮件请求
type ATSHandler struct {
	extractor   processor.TextExtractor
	analyzer    *processor.ATSAnalyzer
	suggestions *processor.SuggestionService
	validate    *validator.Validate
}

// NewATSHandler 创建处理器。suggestions 可以为nil，此时邮件接口返回503。
func NewATSHandler(extractor processor.TextExtractor, analyzer *processor.ATSAnalyzer, suggestions *processor.SuggestionService) *ATSHandler {
	if analyzer == nil {
		analyzer = processor.NewATSAnalyzer(nil)
	}
	return &ATSHandler{
		extractor:   extractor,
		analyzer:    analyzer,
		suggestions: suggestions,
		validate:    validator.New(),
	}
}

// OCREnabled 级联中是否包含OCR
func (h *ATSHandler) OCREnabled() bool {
	for _, name := range h.extractor.Stages() {
		if name == types.StrategyOCR {
			return true
		}
	}
	return false
}

// HandleExtractText 从上传文件中提取文本。
// POST /api/ai/extract-text
// 提取质量问题不会变成HTTP错误，只有缺少文件等传输问题返回非200。
func (h *ATSHandler) HandleExtractText(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, types.ErrorResponse{Error: msgNoFile})
		return
	}

	data, err := readFormFile(fileHeader)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("filename", fileHeader.Filename).Msg("读取上传文件失败")
		c.JSON(consts.StatusBadRequest, types.ErrorResponse{Error: msgReadFileFailed})
		return
	}

	doc := types.UploadedDocument{
		Data:      data,
		MediaType: detectMediaType(fileHeader),
		Filename:  fileHeader.Filename,
	}
	result := h.extractor.Extract(ctx, doc)

	logger.Ctx(ctx).Info().
		Str("filename", doc.Filename).
		Str("media_type", doc.BaseMediaType()).
		Int("size", len(data)).
		Str("method", string(result.Method)).
		Int("text_length", result.CharacterCount).
		Str("preview", tracing.SafeResumeContent(result.Text)).
		Msg("文本提取完成")

	c.JSON(consts.StatusOK, types.ExtractTextResponse{
		Success:          true,
		ExtractionMethod: result.Method,
		Text:             result.Text,
		TextLength:       result.CharacterCount,
	})
}

// HandleAnalyzeATS 计算匹配分数并生成反馈。
// POST /api/ai/analyze-ats
func (h *ATSHandler) HandleAnalyzeATS(ctx context.Context, c *app.RequestContext) {
	var req types.AnalyzeATSRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, types.ErrorResponse{Error: msgInvalidBody})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(consts.StatusBadRequest, types.ErrorResponse{Error: msgAnalyzeRequired})
		return
	}

	c.JSON(consts.StatusOK, h.analyzer.Analyze(ctx, req.ResumeText, req.JobDescription))
}

// HandleSendSuggestions 把分析结果作为邮件任务投递给外部邮件服务。
// POST /api/ai/send-suggestions
func (h *ATSHandler) HandleSendSuggestions(ctx context.Context, c *app.RequestContext) {
	var req types.SendSuggestionsRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, types.ErrorResponse{Error: msgInvalidBody})
		return
	}
	if msg := h.validateSuggestions(&req); msg != "" {
		c.JSON(consts.StatusBadRequest, types.ErrorResponse{Error: msg})
		return
	}

	if !h.suggestions.Available() {
		c.JSON(consts.StatusServiceUnavailable, types.ErrorResponse{Error: msgEmailUnconfigured})
		return
	}

	messageID, err := h.suggestions.Send(ctx, req.Email, *req.Score, req.Feedback)
	if err != nil {
		if errors.Is(err, storage.ErrPublisherUnavailable) {
			c.JSON(consts.StatusServiceUnavailable, types.ErrorResponse{Error: msgEmailUnconfigured})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("email", tracing.MaskPII(req.Email)).Msg("投递建议邮件失败")
		c.JSON(consts.StatusInternalServerError, types.ErrorResponse{Error: msgEmailFailed})
		return
	}

	logger.Ctx(ctx).Info().Str("message_id", messageID).Int("score", *req.Score).Msg("建议邮件已投递")
	c.JSON(consts.StatusOK, types.SendSuggestionsResponse{Success: true, MessageID: messageID})
}

// HandleHealth 健康检查
// GET /api/health
func (h *ATSHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, types.HealthResponse{
		Status:        "ok",
		LLMConfigured: h.analyzer.LLMConfigured(),
		OCREnabled:    h.OCREnabled(),
	})
}

// validateSuggestions 邮箱错误优先于分数与反馈错误
func (h *ATSHandler) validateSuggestions(req *types.SendSuggestionsRequest) string {
	req.Email = strings.TrimSpace(req.Email)
	err := h.validate.Struct(req)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return msgInvalidBody
	}

	msg := ""
	for _, fe := range verrs {
		switch {
		case fe.Field() == "Email":
			return msgValidEmailRequired
		case fe.Field() == "Score" && (fe.Tag() == "min" || fe.Tag() == "max"):
			if msg == "" {
				msg = msgScoreRange
			}
		default:
			msg = msgScoreFeedback
		}
	}
	return msg
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// detectMediaType 优先使用分段头中的Content-Type，缺失或为通用二进制类型时按扩展名推断
func detectMediaType(fh *multipart.FileHeader) string {
	mediaType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if mediaType != "" && !strings.HasPrefix(mediaType, "application/octet-stream") {
		return mediaType
	}
	switch strings.ToLower(filepath.Ext(fh.Filename)) {
	case ".pdf":
		return types.MediaTypePDF
	case ".txt":
		return types.MediaTypePlainText
	}
	return mediaType
}
