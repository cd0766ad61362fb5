package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"hirebyte-ats/internal/types"
)

// TikaOCRExtractor 是基于Apache Tika服务器(Tesseract)的OCR提取器。
// 每个实例持有独立的连接池，Close 时关闭，相当于终止一次OCR会话。
type TikaOCRExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// Tesseract语言
	language string
	// OCR策略，ocr_only 强制把每页当作图像识别
	ocrStrategy string
	// 日志记录
	logger *log.Logger

	transport *http.Transport
	closeOnce sync.Once
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaOCRExtractor)

// WithOCRLanguage 配置识别语言
func WithOCRLanguage(lang string) TikaOption {
	return func(e *TikaOCRExtractor) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithOCRStrategy 配置 X-Tika-PDFOcrStrategy，例如 ocr_only / ocr_and_text / auto
func WithOCRStrategy(strategy string) TikaOption {
	return func(e *TikaOCRExtractor) {
		if strategy != "" {
			e.ocrStrategy = strategy
		}
	}
}

// WithTikaLogger 配置自定义日志记录器
func WithTikaLogger(logger *log.Logger) TikaOption {
	return func(e *TikaOCRExtractor) {
		e.logger = logger
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaOCRExtractor) {
		e.Client.Timeout = timeout
	}
}

// NewTikaOCRExtractor 创建一个新的Tika OCR提取器
func NewTikaOCRExtractor(serverURL string, options ...TikaOption) *TikaOCRExtractor {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     30 * time.Second,
	}

	extractor := &TikaOCRExtractor{
		ServerURL: strings.TrimRight(serverURL, "/"),
		Client: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
		language:    "eng",
		ocrStrategy: "ocr_only",
		logger:      log.New(io.Discard, "", 0),
		transport:   transport,
	}

	for _, option := range options {
		option(extractor)
	}

	return extractor
}

// Name 策略名
func (e *TikaOCRExtractor) Name() types.StrategyName {
	return types.StrategyOCR
}

// Extract 把PDF发给Tika做OCR，返回纯文本
func (e *TikaOCRExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	startTime := time.Now()

	url := fmt.Sprintf("%s/tika", e.ServerURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Content-Type", types.MediaTypePDF)
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Tika-PDFOcrStrategy", e.ocrStrategy)
	req.Header.Set("X-Tika-OCRLanguage", e.language)

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 读出少量响应体便于排查
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("tika服务器返回错误状态码: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Tika响应失败: %w", err)
	}

	e.logger.Printf("OCR完成: %d 字节 (用时 %.2f秒)", len(textBytes), time.Since(startTime).Seconds())
	return string(textBytes), nil
}

// Close 关闭该实例的空闲连接，可重复调用
func (e *TikaOCRExtractor) Close() error {
	e.closeOnce.Do(func() {
		e.transport.CloseIdleConnections()
		e.logger.Printf("OCR会话已释放")
	})
	return nil
}

// Ping 检查Tika服务器是否可用
func (e *TikaOCRExtractor) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.ServerURL+"/tika", nil)
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("连接Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}
	return nil
}
