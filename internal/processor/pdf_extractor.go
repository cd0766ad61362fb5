package processor

import (
	"context"
	"log"

	"hirebyte-ats/internal/config"
	"hirebyte-ats/internal/constants"
	"hirebyte-ats/internal/parser"
	"hirebyte-ats/internal/types"
)

// BuildStages 根据配置构建PDF提取级联：版面解析 -> 通用解析 -> OCR。
// 未配置Tika服务器时不包含OCR阶段。
func BuildStages(cfg *config.Config, loggerProvider func(prefix string) *log.Logger) []Stage {
	layoutTimeout := config.GetDuration(cfg.Extraction.LayoutTimeout, constants.DefaultLayoutTimeout)
	genericTimeout := config.GetDuration(cfg.Extraction.GenericTimeout, constants.DefaultGenericTimeout)
	ocrTimeout := config.GetDuration(cfg.Extraction.OCRTimeout, constants.DefaultOCRTimeout)

	stages := []Stage{
		{
			Name:    types.StrategyLayoutParser,
			Timeout: layoutTimeout,
			New: func(ctx context.Context) (Strategy, error) {
				return parser.NewLayoutPDFExtractor(parser.WithLayoutLogger(loggerProvider("[LayoutPDF] "))), nil
			},
		},
		{
			Name:    types.StrategyGenericParser,
			Timeout: genericTimeout,
			New: func(ctx context.Context) (Strategy, error) {
				e, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithEinoLogger(loggerProvider("[EinoPDF] ")))
				if err != nil {
					return nil, err
				}
				return e, nil
			},
		},
	}

	if cfg.Tika.ServerURL != "" {
		maxBytes := cfg.Extraction.OCRMaxBytes
		if maxBytes <= 0 {
			maxBytes = constants.DefaultOCRMaxBytes
		}
		serverURL := cfg.Tika.ServerURL
		language := cfg.Tika.OCRLanguage
		stages = append(stages, Stage{
			Name:     types.StrategyOCR,
			Timeout:  ocrTimeout,
			MaxBytes: maxBytes,
			New: func(ctx context.Context) (Strategy, error) {
				return parser.NewTikaOCRExtractor(serverURL,
					parser.WithOCRLanguage(language),
					parser.WithTimeout(ocrTimeout),
					parser.WithTikaLogger(loggerProvider("[TikaOCR] ")),
				), nil
			},
		})
	}

	return stages
}

// BuildPipeline 统一构建提取管线的逻辑
func BuildPipeline(cfg *config.Config, loggerProvider func(prefix string) *log.Logger, options ...PipelineOption) (*Pipeline, error) {
	return NewPipeline(BuildStages(cfg, loggerProvider), options...)
}
