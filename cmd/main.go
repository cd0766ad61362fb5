package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hirebyte-ats/internal/api/handler"
	"hirebyte-ats/internal/api/router"
	"hirebyte-ats/internal/config"
	"hirebyte-ats/internal/constants"
	appCoreLogger "hirebyte-ats/internal/logger"
	"hirebyte-ats/internal/parser"
	"hirebyte-ats/internal/processor"
	"hirebyte-ats/internal/storage"
	"hirebyte-ats/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	// .env.local 优先，已存在的环境变量不会被覆盖
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing, constants.ServiceVersion)
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}

	pipeline, err := processor.BuildPipeline(cfg, appCoreLogger.StdLogger,
		processor.WithPipelineLogger(appCoreLogger.Logger.With().Str("component", "pipeline").Logger()))
	if err != nil {
		glog.Fatalf("构建文本提取管线失败: %v", err)
	}
	glog.Infof("文本提取管线初始化成功，级联: %v", pipeline.Stages())

	if cfg.Tika.ServerURL != "" {
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := parser.NewTikaOCRExtractor(cfg.Tika.ServerURL).Ping(pingCtx); err != nil {
			glog.Warnf("Tika服务器不可用，OCR阶段将失败后跳过: %v", err)
		}
		pingCancel()
	}

	feedback, err := parser.NewFeedbackProvider(cfg.LLM, appCoreLogger.StdLogger("[ATSFeedback] "))
	if err != nil {
		glog.Fatalf("初始化LLM反馈生成器失败: %v", err)
	}
	if !feedback.Configured() {
		glog.Warn("未配置GROQ_API_KEY，分析接口将返回模板反馈")
	}
	analyzer := processor.NewATSAnalyzer(feedback)

	routeOpts := router.Options{APIKeys: cfg.Auth.APIKeys}

	var redisAdapter *storage.Redis
	if cfg.Redis.Address != "" {
		redisAdapter, err = storage.NewRedisAdapter(&cfg.Redis)
		if err != nil {
			glog.Warnf("Redis不可用，请求限流已禁用: %v", err)
		} else {
			routeOpts.Limiter = redisAdapter
			glog.Infof("请求限流已启用，每分钟上限: %d", redisAdapter.Limit())
		}
	}

	var mq *storage.RabbitMQ
	var publisher storage.SuggestionPublisher
	if cfg.RabbitMQ.URL != "" {
		mq, err = storage.NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			glog.Warnf("RabbitMQ不可用，建议邮件接口将返回503: %v", err)
		} else {
			// 声明失败不致命，投递时会再次声明
			if err := mq.SetupSuggestionTopology(); err != nil {
				glog.Warnf("声明建议邮件队列失败: %v", err)
			}
			publisher = mq
		}
	}
	suggestions := processor.NewSuggestionService(publisher)

	atsHandler := handler.NewATSHandler(pipeline, analyzer, suggestions)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(cfg.Server.MaxRequestBodyMB*1024*1024),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, atsHandler, routeOpts)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}
	if mq != nil {
		if err := mq.Close(); err != nil {
			glog.Warnf("关闭RabbitMQ连接失败: %v", err)
		}
	}
	if redisAdapter != nil {
		if err := redisAdapter.Close(); err != nil {
			glog.Warnf("关闭Redis连接失败: %v", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		glog.Warnf("关闭链路追踪失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
