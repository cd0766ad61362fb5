package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"hirebyte-ats/internal/config"
	"hirebyte-ats/internal/tracing"
	"hirebyte-ats/internal/types"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrPublisherUnavailable 未配置消息队列
var ErrPublisherUnavailable = errors.New("消息队列未配置")

var mqTracer = otel.Tracer("hirebyte-ats/storage/rabbitmq")

// MessageQueue 消息队列接口
type MessageQueue interface {
	// 发布消息
	PublishMessage(ctx context.Context, exchangeName, routingKey, messageID string, message []byte, persistent bool) error

	// 发布JSON格式消息
	PublishJSON(ctx context.Context, exchangeName, routingKey, messageID string, data interface{}, persistent bool) error

	// 确保交换机存在
	EnsureExchange(exchangeName, exchangeType string, durable bool) error

	// 确保队列存在
	EnsureQueue(queueName string, durable bool) error

	// 绑定队列到交换机
	BindQueue(queueName, exchangeName, routingKey string) error

	// 关闭连接
	Close() error
}

// SuggestionPublisher 投递建议邮件任务
type SuggestionPublisher interface {
	PublishSuggestion(ctx context.Context, job types.SuggestionEmailJob) (string, error)
}

var (
	_ MessageQueue        = (*RabbitMQ)(nil)
	_ SuggestionPublisher = (*RabbitMQ)(nil)
)

// RabbitMQ 提供消息队列功能
type RabbitMQ struct {
	conn        *amqp.Connection
	channelPool sync.Pool
	mu          sync.Mutex      // 保护下面三个map
	exchangeMap map[string]bool // 已声明的exchange
	queueMap    map[string]bool // 已声明的queue
	bindingMap  map[string]bool // 已创建的binding，key为 "exchange:queue:routingKey"
	cfg         *config.RabbitMQConfig
}

// NewRabbitMQ 创建RabbitMQ客户端
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:        conn,
		exchangeMap: make(map[string]bool),
		queueMap:    make(map[string]bool),
		bindingMap:  make(map[string]bool),
		cfg:         cfg,
	}
	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, errPool := conn.Channel()
			if errPool != nil {
				log.Printf("创建RabbitMQ通道失败: %v", errPool)
				return nil
			}
			return ch
		},
	}

	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	log.Printf("成功连接到RabbitMQ服务器")
	return mq, nil
}

// 获取可用通道，池中的通道已关闭时新建
func (r *RabbitMQ) getChannel() *amqp.Channel {
	if v := r.channelPool.Get(); v != nil {
		if ch, ok := v.(*amqp.Channel); ok && ch != nil && !ch.IsClosed() {
			return ch
		}
	}
	ch, err := r.conn.Channel()
	if err != nil {
		log.Printf("创建新RabbitMQ通道失败: %v", err)
		return nil
	}
	return ch
}

// 归还通道到池
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil && !ch.IsClosed() {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exchangeMap[exchangeName] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName, // exchange名称
		exchangeType, // exchange类型
		durable,      // 持久化
		false,        // 自动删除
		false,        // 内部专用
		false,        // 非阻塞
		nil,          // 参数
	)
	if err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}

	r.exchangeMap[exchangeName] = true
	log.Printf("已确保exchange存在: '%s'", exchangeName)
	return nil
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	if queueName == "" {
		return fmt.Errorf("队列名称不能为空")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queueMap[queueName] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	_, err := ch.QueueDeclare(
		queueName, // 队列名称
		durable,   // 持久化
		false,     // 自动删除
		false,     // 独占
		false,     // 非阻塞
		nil,       // 参数
	)
	if err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}

	r.queueMap[queueName] = true
	log.Printf("已确保队列存在: %s", queueName)
	return nil
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	bindingKey := fmt.Sprintf("%s:%s:%s", exchangeName, queueName, routingKey)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindingMap[bindingKey] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("绑定队列到exchange失败: %w", err)
	}

	r.bindingMap[bindingKey] = true
	log.Printf("已绑定队列 %s 到exchange %s，路由键: %s", queueName, exchangeName, routingKey)
	return nil
}

// SetupSuggestionTopology 声明建议邮件的exchange、队列和绑定
func (r *RabbitMQ) SetupSuggestionTopology() error {
	if err := r.EnsureExchange(r.cfg.SuggestionsExchange, "direct", true); err != nil {
		return err
	}
	if r.cfg.SuggestionsQueue == "" {
		return nil
	}
	if err := r.EnsureQueue(r.cfg.SuggestionsQueue, true); err != nil {
		return err
	}
	return r.BindQueue(r.cfg.SuggestionsQueue, r.cfg.SuggestionsExchange, r.cfg.SuggestionsRoutingKey)
}

// PublishMessage 发布消息到exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey, messageID string, message []byte, persistent bool) error {
	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	deliveryMode := amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	return ch.PublishWithContext(
		ctx,
		exchangeName, // exchange名
		routingKey,   // 路由键
		false,        // 强制
		false,        // 立即
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey, messageID string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}
	return r.PublishMessage(ctx, exchangeName, routingKey, messageID, jsonData, persistent)
}

// PublishSuggestion 持久化投递一封建议邮件任务，返回消息ID
func (r *RabbitMQ) PublishSuggestion(ctx context.Context, job types.SuggestionEmailJob) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.CreatedAt == 0 {
		job.CreatedAt = time.Now().Unix()
	}

	ctx, span := mqTracer.Start(ctx, "RabbitMQ.PublishSuggestion",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", r.cfg.SuggestionsExchange),
			attribute.String("messaging.rabbitmq.routing_key", r.cfg.SuggestionsRoutingKey),
			attribute.String("messaging.message_id", job.JobID),
			attribute.String("email.to", tracing.SafeAttributeValue("email.to", job.To, tracing.DefaultMaxLength)),
		))
	defer span.End()

	if err := r.SetupSuggestionTopology(); err != nil {
		tracing.RecordPublishFailure(span, err, job.JobID)
		return "", err
	}
	if err := r.PublishJSON(ctx, r.cfg.SuggestionsExchange, r.cfg.SuggestionsRoutingKey, job.JobID, job, true); err != nil {
		tracing.RecordPublishFailure(span, err, job.JobID)
		return "", fmt.Errorf("投递建议邮件任务失败: %w", err)
	}
	return job.JobID, nil
}
