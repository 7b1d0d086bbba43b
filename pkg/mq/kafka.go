// Package mq 提供 Kafka 生产者封装与领域事件发布实现
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nilebridge/cargoledger/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Config Kafka 配置
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout int
}

// Producer Kafka 生产者
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are empty")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           time.Duration(cfg.BatchTimeout) * time.Millisecond,
	}

	logger.Info(context.Background(), "Kafka producer created successfully", "brokers", cfg.Brokers)
	return &Producer{
		writer: writer,
		topic:  cfg.Topic,
	}, nil
}

// Publish 序列化并发送一条消息。topic 为空时使用配置中的默认主题。
func (p *Producer) Publish(ctx context.Context, topic, key string, value any) error {
	if topic == "" {
		topic = p.topic
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, "Failed to send Kafka message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return err
	}

	logger.Debug(ctx, "Kafka message sent",
		"topic", topic,
		"key", key,
	)
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// NoopPublisher 空实现，未配置 Kafka 时使用
type NoopPublisher struct{}

// Publish 丢弃消息
func (NoopPublisher) Publish(ctx context.Context, topic, key string, value any) error {
	return nil
}
