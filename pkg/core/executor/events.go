package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventType 事件类型
type EventType string

const (
	EventRunStarted    EventType = "run.started"    // Pipeline运行开始
	EventRunFinished   EventType = "run.finished"   // Pipeline运行结束
	EventTaskStarted   EventType = "task.started"   // Task开始执行
	EventTaskRetrying  EventType = "task.retrying"  // Task失败后重试
	EventTaskSucceeded EventType = "task.succeeded" // Task执行成功
	EventTaskFailed    EventType = "task.failed"    // Task失败、超时或上游失败
)

// EventTypes 全部事件类型
var EventTypes = []EventType{
	EventRunStarted,
	EventRunFinished,
	EventTaskStarted,
	EventTaskRetrying,
	EventTaskSucceeded,
	EventTaskFailed,
}

// Event 运行事件
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	PipelineID string    `json:"pipeline_id"`
	TaskID     string    `json:"task_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEvent 创建事件
func NewEvent(eventType EventType, runID, pipelineID, taskID string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		RunID:      runID,
		PipelineID: pipelineID,
		TaskID:     taskID,
		Timestamp:  time.Now(),
	}
}

// EventBus 进程内事件总线，基于watermill的gochannel（对外导出）
type EventBus struct {
	pubsub *gochannel.GoChannel
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	logger := watermill.NewStdLogger(false, false)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
	return &EventBus{pubsub: pubsub}
}

// Publish 发布事件，topic为事件类型
func (b *EventBus) Publish(event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("run_id", event.RunID)
	msg.Metadata.Set("task_id", event.TaskID)
	if err := b.pubsub.Publish(string(event.Type), msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅指定类型的事件，ctx取消或总线关闭后channel关闭
func (b *EventBus) Subscribe(ctx context.Context, eventType EventType) (<-chan *Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	out := make(chan *Event, 64)
	go func() {
		defer close(out)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.WithError(err).Warn("[事件总线] 事件解析失败，已丢弃")
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribeAll 订阅全部类型的事件并合并到一个channel
// 全部订阅结束（ctx取消或总线关闭）后channel关闭
func (b *EventBus) SubscribeAll(ctx context.Context) (<-chan *Event, error) {
	out := make(chan *Event, 64)
	var wg sync.WaitGroup
	for _, eventType := range EventTypes {
		ch, err := b.Subscribe(ctx, eventType)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range ch {
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// Close 关闭事件总线
func (b *EventBus) Close() error {
	return b.pubsub.Close()
}
