package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventFoodChanged = "food-change"
	RealtimeEventMealChanged = "meal-change"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeBufferSize       = 16
)

// RealtimeMessage announces committed changes to connected clients.
type RealtimeMessage struct {
	EventType string
	Action    string
	IDs       []string
	Timestamp time.Time
}

type realtimePayload struct {
	Action    string   `json:"action,omitempty"`
	IDs       []string `json:"ids"`
	Timestamp string   `json:"timestamp"`
}

// RealtimeDispatcher fans change notifications out to every open event
// stream. The log is shared by the household, so every subscriber sees every
// change. Slow subscribers drop messages instead of blocking writers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that stays open until ctx ends or cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{stream: make(chan RealtimeMessage, d.bufferSize)}
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, subscriber.id)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// OnChange publishes committed feeding mutations.
func (d *RealtimeDispatcher) OnChange(_ context.Context, event feeding.ChangeEvent) {
	eventType := RealtimeEventMealChanged
	if event.Entity == feeding.EntityFood {
		eventType = RealtimeEventFoodChanged
	}
	d.Publish(RealtimeMessage{
		EventType: eventType,
		Action:    string(event.Action),
		IDs:       append([]string(nil), event.IDs...),
		Timestamp: d.clock().UTC(),
	})
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimePayload{
				Action:    message.Action,
				IDs:       message.IDs,
				Timestamp: message.Timestamp.Format(timestampLayout),
			})
			return true
		case now := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, realtimePayload{
				IDs:       []string{},
				Timestamp: now.UTC().Format(timestampLayout),
			})
			return true
		}
	})
}
