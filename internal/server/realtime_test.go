package server

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
)

func receiveMessage(t *testing.T, stream <-chan RealtimeMessage) RealtimeMessage {
	t.Helper()
	select {
	case message := <-stream:
		return message
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
	return RealtimeMessage{}
}

func TestRealtimeDispatcherBroadcastsToEverySubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, cleanupFirst := dispatcher.Subscribe(ctx)
	defer cleanupFirst()
	second, cleanupSecond := dispatcher.Subscribe(ctx)
	defer cleanupSecond()

	dispatcher.Publish(RealtimeMessage{
		EventType: RealtimeEventMealChanged,
		IDs:       []string{"meal-a", "meal-b"},
		Timestamp: time.Now().UTC(),
	})

	for _, stream := range []<-chan RealtimeMessage{first, second} {
		received := receiveMessage(t, stream)
		if received.EventType != RealtimeEventMealChanged || len(received.IDs) != 2 {
			t.Fatalf("unexpected message %+v", received)
		}
	}
}

func TestRealtimeDispatcherIgnoresUntypedMessages(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background())
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{IDs: []string{"food-a"}})

	select {
	case message := <-stream:
		t.Fatalf("did not expect a message, got %+v", message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRealtimeDispatcherCleanupOnContextCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx)
	if dispatcher.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber, got %d", dispatcher.SubscriberCount())
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber was not removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cleanup()
}

func TestRealtimeDispatcherDropsWhenSubscriberIsFull(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background())
	defer cleanup()

	for index := 0; index < realtimeBufferSize+5; index++ {
		dispatcher.Publish(RealtimeMessage{EventType: RealtimeEventFoodChanged, IDs: []string{"food"}})
	}
	if len(stream) != realtimeBufferSize {
		t.Fatalf("expected buffer to hold %d messages, got %d", realtimeBufferSize, len(stream))
	}
}

func TestRealtimeDispatcherMapsFeedingChanges(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	fixed := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	dispatcher.clock = func() time.Time { return fixed }
	stream, cleanup := dispatcher.Subscribe(context.Background())
	defer cleanup()

	dispatcher.OnChange(context.Background(), feeding.ChangeEvent{
		Entity: feeding.EntityFood,
		Action: feeding.ActionDeleted,
		IDs:    []string{"food-1"},
	})
	food := receiveMessage(t, stream)
	if food.EventType != RealtimeEventFoodChanged || food.Action != "deleted" || !food.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected food message %+v", food)
	}

	dispatcher.OnChange(context.Background(), feeding.ChangeEvent{
		Entity: feeding.EntityMeal,
		Action: feeding.ActionCreated,
		IDs:    []string{"meal-1"},
	})
	meal := receiveMessage(t, stream)
	if meal.EventType != RealtimeEventMealChanged || meal.IDs[0] != "meal-1" {
		t.Fatalf("unexpected meal message %+v", meal)
	}
}
