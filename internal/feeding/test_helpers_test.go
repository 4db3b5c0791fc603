package feeding

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/pagination"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/validation"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequenceIDProvider struct {
	prefix string
	next   int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	if p.next > 9999 {
		return "", errors.New("exhausted ids")
	}
	return fmt.Sprintf("%s%04d", p.prefix, p.next), nil
}

type steppingClock struct {
	current time.Time
	step    time.Duration
}

func (c *steppingClock) Now() time.Time {
	value := c.current
	c.current = c.current.Add(c.step)
	return value
}

type recordingListener struct {
	events []ChangeEvent
}

func (l *recordingListener) OnChange(_ context.Context, event ChangeEvent) {
	l.events = append(l.events, event)
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedlog.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Food{}, &Meal{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// newTestService returns a service whose ids sort in creation order and whose
// clock advances by step on every mutation. A zero step pins every row to the
// same millisecond.
func newTestService(t *testing.T, step time.Duration) (*Service, *gorm.DB, *recordingListener) {
	t.Helper()
	db := openTestDatabase(t)
	clock := &steppingClock{current: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), step: step}
	listener := &recordingListener{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &sequenceIDProvider{prefix: "00000000-0000-7000-8000-00000000"},
		Listeners:  []ChangeListener{listener},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db, listener
}

func mustCreateFood(t *testing.T, service *Service, name string) FoodWithCounts {
	t.Helper()
	food, err := service.CreateFood(context.Background(), validation.FoodCreate{
		Name:       name,
		Preference: validation.PreferenceLikes,
	})
	if err != nil {
		t.Fatalf("failed to create food %q: %v", name, err)
	}
	return food
}

func mustCreateMeal(t *testing.T, service *Service, input validation.MealCreate) MealWithFood {
	t.Helper()
	meal, err := service.CreateMeal(context.Background(), input)
	if err != nil {
		t.Fatalf("failed to create meal %+v: %v", input, err)
	}
	return meal
}

func cursorPage(limit int, cursor *pagination.Cursor) pagination.Request {
	return pagination.Request{Mode: pagination.ModeCursor, Limit: limit, Cursor: cursor}
}

func requireServiceError(t *testing.T, err error, kind ErrorKind, code string) *ServiceError {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	if serviceErr.Kind() != kind {
		t.Fatalf("expected kind %q, got %q", kind, serviceErr.Kind())
	}
	if serviceErr.Code() != code {
		t.Fatalf("expected code %q, got %q", code, serviceErr.Code())
	}
	return serviceErr
}
