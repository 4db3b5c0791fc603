package feeding

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew     = "feeding.service.new"
	opListFoods      = "feeding.list_foods"
	opListSummaries  = "feeding.list_food_summaries"
	opCreateFood     = "feeding.create_food"
	opUpdateFood     = "feeding.update_food"
	opDeleteFood     = "feeding.delete_food"
	opListMeals      = "feeding.list_meals"
	opCreateMeal     = "feeding.create_meal"
	opUpdateMeal     = "feeding.update_meal"
	opDeleteMeal     = "feeding.delete_meal"
	fieldFoodID      = "food_id"
	fieldMealID      = "meal_id"
	queryID          = "id = ?"
	queryFoodID      = "food_id = ?"
	reasonMissingDB  = "missing_database"
	reasonQuery      = "query_failed"
	reasonIDFailed   = "id_generation_failed"
	reasonInsert     = "insert_failed"
	reasonUpdate     = "update_failed"
	reasonDelete     = "delete_failed"
	reasonNotFound   = "not_found"
	reasonReferenced = "food_referenced"
	reasonDuplicate  = "duplicate_meal"
	reasonUnknown    = "unknown_food"
)

var noOpLogger = zap.NewNop()

// Entity names the record type a ChangeEvent refers to.
type Entity string

const (
	EntityFood Entity = "food"
	EntityMeal Entity = "meal"
)

// Action names the mutation a ChangeEvent reports.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// ChangeEvent describes a committed mutation.
type ChangeEvent struct {
	Entity Entity
	Action Action
	IDs    []string
}

// ChangeListener is notified after every committed mutation. Listeners must not block.
type ChangeListener interface {
	OnChange(ctx context.Context, event ChangeEvent)
}

// ServiceConfig describes the dependencies of the feeding service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
	Listeners  []ChangeListener
}

// Service lists and mutates foods and meals.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	listeners  []ChangeListener
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDB, KindInternal, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", KindInternal, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		listeners:  append([]ChangeListener(nil), cfg.Listeners...),
	}, nil
}

// AddListener registers a listener for committed mutations. It is not safe to
// call concurrently with mutations and is meant for wiring at startup.
func (s *Service) AddListener(listener ChangeListener) {
	if listener != nil {
		s.listeners = append(s.listeners, listener)
	}
}

func (s *Service) nowMillis() int64 {
	return s.clock().UTC().UnixMilli()
}

func (s *Service) notify(ctx context.Context, entity Entity, action Action, ids ...string) {
	event := ChangeEvent{Entity: entity, Action: action, IDs: ids}
	for _, listener := range s.listeners {
		listener.OnChange(ctx, event)
	}
}

func (s *Service) requireDatabase(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDB, errMissingDatabase)
		return newServiceError(operation, reasonMissingDB, KindInternal, errMissingDatabase)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("feeding service error", attrs...)
}
