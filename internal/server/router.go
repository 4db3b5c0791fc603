package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/users"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	memberContextKey         = "feedlog_member"
	defaultHeartbeatInterval = 25 * time.Second
	readCacheControl         = "private, max-age=30, stale-while-revalidate=60"
)

var (
	errMissingFeedingService = errors.New("feeding service dependency required")
	errMissingSummaries      = errors.New("summary cache dependency required")
	errMissingSessions       = errors.New("session validator dependency required")
	errMissingMembers        = errors.New("member resolver dependency required")
	errMissingValidator      = errors.New("validator dependency required")
)

// FeedingService lists and mutates foods and meals.
type FeedingService interface {
	ListFoods(ctx context.Context, query feeding.FoodListQuery) (feeding.FoodPage, error)
	CreateFood(ctx context.Context, input validation.FoodCreate) (feeding.FoodWithCounts, error)
	UpdateFood(ctx context.Context, foodID string, patch validation.FoodPatch) error
	DeleteFood(ctx context.Context, foodID string) error
	ListMeals(ctx context.Context, query feeding.MealListQuery) (feeding.MealPage, error)
	CreateMeal(ctx context.Context, input validation.MealCreate) (feeding.MealWithFood, error)
	UpdateMeal(ctx context.Context, mealID string, patch validation.MealPatch) error
	DeleteMeal(ctx context.Context, mealID string) error
}

// SummaryReader serves the compact food list.
type SummaryReader interface {
	Get(ctx context.Context) ([]feeding.FoodSummary, error)
}

// SessionValidator authenticates a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// MemberResolver admits an authenticated session as a household member.
type MemberResolver interface {
	ResolveMember(claims auth.SessionClaims) (users.Member, error)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	Feeding            FeedingService
	Summaries          SummaryReader
	Sessions           SessionValidator
	Members            MemberResolver
	Validator          *validation.Validator
	Realtime           *RealtimeDispatcher
	HealthCheck        func(ctx context.Context) error
	Logger             *zap.Logger
	AllowedOrigins     []string
	ExposeErrorDetails bool
	HeartbeatInterval  time.Duration
}

// NewHTTPHandler builds the gin engine serving the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Feeding == nil {
		return nil, errMissingFeedingService
	}
	if deps.Summaries == nil {
		return nil, errMissingSummaries
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Members == nil {
		return nil, errMissingMembers
	}
	if deps.Validator == nil {
		return nil, errMissingValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	handler := &httpHandler{
		feeding:            deps.Feeding,
		summaries:          deps.Summaries,
		sessions:           deps.Sessions,
		members:            deps.Members,
		validator:          deps.Validator,
		realtime:           realtime,
		healthCheck:        deps.HealthCheck,
		logger:             logger,
		exposeErrorDetails: deps.ExposeErrorDetails,
		heartbeatInterval:  heartbeat,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/foods", handler.handleListFoods)
	protected.GET("/foods/summaries", handler.handleListFoodSummaries)
	protected.POST("/foods", handler.handleCreateFood)
	protected.PATCH("/foods/:id", handler.handleUpdateFood)
	protected.DELETE("/foods/:id", handler.handleDeleteFood)
	protected.GET("/meals", handler.handleListMeals)
	protected.POST("/meals", handler.handleCreateMeal)
	protected.PATCH("/meals/:id", handler.handleUpdateMeal)
	protected.DELETE("/meals/:id", handler.handleDeleteMeal)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	feeding            FeedingService
	summaries          SummaryReader
	sessions           SessionValidator
	members            MemberResolver
	validator          *validation.Validator
	realtime           *RealtimeDispatcher
	healthCheck        func(ctx context.Context) error
	logger             *zap.Logger
	exposeErrorDetails bool
	heartbeatInterval  time.Duration
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if h.healthCheck != nil {
		if err := h.healthCheck(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	member, err := h.members.ResolveMember(claims)
	switch {
	case errors.Is(err, users.ErrNotMember):
		h.logger.Warn("session rejected for non-member", zap.String("user_id", claims.UserID))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	case errors.Is(err, users.ErrInvalidIdentity):
		h.logger.Warn("session carried no usable identity")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	case err != nil:
		h.logger.Error("member resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve member"})
		return
	}

	c.Set(memberContextKey, member)
	c.Next()
}
