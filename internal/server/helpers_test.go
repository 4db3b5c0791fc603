package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/database"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/summaries"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/users"
	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const testSigningSecret = "test-signing-secret"

type testStack struct {
	handler    http.Handler
	feeding    *feeding.Service
	realtime   *RealtimeDispatcher
	issuer     *auth.SessionIssuer
	token      string
	foreignJWT string
}

type testStackOptions struct {
	allowedEmails      []string
	exposeErrorDetails bool
	logger             *zap.Logger
	heartbeat          time.Duration
}

func newTestStack(t *testing.T, options testStackOptions) *testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "feedlog.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	realtime := NewRealtimeDispatcher()
	feedingService, err := feeding.NewService(feeding.ServiceConfig{
		Database:   db,
		IDProvider: feeding.NewUUIDProvider(),
		Logger:     logger,
		Listeners:  []feeding.ChangeListener{realtime},
	})
	if err != nil {
		t.Fatalf("failed to construct feeding service: %v", err)
	}
	cache, err := summaries.NewCache(summaries.Config{
		Store:  summaries.NewMemoryStore(time.Minute, nil),
		Loader: feedingService,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to construct summary cache: %v", err)
	}
	feedingService.AddListener(cache)

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	members, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger, AllowedEmails: options.allowedEmails})
	if err != nil {
		t.Fatalf("failed to construct member service: %v", err)
	}
	issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{SigningSecret: []byte(testSigningSecret)})
	if err != nil {
		t.Fatalf("failed to construct session issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Feeding:   feedingService,
		Summaries: cache,
		Sessions:  sessions,
		Members:   members,
		Validator: validation.New(validation.Options{
			AmountUnitRequired: true,
			Clock: func() time.Time {
				return time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
			},
		}),
		Realtime: realtime,
		HealthCheck: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		Logger:             logger,
		AllowedOrigins:     []string{"https://app.example.com"},
		ExposeErrorDetails: options.exposeErrorDetails,
		HeartbeatInterval:  options.heartbeat,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	token, _, err := issuer.Issue(auth.SessionIdentity{UserID: "keeper-1", Email: "keeper@example.com"})
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}
	foreign, _, err := issuer.Issue(auth.SessionIdentity{UserID: "stranger-1", Email: "stranger@example.com"})
	if err != nil {
		t.Fatalf("failed to issue session: %v", err)
	}

	return &testStack{
		handler:    handler,
		feeding:    feedingService,
		realtime:   realtime,
		issuer:     issuer,
		token:      token,
		foreignJWT: foreign,
	}
}

func (s *testStack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithToken(t, method, path, body, s.token)
}

func (s *testStack) doWithToken(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch typed := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.AddCookie(&http.Cookie{Name: auth.DefaultSessionCookieName, Value: token})
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var decoded T
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}
