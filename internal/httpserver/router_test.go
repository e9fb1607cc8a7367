package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dailyverse/internal/delivery"
	"dailyverse/internal/model"
	"dailyverse/internal/repository"
	"dailyverse/internal/trigger"
	"dailyverse/pkg/outbox"
)

type fakeTrigger struct {
	err     error
	testErr error
}

func (f *fakeTrigger) Trigger(context.Context) (*model.RunSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.RunSummary{ID: "run-1", UsersProcessed: 3, NotificationsSent: 2, Errors: 1}, nil
}

func (f *fakeTrigger) TriggerTest(_ context.Context, userID string) (*delivery.TestResult, error) {
	if f.testErr != nil {
		return nil, f.testErr
	}
	return &delivery.TestResult{UserID: userID, Status: model.DeliveryStatusSent, Title: "[TEST] Morning Light"}, nil
}

type fakeReplayer struct{ replayed []int64 }

func (f *fakeReplayer) ReplayEvent(_ context.Context, id int64) error {
	if id == 404 {
		return outbox.ErrEventNotFound
	}
	f.replayed = append(f.replayed, id)
	return nil
}

func (f *fakeReplayer) ReplayFailedEvents(context.Context, int) (int, error) { return 4, nil }

const testSecret = "test-secret"

func newTestRouter(t *fakeTrigger, checks map[string]ReadinessCheck) (*Router, *fakeReplayer) {
	gin.SetMode(gin.TestMode)
	rep := &fakeReplayer{}
	return NewRouter(NewRunHandler(t, zap.NewNop()), NewAdminHandler(rep, zap.NewNop()), checks, testSecret, zap.NewNop()), rep
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func operatorToken() string {
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	return token
}

func do(r *Router, method, path string, body []byte) *httptest.ResponseRecorder {
	return doAuth(r, method, path, body, "Bearer "+operatorToken())
}

func doAuth(r *Router, method, path string, body []byte, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	r, _ := newTestRouter(&fakeTrigger{}, map[string]ReadinessCheck{
		"db": func(context.Context) error { return nil },
	})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/readyz", nil).Code)

	down, _ := newTestRouter(&fakeTrigger{}, map[string]ReadinessCheck{
		"db": func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})
	w := do(down, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db_not_ready")
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(&fakeTrigger{}, nil)
	w := do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestTriggerRun(t *testing.T) {
	r, _ := newTestRouter(&fakeTrigger{}, nil)
	w := do(r, http.MethodPost, "/v1/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, 2, got.NotificationsSent)
}

func TestTriggerRun_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{trigger.ErrRunInProgress, http.StatusConflict},
		{fmt.Errorf("%w: load recipients: db down", delivery.ErrSystemFailure), http.StatusServiceUnavailable},
		{errors.New("persist run summary: boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		r, _ := newTestRouter(&fakeTrigger{err: tt.err}, nil)
		assert.Equal(t, tt.want, do(r, http.MethodPost, "/v1/runs", nil).Code, tt.err.Error())
	}
}

func TestTriggerTest(t *testing.T) {
	r, _ := newTestRouter(&fakeTrigger{}, nil)

	w := do(r, http.MethodPost, "/v1/runs/test", []byte(`{"user_id":"u1"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var res delivery.TestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, model.DeliveryStatusSent, res.Status)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/v1/runs/test", []byte(`{}`)).Code)

	missing, _ := newTestRouter(&fakeTrigger{testErr: fmt.Errorf("user ghost: %w", repository.ErrNotFound)}, nil)
	assert.Equal(t, http.StatusNotFound, do(missing, http.MethodPost, "/v1/runs/test", []byte(`{"user_id":"ghost"}`)).Code)
}

func TestAdminReplay(t *testing.T) {
	r, rep := newTestRouter(&fakeTrigger{}, nil)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/admin/outbox/replay?id=12", nil).Code)
	assert.Equal(t, []int64{12}, rep.replayed)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/outbox/replay", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/outbox/replay?id=abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/admin/outbox/replay?id=404", nil).Code)

	w := do(r, http.MethodPost, "/admin/outbox/replay-failed?limit=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success_count":4`)
}

func TestAuth_RejectsUnauthenticatedCalls(t *testing.T) {
	r, rep := newTestRouter(&fakeTrigger{}, nil)

	expired := signToken(t, testSecret, jwt.MapClaims{
		"sub": "ops@example.com",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	tests := []struct {
		name          string
		authorization string
		wantError     string
	}{
		{"no header", "", "missing token"},
		{"not bearer", "Basic b3BzOnB3", "missing token"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", jwt.MapClaims{"sub": "ops@example.com"}), "invalid token"},
		{"expired", "Bearer " + expired, "invalid token"},
		{"no subject", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}), "invalid token"},
		{"garbage", "Bearer not-a-jwt", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/v1/runs", "/v1/runs/test", "/admin/outbox/replay?id=1", "/admin/outbox/replay-failed"} {
				w := doAuth(r, http.MethodPost, path, []byte(`{"user_id":"u1"}`), tt.authorization)
				assert.Equal(t, http.StatusUnauthorized, w.Code, path)
				assert.Contains(t, w.Body.String(), tt.wantError, path)
			}
		})
	}
	assert.Empty(t, rep.replayed)
}

func TestAuth_HealthEndpointsStayOpen(t *testing.T) {
	r, _ := newTestRouter(&fakeTrigger{}, nil)
	assert.Equal(t, http.StatusOK, doAuth(r, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusOK, doAuth(r, http.MethodGet, "/readyz", nil, "").Code)
	assert.Equal(t, http.StatusOK, doAuth(r, http.MethodGet, "/metrics", nil, "").Code)
}

func TestParseJWT(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "ops@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	sub, err := ParseJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", sub)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "ops@example.com"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseJWT(none, testSecret)
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractToken(req))

	req.Header.Set("Authorization", "bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", ExtractToken(req))

	req.Header.Set("Authorization", "Bearer")
	assert.Empty(t, ExtractToken(req))
}
