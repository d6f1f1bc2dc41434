package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	convrepo "llm-arena/backend/conversation/repository"
	"llm-arena/backend/feedback/models"
	"llm-arena/backend/feedback/repository"
	"llm-arena/backend/feedback/service"
	apperrors "llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/logger"
	ratingmodels "llm-arena/backend/rating/models"
	sessionmodels "llm-arena/backend/session/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type oneSession struct{ session *sessionmodels.Session }

func (o oneSession) Get(_ context.Context, id string) (*sessionmodels.Session, error) {
	if id != o.session.ID {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrSessionNotFound)
	}
	return o.session, nil
}

type noRatings struct{}

func (noRatings) ApplyOutcome(context.Context, string, string, ratingmodels.Result, string) (int, int, error) {
	return 0, 0, nil
}

type noCache struct{}

func (noCache) Invalidate(context.Context) {}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := "m2"
	svc := service.NewService(
		repository.NewMemoryPreferenceRepository(),
		oneSession{&sessionmodels.Session{ID: "s1", Mode: sessionmodels.ModeCompare, ModelAID: "m1", ModelBID: &b}},
		convrepo.NewMemoryTreeStore(),
		noRatings{},
		noCache{},
		service.Config{},
		logger.Discard(),
	)

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	RegisterFeedbackRoutes(r.Group("/api/v1"), NewFeedbackHandler(svc), func(c *gin.Context) { c.Next() })
	return r
}

func TestRecordPreferenceEndpoint(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/preferences", strings.NewReader(`{"preferred_model_id":"m2","category":"creative"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var pref models.Preference
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pref))
	assert.Equal(t, ratingmodels.ResultBWins, pref.Result)
	assert.Equal(t, "creative", pref.Category)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/preferences", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), pref.ID)
}

func TestRecordPreferenceRejectsForeignModel(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/preferences", strings.NewReader(`{"preferred_model_id":"m9"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s9/preferences", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
