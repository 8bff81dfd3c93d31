package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storyloop/dailystories/engagement"
	"github.com/storyloop/dailystories/utils"
	"github.com/storyloop/dailystories/utils/dotenv"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	dotenv.LoadDotEnvsInTests()
	m.Run()
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	db, name := utils.CreateTempDB(t)
	t.Log("created temp db", name)

	svc := &engagement.Service{DB: db, DedupWindow: 30 * time.Minute}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewServer(svc).RegisterRoutes(router)
	return router, db
}

func doJSON(t *testing.T, router *gin.Engine, method string, path string, headers map[string]string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecordViewEndpoint(t *testing.T) {
	router, db := newTestRouter(t)
	storyId := utils.TestCreatePublishedStory(t, db, "endpoint story")

	w := doJSON(t, router, http.MethodPost, "/stories/"+storyId+"/views",
		map[string]string{"X-Device-Id": "device-1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result engagement.ViewResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.True(t, result.IsNewView)
	require.Equal(t, int64(1), result.TotalViews)

	// the same device inside the window is a success, not a new view
	w = doJSON(t, router, http.MethodPost, "/stories/"+storyId+"/views",
		map[string]string{"X-Device-Id": "device-1"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.False(t, result.IsNewView)
}

func TestErrorMapping(t *testing.T) {
	router, db := newTestRouter(t)
	memberId := utils.TestCreateMember(t, db, "caller")
	storyId := utils.TestCreatePublishedStory(t, db, "story")
	expiredId := utils.TestCreateExpiredStory(t, db, "yesterday's story")
	asMember := map[string]string{"X-Member-Id": memberId}

	// unknown story id
	w := doJSON(t, router, http.MethodPost, "/stories/no-such-story/views", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "not_found")

	// story outside its publication window
	w = doJSON(t, router, http.MethodPost, "/stories/"+expiredId+"/views", nil, nil)
	require.Equal(t, http.StatusGone, w.Code)
	require.Contains(t, w.Body.String(), "not_available")

	// member-only endpoint without identity
	w = doJSON(t, router, http.MethodPut, "/stories/"+storyId+"/ratings", nil,
		gin.H{"rating": 5})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// out-of-range rating
	w = doJSON(t, router, http.MethodPut, "/stories/"+storyId+"/ratings", asMember,
		gin.H{"rating": 6})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_argument")

	// duplicate interaction
	w = doJSON(t, router, http.MethodPost, "/stories/"+storyId+"/interactions", asMember,
		gin.H{"action": "like"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, router, http.MethodPost, "/stories/"+storyId+"/interactions", asMember,
		gin.H{"action": "like"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "duplicate_interaction")
}

func TestRatingRoundTrip(t *testing.T) {
	router, db := newTestRouter(t)
	memberId := utils.TestCreateMember(t, db, "reader")
	storyId := utils.TestCreatePublishedStory(t, db, "rated story")
	asMember := map[string]string{"X-Member-Id": memberId}

	w := doJSON(t, router, http.MethodPut, "/stories/"+storyId+"/ratings", asMember,
		gin.H{"rating": 4, "comment": "solid"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/stories/"+storyId+"/analytics/ratings", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var analytics engagement.RatingAnalytics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analytics))
	require.Equal(t, int64(1), analytics.TotalRatings)
	require.Equal(t, 4.0, analytics.AverageRating)

	w = doJSON(t, router, http.MethodDelete, "/stories/"+storyId+"/ratings", asMember, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/stories/"+storyId+"/analytics/ratings", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analytics))
	require.Equal(t, int64(0), analytics.TotalRatings)
}
