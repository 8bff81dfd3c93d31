package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/storyloop/dailystories/engagement"
	"github.com/storyloop/dailystories/model"
	"github.com/storyloop/dailystories/server/middlewares"
	Logger "github.com/storyloop/dailystories/utils/log"
	"gorm.io/datatypes"
)

// Server binds the engagement core to the REST surface consumed by the
// mobile client and the admin back office. Handlers only parse, delegate
// and serialize; every invariant lives in the engagement package.
type Server struct {
	Engagement *engagement.Service
}

func NewServer(svc *engagement.Service) *Server {
	return &Server{Engagement: svc}
}

func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.Use(middlewares.Attribution())

	stories := router.Group("/stories")
	{
		stories.GET("/top-rated", s.topRatedStories)
		stories.GET("/trending", s.trendingStories)
		stories.POST("/:id/views", s.recordView)
		stories.PUT("/:id/ratings", s.submitRating)
		stories.DELETE("/:id/ratings", s.deleteRating)
		stories.POST("/:id/interactions", s.recordInteraction)
		stories.DELETE("/:id/interactions/:action", s.removeInteraction)
		stories.PUT("/:id/progress", s.updateProgress)
		stories.GET("/:id/analytics/ratings", s.ratingAnalytics)
		stories.GET("/:id/analytics/views", s.viewAnalytics)
		stories.GET("/:id/analytics/interactions", s.interactionAnalytics)
	}

	router.GET("/members/:id/engagement", s.memberEngagement)
	router.GET("/stats", s.globalStats)

	admin := router.Group("/admin")
	{
		admin.POST("/stories", s.createStory)
		admin.PATCH("/stories/:id/status", s.setStoryStatus)
		admin.DELETE("/members/:id", s.purgeMember)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// abortWithError maps the engagement failure taxonomy onto HTTP. Anything
// outside the taxonomy is an unexpected failure, logged here at the
// boundary and returned opaque.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engagement.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "msg": err.Error()})
	case errors.Is(err, engagement.ErrNotAvailable):
		c.JSON(http.StatusGone, gin.H{"code": "not_available", "msg": err.Error()})
	case errors.Is(err, engagement.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "msg": err.Error()})
	case errors.Is(err, engagement.ErrDuplicateInteraction):
		c.JSON(http.StatusConflict, gin.H{"code": "duplicate_interaction", "msg": err.Error()})
	case errors.Is(err, engagement.ErrAlreadyRated):
		c.JSON(http.StatusConflict, gin.H{"code": "already_rated", "msg": err.Error()})
	case errors.Is(err, engagement.ErrTransientStore):
		Logger.Log.Error("storage failure: ", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "transient_store_failure", "msg": "temporary storage failure, retry the request"})
	default:
		Logger.Log.Error("unexpected failure: ", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal", "msg": "internal error"})
	}
}

// requireMember aborts anonymous requests to member-only endpoints.
func requireMember(c *gin.Context) (string, bool) {
	memberId := middlewares.MemberId(c)
	if memberId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthenticated", "msg": "member identity required"})
		return "", false
	}
	return memberId, true
}

func (s *Server) recordView(c *gin.Context) {
	var body struct {
		Referrer string         `json:"referrer"`
		Metadata datatypes.JSON `json:"metadata"`
	}
	// body is optional for view beacons
	_ = c.ShouldBindJSON(&body)

	attr := engagement.Attribution{IpAddress: c.ClientIP()}
	if memberId := middlewares.MemberId(c); memberId != "" {
		attr.MemberID = &memberId
	}
	if deviceId := middlewares.DeviceId(c); deviceId != "" {
		attr.DeviceID = &deviceId
	}

	result, err := s.Engagement.RecordView(c.Request.Context(), c.Param("id"), attr, engagement.ViewContext{
		SessionID: middlewares.SessionId(c),
		UserAgent: c.Request.UserAgent(),
		Referrer:  body.Referrer,
		Metadata:  body.Metadata,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) submitRating(c *gin.Context) {
	memberId, ok := requireMember(c)
	if !ok {
		return
	}
	var body struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "msg": "malformed request body"})
		return
	}

	result, err := s.Engagement.SubmitRating(c.Request.Context(), memberId, c.Param("id"), body.Rating, body.Comment)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) deleteRating(c *gin.Context) {
	memberId, ok := requireMember(c)
	if !ok {
		return
	}
	if err := s.Engagement.DeleteRating(c.Request.Context(), memberId, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) recordInteraction(c *gin.Context) {
	memberId, ok := requireMember(c)
	if !ok {
		return
	}
	var body struct {
		Action   string         `json:"action"`
		Metadata datatypes.JSON `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "msg": "malformed request body"})
		return
	}

	interaction, err := s.Engagement.RecordInteraction(c.Request.Context(), memberId, c.Param("id"), model.InteractionAction(body.Action), body.Metadata)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, interaction)
}

func (s *Server) removeInteraction(c *gin.Context) {
	memberId, ok := requireMember(c)
	if !ok {
		return
	}
	err := s.Engagement.RemoveInteraction(c.Request.Context(), memberId, c.Param("id"), model.InteractionAction(c.Param("action")))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) updateProgress(c *gin.Context) {
	memberId, ok := requireMember(c)
	if !ok {
		return
	}
	var body struct {
		Progress            int   `json:"progress"`
		AdditionalTimeSpent int64 `json:"additional_time_spent"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "msg": "malformed request body"})
		return
	}

	progress, err := s.Engagement.UpdateReadingProgress(c.Request.Context(), memberId, c.Param("id"), body.Progress, body.AdditionalTimeSpent)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (s *Server) ratingAnalytics(c *gin.Context) {
	analytics, err := s.Engagement.GetStoryRatingAnalytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (s *Server) viewAnalytics(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	analytics, err := s.Engagement.GetStoryViewAnalytics(c.Request.Context(), c.Param("id"), days)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (s *Server) interactionAnalytics(c *gin.Context) {
	analytics, err := s.Engagement.GetStoryInteractionAnalytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (s *Server) memberEngagement(c *gin.Context) {
	stats, err := s.Engagement.GetMemberEngagementStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) topRatedStories(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	minRatings, _ := strconv.Atoi(c.DefaultQuery("min_ratings", "0"))
	entries, err := s.Engagement.GetTopRatedStories(c.Request.Context(), limit, minRatings)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": entries})
}

func (s *Server) trendingStories(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries, err := s.Engagement.GetTrendingStories(c.Request.Context(), days, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": entries})
}

func (s *Server) globalStats(c *gin.Context) {
	stats, err := s.Engagement.GetGlobalStats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) createStory(c *gin.Context) {
	var input engagement.StoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "msg": "malformed request body"})
		return
	}
	story, err := s.Engagement.CreateStory(c.Request.Context(), input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (s *Server) setStoryStatus(c *gin.Context) {
	var body struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument", "msg": "malformed request body"})
		return
	}
	changedBy := middlewares.MemberId(c)
	if changedBy == "" {
		changedBy = "admin"
	}
	story, err := s.Engagement.SetStoryActive(c.Request.Context(), c.Param("id"), body.Active, changedBy)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (s *Server) purgeMember(c *gin.Context) {
	if err := s.Engagement.PurgeMember(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
