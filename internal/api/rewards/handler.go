// Package rewards provides the REST API for the progression engine. It
// exposes endpoints for snapshots, leaderboards, tasks, badges, reward
// history and the content actions that trigger rewards.
package rewards

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/repository"
	"github.com/roamly/progression-engine/internal/service/content"
	"github.com/roamly/progression-engine/internal/service/progression"
	"github.com/roamly/progression-engine/internal/service/tasks"
	"github.com/roamly/progression-engine/pkg/logger"
)

// ProgressionService interface for engine read operations.
type ProgressionService interface {
	GetSnapshot(ctx context.Context, userID uint) (*models.UserProgression, error)
	GetLeaderboard(ctx context.Context, limit int, sortKey string) ([]progression.LeaderboardEntry, error)
	GetUserTasks(ctx context.Context, userID uint) ([]tasks.UserTaskStatus, error)
	GetUserBadges(ctx context.Context, userID uint) ([]progression.UserBadgeStatus, error)
	GetBadgeCatalog(ctx context.Context) ([]models.BadgeDefinition, error)
	GetRewardHistory(ctx context.Context, userID uint, limit int) ([]models.RewardEvent, error)
}

// ContentService interface for content operations.
type ContentService interface {
	CreateCapsule(ctx context.Context, input content.CreateCapsuleInput) (*content.CreateCapsuleResult, error)
	CreateReply(ctx context.Context, input content.CreateReplyInput) (*content.CreateReplyResult, error)
	GetUserCapsules(userID uint, limit int) ([]models.MemoryCapsule, error)
	GetCapsuleReplies(capsuleID uint) ([]models.Reply, error)
}

// Handler handles progression API requests.
type Handler struct {
	progressionService ProgressionService
	contentService     ContentService
	log                *logger.Logger
}

// NewHandler creates a new rewards handler.
func NewHandler(progressionService *progression.Service, contentService *content.Service, log *logger.Logger) *Handler {
	return &Handler{
		progressionService: progressionService,
		contentService:     contentService,
		log:                log,
	}
}

// NewHandlerWithInterfaces creates a new rewards handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(progressionService ProgressionService, contentService ContentService, log *logger.Logger) *Handler {
	return &Handler{
		progressionService: progressionService,
		contentService:     contentService,
		log:                log,
	}
}

// RegisterRoutes mounts the API under /api/v1.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/leaderboard", h.GetLeaderboard)
		v1.GET("/users/:id/progression", h.GetUserProgression)
		v1.GET("/users/:id/tasks", h.GetUserTasks)
		v1.GET("/users/:id/badges", h.GetUserBadges)
		v1.GET("/users/:id/history", h.GetRewardHistory)
		v1.GET("/users/:id/capsules", h.GetUserCapsules)
		v1.GET("/badges", h.GetBadgeCatalog)
		v1.POST("/capsules", h.CreateCapsule)
		v1.GET("/capsules/:id/replies", h.GetCapsuleReplies)
		v1.POST("/capsules/:id/replies", h.CreateReply)
	}
}

// GetLeaderboard returns the top users by points or level.
// GET /api/v1/leaderboard?sort=points&limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	sortKey := c.DefaultQuery("sort", repository.SortByPoints)
	if err := h.validateSortKey(sortKey); err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.progressionService.GetLeaderboard(c.Request.Context(), limit, sortKey)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	h.log.Info().
		Str("sort", sortKey).
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"sort":          sortKey,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserProgression returns a user's progression snapshot.
// GET /api/v1/users/:id/progression.
func (h *Handler) GetUserProgression(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.progressionService.GetSnapshot(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get progression snapshot")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve progression")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"progression":  snapshot,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserTasks returns the tasks visible to a user with completion status.
// GET /api/v1/users/:id/tasks.
func (h *Handler) GetUserTasks(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	statuses, err := h.progressionService.GetUserTasks(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user tasks")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve tasks")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"tasks":        statuses,
		"total_tasks":  len(statuses),
		"generated_at": time.Now().UTC(),
	})
}

// GetUserBadges returns the badge catalog with the user's earned state.
// GET /api/v1/users/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	statuses, err := h.progressionService.GetUserBadges(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user badges")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user badges")
		return
	}

	earned := 0
	for _, status := range statuses {
		if status.EarnedAt != nil {
			earned++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"badges":       statuses,
		"total_earned": earned,
		"generated_at": time.Now().UTC(),
	})
}

// GetBadgeCatalog returns all defined badges.
// GET /api/v1/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	catalog, err := h.progressionService.GetBadgeCatalog(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get badge catalog")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badge catalog")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       catalog,
		"total_badges": len(catalog),
		"generated_at": time.Now().UTC(),
	})
}

// GetRewardHistory returns a user's reward ledger, newest first.
// GET /api/v1/users/:id/history?limit=50.
func (h *Handler) GetRewardHistory(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseLimit(c, 50)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.progressionService.GetRewardHistory(c.Request.Context(), userID, limit)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get reward history")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve reward history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"events":       events,
		"total_events": len(events),
		"generated_at": time.Now().UTC(),
	})
}

// GetUserCapsules returns a user's memory capsules.
// GET /api/v1/users/:id/capsules?limit=20.
func (h *Handler) GetUserCapsules(c *gin.Context) {
	userID, err := h.parseUserID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseLimit(c, 20)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	capsules, err := h.contentService.GetUserCapsules(userID, limit)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to get user capsules")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve capsules")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"capsules":     capsules,
		"generated_at": time.Now().UTC(),
	})
}

// createCapsuleRequest is the POST body for capsule creation.
type createCapsuleRequest struct {
	UserID   uint   `json:"user_id" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Body     string `json:"body"`
	Location string `json:"location"`
}

// CreateCapsule stores a memory capsule and returns it with earned rewards.
// POST /api/v1/capsules.
func (h *Handler) CreateCapsule(c *gin.Context) {
	var req createCapsuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := h.contentService.CreateCapsule(c.Request.Context(), content.CreateCapsuleInput{
		UserID:   req.UserID,
		Title:    req.Title,
		Body:     req.Body,
		Location: req.Location,
	})
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", req.UserID).Msg("Failed to create capsule")
		h.errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.log.Info().
		Uint("user_id", req.UserID).
		Uint("capsule_id", result.Capsule.ID).
		Msg("Created memory capsule")

	c.JSON(http.StatusCreated, result)
}

// createReplyRequest is the POST body for reply creation.
type createReplyRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Body   string `json:"body" binding:"required"`
}

// CreateReply stores a reply on a capsule and returns it with earned rewards.
// POST /api/v1/capsules/:id/replies.
func (h *Handler) CreateReply(c *gin.Context) {
	capsuleID, err := h.parseCapsuleID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var req createReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := h.contentService.CreateReply(c.Request.Context(), content.CreateReplyInput{
		UserID:    req.UserID,
		CapsuleID: capsuleID,
		Body:      req.Body,
	})
	if err != nil {
		h.log.Error().Err(err).
			Uint("user_id", req.UserID).
			Uint("capsule_id", capsuleID).
			Msg("Failed to create reply")
		h.errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.log.Info().
		Uint("user_id", req.UserID).
		Uint("capsule_id", capsuleID).
		Uint("reply_id", result.Reply.ID).
		Msg("Created reply")

	c.JSON(http.StatusCreated, result)
}

// GetCapsuleReplies returns the replies on a capsule, oldest first.
// GET /api/v1/capsules/:id/replies.
func (h *Handler) GetCapsuleReplies(c *gin.Context) {
	capsuleID, err := h.parseCapsuleID(c)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	replies, err := h.contentService.GetCapsuleReplies(capsuleID)
	if err != nil {
		h.log.Error().Err(err).Uint("capsule_id", capsuleID).Msg("Failed to get capsule replies")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve replies")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"capsule_id":   capsuleID,
		"replies":      replies,
		"generated_at": time.Now().UTC(),
	})
}

// Helper functions

// parseUserID extracts and validates the user ID from the URL parameter.
func (h *Handler) parseUserID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %s", idStr)
	}
	return uint(id), nil
}

// parseCapsuleID extracts and validates the capsule ID from the URL parameter.
func (h *Handler) parseCapsuleID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid capsule ID: %s", idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	if limit > 1000 {
		return 0, fmt.Errorf("limit cannot exceed 1000")
	}

	return limit, nil
}

// validateSortKey validates the leaderboard sort parameter.
func (h *Handler) validateSortKey(sortKey string) error {
	if sortKey != repository.SortByPoints && sortKey != repository.SortByLevel {
		return fmt.Errorf("invalid sort: %s (valid: points, level)", sortKey)
	}
	return nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
