// Package content handles memory capsules and replies, the two user actions
// that feed reward events into the progression engine.
package content

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	prommetrics "github.com/roamly/progression-engine/internal/metrics"
	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/repository"
	"github.com/roamly/progression-engine/internal/service/progression"
	"github.com/roamly/progression-engine/pkg/logger"
)

// ContentRepository interface for content database operations.
type ContentRepository interface {
	CreateCapsule(capsule *models.MemoryCapsule) error
	GetCapsuleByID(id uint) (*models.MemoryCapsule, error)
	ListCapsulesByUser(userID uint, limit int) ([]models.MemoryCapsule, error)
	CreateReply(reply *models.Reply) error
	ListRepliesByCapsule(capsuleID uint) ([]models.Reply, error)
}

// UserRepository interface for user database operations.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
}

// ProgressionRecorder interface for feeding actions into the engine.
type ProgressionRecorder interface {
	RecordAction(ctx context.Context, userID uint, sourceType, sourceID string, statDeltas map[string]uint64, pointsDelta uint64) (*progression.ActionResult, error)
}

// Service handles content creation and the reward events it triggers.
type Service struct {
	contentRepo  ContentRepository
	userRepo     UserRepository
	engine       ProgressionRecorder
	memoryPoints uint64
	replyPoints  uint64
	log          *logger.Logger
}

// NewService creates a new content service.
func NewService(
	contentRepo *repository.ContentRepository,
	userRepo *repository.UserRepository,
	engine *progression.Service,
	memoryPoints, replyPoints uint64,
	log *logger.Logger,
) *Service {
	return &Service{
		contentRepo:  contentRepo,
		userRepo:     userRepo,
		engine:       engine,
		memoryPoints: memoryPoints,
		replyPoints:  replyPoints,
		log:          log,
	}
}

// NewServiceWithInterfaces creates a new content service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	contentRepo ContentRepository,
	userRepo UserRepository,
	engine ProgressionRecorder,
	memoryPoints, replyPoints uint64,
	log *logger.Logger,
) *Service {
	return &Service{
		contentRepo:  contentRepo,
		userRepo:     userRepo,
		engine:       engine,
		memoryPoints: memoryPoints,
		replyPoints:  replyPoints,
		log:          log,
	}
}

// CreateCapsuleInput is the payload for creating a memory capsule.
type CreateCapsuleInput struct {
	UserID   uint   `json:"user_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Location string `json:"location"`
}

// CreateCapsuleResult carries the stored capsule and the rewards it earned.
type CreateCapsuleResult struct {
	Capsule *models.MemoryCapsule     `json:"capsule"`
	Rewards *progression.ActionResult `json:"rewards,omitempty"`
}

// CreateCapsule stores a memory capsule and records one reward event for it.
// The content write is authoritative: an engine failure after it is logged
// and the capsule is still returned, since the ledger key (memory_created,
// capsule id) lets a later retry or the sweep reconcile the reward.
func (s *Service) CreateCapsule(ctx context.Context, input CreateCapsuleInput) (*CreateCapsuleResult, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("capsule title is required")
	}
	if _, err := s.userRepo.GetByID(input.UserID); err != nil {
		return nil, fmt.Errorf("unknown user %d: %w", input.UserID, err)
	}

	capsule := &models.MemoryCapsule{
		UserID:   input.UserID,
		Title:    strings.TrimSpace(input.Title),
		Body:     input.Body,
		Location: input.Location,
	}
	if err := s.contentRepo.CreateCapsule(capsule); err != nil {
		prommetrics.RecordContentAction("capsule", "error")
		return nil, err
	}
	prommetrics.RecordContentAction("capsule", "created")

	result := &CreateCapsuleResult{Capsule: capsule}
	rewards, err := s.engine.RecordAction(
		ctx,
		input.UserID,
		models.SourceMemoryCreated,
		strconv.FormatUint(uint64(capsule.ID), 10),
		map[string]uint64{models.StatMemoryCount: 1},
		s.memoryPoints,
	)
	if err != nil {
		s.log.Warn().Err(err).
			Uint("user_id", input.UserID).
			Uint("capsule_id", capsule.ID).
			Msg("Failed to record capsule reward")
	} else {
		result.Rewards = rewards
	}
	return result, nil
}

// CreateReplyInput is the payload for replying to a capsule.
type CreateReplyInput struct {
	UserID    uint   `json:"user_id"`
	CapsuleID uint   `json:"capsule_id"`
	Body      string `json:"body"`
}

// CreateReplyResult carries the stored reply and the rewards it earned.
type CreateReplyResult struct {
	Reply   *models.Reply             `json:"reply"`
	Rewards *progression.ActionResult `json:"rewards,omitempty"`
}

// CreateReply stores a reply and records one reward event for it. Failure
// handling matches CreateCapsule.
func (s *Service) CreateReply(ctx context.Context, input CreateReplyInput) (*CreateReplyResult, error) {
	if strings.TrimSpace(input.Body) == "" {
		return nil, fmt.Errorf("reply body is required")
	}
	if _, err := s.userRepo.GetByID(input.UserID); err != nil {
		return nil, fmt.Errorf("unknown user %d: %w", input.UserID, err)
	}
	if _, err := s.contentRepo.GetCapsuleByID(input.CapsuleID); err != nil {
		return nil, fmt.Errorf("unknown capsule %d: %w", input.CapsuleID, err)
	}

	reply := &models.Reply{
		UserID:    input.UserID,
		CapsuleID: input.CapsuleID,
		Body:      input.Body,
	}
	if err := s.contentRepo.CreateReply(reply); err != nil {
		prommetrics.RecordContentAction("reply", "error")
		return nil, err
	}
	prommetrics.RecordContentAction("reply", "created")

	result := &CreateReplyResult{Reply: reply}
	rewards, err := s.engine.RecordAction(
		ctx,
		input.UserID,
		models.SourceReplyCreated,
		strconv.FormatUint(uint64(reply.ID), 10),
		map[string]uint64{models.StatReplyCount: 1},
		s.replyPoints,
	)
	if err != nil {
		s.log.Warn().Err(err).
			Uint("user_id", input.UserID).
			Uint("reply_id", reply.ID).
			Msg("Failed to record reply reward")
	} else {
		result.Rewards = rewards
	}
	return result, nil
}

// GetUserCapsules returns a user's capsules, newest first.
func (s *Service) GetUserCapsules(userID uint, limit int) ([]models.MemoryCapsule, error) {
	return s.contentRepo.ListCapsulesByUser(userID, limit)
}

// GetCapsuleReplies returns the replies on a capsule, oldest first.
func (s *Service) GetCapsuleReplies(capsuleID uint) ([]models.Reply, error) {
	return s.contentRepo.ListRepliesByCapsule(capsuleID)
}
