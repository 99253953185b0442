package badges

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/repository"
	"github.com/roamly/progression-engine/pkg/logger"
)

// Mock repositories for testing

type mockBadgeRepository struct {
	defs       map[uint]*models.BadgeDefinition
	userBadges map[uint]map[uint]bool // userID -> badgeID -> held
	nextDefID  uint
}

func newMockBadgeRepository() *mockBadgeRepository {
	return &mockBadgeRepository{
		defs:       make(map[uint]*models.BadgeDefinition),
		userBadges: make(map[uint]map[uint]bool),
		nextDefID:  1,
	}
}

func (m *mockBadgeRepository) addDefinition(name string, reqs string, points uint64) *models.BadgeDefinition {
	def := &models.BadgeDefinition{
		ID:           m.nextDefID,
		Name:         name,
		Requirements: json.RawMessage(reqs),
		PointsReward: points,
	}
	m.defs[def.ID] = def
	m.nextDefID++
	return def
}

func (m *mockBadgeRepository) ListDefinitions() ([]models.BadgeDefinition, error) {
	defs := make([]models.BadgeDefinition, 0, len(m.defs))
	for id := uint(1); id < m.nextDefID; id++ {
		if def, ok := m.defs[id]; ok {
			defs = append(defs, *def)
		}
	}
	return defs, nil
}

func (m *mockBadgeRepository) GetDefinitionByID(id uint) (*models.BadgeDefinition, error) {
	if def, ok := m.defs[id]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("badge %d not found", id)
}

func (m *mockBadgeRepository) HasEarned(userID, badgeID uint) (bool, error) {
	return m.userBadges[userID][badgeID], nil
}

func (m *mockBadgeRepository) CreateUserBadge(userID, badgeID uint) (*models.UserBadge, error) {
	if m.userBadges[userID][badgeID] {
		return nil, repository.ErrDuplicate
	}
	if m.userBadges[userID] == nil {
		m.userBadges[userID] = make(map[uint]bool)
	}
	m.userBadges[userID][badgeID] = true
	return &models.UserBadge{UserID: userID, BadgeID: badgeID, EarnedAt: time.Now()}, nil
}

func (m *mockBadgeRepository) GetUserBadges(userID uint) ([]models.UserBadge, error) {
	var result []models.UserBadge
	for badgeID := range m.userBadges[userID] {
		result = append(result, models.UserBadge{UserID: userID, BadgeID: badgeID})
	}
	return result, nil
}

func (m *mockBadgeRepository) GetBadgeHoldersCount(badgeID uint) (int64, error) {
	count := int64(0)
	for _, held := range m.userBadges {
		if held[badgeID] {
			count++
		}
	}
	return count, nil
}

type appliedDelta struct {
	sourceType string
	sourceID   string
	points     uint64
}

type mockStatsStore struct {
	snapshots map[uint]*models.UserProgression
	applies   []appliedDelta
}

func newMockStatsStore() *mockStatsStore {
	return &mockStatsStore{snapshots: make(map[uint]*models.UserProgression)}
}

func (m *mockStatsStore) setSnapshot(userID uint, snapshot *models.UserProgression) {
	snapshot.UserID = userID
	m.snapshots[userID] = snapshot
}

func (m *mockStatsStore) GetOrInit(userID uint) (*models.UserProgression, error) {
	if s, ok := m.snapshots[userID]; ok {
		return s, nil
	}
	s := &models.UserProgression{UserID: userID, Level: 1}
	m.snapshots[userID] = s
	return s, nil
}

func (m *mockStatsStore) ApplyDelta(userID uint, sourceType, sourceID string, statDeltas map[string]uint64, pointsDelta uint64) (*models.UserProgression, bool, error) {
	m.applies = append(m.applies, appliedDelta{sourceType, sourceID, pointsDelta})
	s, _ := m.GetOrInit(userID)
	s.Points += pointsDelta
	return s, true, nil
}

func setupBadgeService() (*Service, *mockBadgeRepository, *mockStatsStore) {
	badgeRepo := newMockBadgeRepository()
	stats := newMockStatsStore()
	log := logger.New("debug", "text", "stdout")
	return NewServiceWithInterfaces(badgeRepo, stats, log), badgeRepo, stats
}

func TestEvaluate_GrantsMatchingBadges(t *testing.T) {
	service, badgeRepo, stats := setupBadgeService()

	badgeRepo.addDefinition("first_steps", `{"memory_count":1}`, 5)
	badgeRepo.addDefinition("storyteller", `{"memory_count":10}`, 25)
	stats.setSnapshot(1, &models.UserProgression{MemoryCount: 3, Level: 1})

	earned, err := service.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}

	if len(earned) != 1 {
		t.Fatalf("Expected 1 badge granted, got %d", len(earned))
	}
	if earned[0].Badge.Name != "first_steps" {
		t.Errorf("Expected first_steps granted, got %q", earned[0].Badge.Name)
	}

	// The badge's point reward went through the ledger, keyed by badge ID.
	if len(stats.applies) != 1 {
		t.Fatalf("Expected 1 ledger apply, got %d", len(stats.applies))
	}
	if stats.applies[0].sourceType != models.SourceBadgeAwarded {
		t.Errorf("Expected badge_awarded source, got %q", stats.applies[0].sourceType)
	}
	if stats.applies[0].points != 5 {
		t.Errorf("Expected 5 points applied, got %d", stats.applies[0].points)
	}
}

func TestEvaluate_SkipsAlreadyEarned(t *testing.T) {
	service, badgeRepo, stats := setupBadgeService()

	def := badgeRepo.addDefinition("first_steps", `{"memory_count":1}`, 5)
	stats.setSnapshot(1, &models.UserProgression{MemoryCount: 3, Level: 1})
	badgeRepo.userBadges[1] = map[uint]bool{def.ID: true}

	earned, err := service.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if len(earned) != 0 {
		t.Errorf("Expected no new grants for already-earned badge, got %d", len(earned))
	}
	if len(stats.applies) != 0 {
		t.Errorf("Expected no ledger applies, got %d", len(stats.applies))
	}
}

func TestEvaluate_MalformedDefinitionFailsClosed(t *testing.T) {
	service, badgeRepo, stats := setupBadgeService()

	badgeRepo.addDefinition("broken", `{"memory_count":"lots"}`, 5)
	badgeRepo.addDefinition("first_steps", `{"memory_count":1}`, 5)
	stats.setSnapshot(1, &models.UserProgression{MemoryCount: 3, Level: 1})

	earned, err := service.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}

	// The malformed definition is skipped; the rest of the scan proceeds.
	if len(earned) != 1 {
		t.Fatalf("Expected 1 badge granted, got %d", len(earned))
	}
	if earned[0].Badge.Name != "first_steps" {
		t.Errorf("Expected first_steps granted, got %q", earned[0].Badge.Name)
	}
}

func TestEvaluate_NoPointsApplyForZeroReward(t *testing.T) {
	service, badgeRepo, stats := setupBadgeService()

	badgeRepo.addDefinition("participation", `{"reply_count":1}`, 0)
	stats.setSnapshot(1, &models.UserProgression{ReplyCount: 2, Level: 1})

	earned, err := service.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if len(earned) != 1 {
		t.Fatalf("Expected 1 badge granted, got %d", len(earned))
	}
	if len(stats.applies) != 0 {
		t.Errorf("Expected no ledger apply for zero-point badge, got %d", len(stats.applies))
	}
}

func TestAward_GrantsOnceThenNoOps(t *testing.T) {
	service, badgeRepo, _ := setupBadgeService()

	def := badgeRepo.addDefinition("pathfinder", `{"memory_count":100}`, 10)

	// Direct award bypasses requirement evaluation.
	grant, err := service.Award(context.Background(), 1, def.ID)
	if err != nil {
		t.Fatalf("Award() failed: %v", err)
	}
	if grant == nil {
		t.Fatal("Expected grant on first award")
	}

	// Second award of the same badge is a silent no-op.
	again, err := service.Award(context.Background(), 1, def.ID)
	if err != nil {
		t.Fatalf("Second Award() failed: %v", err)
	}
	if again != nil {
		t.Error("Expected nil grant on duplicate award")
	}
}

func TestAward_UnknownBadge(t *testing.T) {
	service, _, _ := setupBadgeService()

	if _, err := service.Award(context.Background(), 1, 404); err == nil {
		t.Error("Expected error for unknown badge ID")
	}
}
