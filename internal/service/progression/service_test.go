package progression

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/roamly/progression-engine/internal/models"
	"github.com/roamly/progression-engine/internal/service/tasks"
	"github.com/roamly/progression-engine/pkg/logger"
)

// Mock dependencies for testing

type mockStatsStore struct {
	snapshots  map[uint]*models.UserProgression
	seen       map[string]bool // "userID/sourceType/sourceID"
	applyCalls int
}

func newMockStatsStore() *mockStatsStore {
	return &mockStatsStore{
		snapshots: make(map[uint]*models.UserProgression),
		seen:      make(map[string]bool),
	}
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
	m.applyCalls++
	key := fmt.Sprintf("%d/%s/%s", userID, sourceType, sourceID)
	s, _ := m.GetOrInit(userID)
	if m.seen[key] {
		return s, false, nil
	}
	m.seen[key] = true
	s.Points += pointsDelta
	s.Level = uint32(s.Points/100) + 1
	if statDeltas[models.StatMemoryCount] > 0 {
		s.MemoryCount += statDeltas[models.StatMemoryCount]
	}
	return s, true, nil
}

func (m *mockStatsStore) ListTop(limit int, sortKey string) ([]models.UserProgression, error) {
	var result []models.UserProgression
	for _, s := range m.snapshots {
		result = append(result, *s)
	}
	return result, nil
}

func (m *mockStatsStore) GetEventsByUser(userID uint, limit int) ([]models.RewardEvent, error) {
	return nil, nil
}

type mockTaskEngine struct {
	result      *tasks.Result
	evaluations int
	triggerKeys map[string]bool
}

func (m *mockTaskEngine) Evaluate(ctx context.Context, userID uint, triggerKeys map[string]bool) (*tasks.Result, error) {
	m.evaluations++
	m.triggerKeys = triggerKeys
	if m.result == nil {
		return &tasks.Result{}, nil
	}
	return m.result, nil
}

func (m *mockTaskEngine) GetUserTasks(ctx context.Context, userID uint) ([]tasks.UserTaskStatus, error) {
	return nil, nil
}

type mockBadgeEngine struct {
	grants      []models.UserBadge
	catalog     []models.BadgeDefinition
	evaluations int
}

func (m *mockBadgeEngine) Evaluate(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	m.evaluations++
	return m.grants, nil
}

func (m *mockBadgeEngine) GetBadgeCatalog(ctx context.Context) ([]models.BadgeDefinition, error) {
	return m.catalog, nil
}

type mockBadgeRepo struct {
	earned map[uint]time.Time
	counts map[uint]int64
}

func (m *mockBadgeRepo) GetEarnedBadgeIDs(userID uint) (map[uint]time.Time, error) {
	return m.earned, nil
}

func (m *mockBadgeRepo) GetUserBadgeCount(userID uint) (int64, error) {
	return m.counts[userID], nil
}

type mockUserRepo struct {
	users map[uint]*models.User
}

func (m *mockUserRepo) GetByID(id uint) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %d not found", id)
}

func setupProgressionService() (*Service, *mockStatsStore, *mockTaskEngine, *mockBadgeEngine) {
	stats := newMockStatsStore()
	taskEngine := &mockTaskEngine{}
	badgeEngine := &mockBadgeEngine{}
	badgeRepo := &mockBadgeRepo{earned: make(map[uint]time.Time), counts: make(map[uint]int64)}
	userRepo := &mockUserRepo{users: map[uint]*models.User{1: {ID: 1, Username: "alice", Role: models.RoleVisitor}}}
	log := logger.New("debug", "text", "stdout")

	service := NewServiceWithInterfaces(stats, taskEngine, badgeEngine, badgeRepo, userRepo, nil, nil, time.Minute, log)
	return service, stats, taskEngine, badgeEngine
}

func TestRecordAction_AppliesAndEvaluates(t *testing.T) {
	service, _, taskEngine, badgeEngine := setupProgressionService()

	result, err := service.RecordAction(
		context.Background(), 1,
		models.SourceMemoryCreated, "42",
		map[string]uint64{models.StatMemoryCount: 1}, 10,
	)
	if err != nil {
		t.Fatalf("RecordAction() failed: %v", err)
	}

	if !result.Applied {
		t.Error("Expected Applied=true for fresh event")
	}
	if result.Snapshot.Points != 10 {
		t.Errorf("Expected 10 points, got %d", result.Snapshot.Points)
	}
	if taskEngine.evaluations != 1 {
		t.Errorf("Expected 1 task evaluation, got %d", taskEngine.evaluations)
	}
	if badgeEngine.evaluations != 1 {
		t.Errorf("Expected 1 badge evaluation, got %d", badgeEngine.evaluations)
	}

	// Trigger keys include the delta keys plus the derived points/level.
	for _, key := range []string{models.StatMemoryCount, models.StatPoints, models.StatLevel} {
		if !taskEngine.triggerKeys[key] {
			t.Errorf("Expected trigger key %q to be set", key)
		}
	}
}

func TestRecordAction_DuplicateSkipsEvaluation(t *testing.T) {
	service, stats, taskEngine, badgeEngine := setupProgressionService()

	if _, err := service.RecordAction(context.Background(), 1, models.SourceMemoryCreated, "42", nil, 10); err != nil {
		t.Fatalf("First RecordAction() failed: %v", err)
	}

	result, err := service.RecordAction(context.Background(), 1, models.SourceMemoryCreated, "42", nil, 10)
	if err != nil {
		t.Fatalf("Replayed RecordAction() failed: %v", err)
	}

	if result.Applied {
		t.Error("Expected Applied=false for replayed event")
	}
	if result.Snapshot.Points != 10 {
		t.Errorf("Expected points unchanged at 10, got %d", result.Snapshot.Points)
	}
	if len(result.NewTasks) != 0 || len(result.NewBadges) != 0 {
		t.Error("Expected empty grant lists for replayed event")
	}

	// Engines ran once for the first apply and not for the replay.
	if taskEngine.evaluations != 1 {
		t.Errorf("Expected 1 task evaluation total, got %d", taskEngine.evaluations)
	}
	if badgeEngine.evaluations != 1 {
		t.Errorf("Expected 1 badge evaluation total, got %d", badgeEngine.evaluations)
	}
	if stats.applyCalls != 2 {
		t.Errorf("Expected 2 apply attempts, got %d", stats.applyCalls)
	}
}

func TestRecordAction_MergesTaskAndScanBadges(t *testing.T) {
	service, _, taskEngine, badgeEngine := setupProgressionService()

	// Task evaluation granted badge 5 as a direct reward, the scan found 5
	// again plus 6. The duplicate collapses.
	taskEngine.result = &tasks.Result{
		Completions: []models.TaskCompletion{{UserID: 1, TaskID: 3}},
		Badges:      []models.UserBadge{{UserID: 1, BadgeID: 5}},
	}
	badgeEngine.grants = []models.UserBadge{{UserID: 1, BadgeID: 5}, {UserID: 1, BadgeID: 6}}

	result, err := service.RecordAction(context.Background(), 1, models.SourceMemoryCreated, "1", nil, 10)
	if err != nil {
		t.Fatalf("RecordAction() failed: %v", err)
	}

	if len(result.NewTasks) != 1 {
		t.Errorf("Expected 1 new task, got %d", len(result.NewTasks))
	}
	if len(result.NewBadges) != 2 {
		t.Fatalf("Expected 2 distinct badges, got %d", len(result.NewBadges))
	}
	seen := map[uint]bool{result.NewBadges[0].BadgeID: true, result.NewBadges[1].BadgeID: true}
	if !seen[5] || !seen[6] {
		t.Errorf("Expected badges 5 and 6, got %v", seen)
	}
}

func TestGetSnapshot_InitializesNewUser(t *testing.T) {
	service, _, _, _ := setupProgressionService()

	snapshot, err := service.GetSnapshot(context.Background(), 99)
	if err != nil {
		t.Fatalf("GetSnapshot() failed: %v", err)
	}
	if snapshot.Points != 0 || snapshot.Level != 1 {
		t.Errorf("Expected zero snapshot at level 1, got points=%d level=%d", snapshot.Points, snapshot.Level)
	}
}

func TestGetUserBadges_MarksEarned(t *testing.T) {
	service, _, _, badgeEngine := setupProgressionService()

	badgeEngine.catalog = []models.BadgeDefinition{
		{ID: 1, Name: "first_steps"},
		{ID: 2, Name: "storyteller"},
	}
	earnedAt := time.Now().Add(-time.Hour)
	service.badgeRepo.(*mockBadgeRepo).earned[1] = earnedAt

	statuses, err := service.GetUserBadges(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetUserBadges() failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Expected full catalog of 2, got %d", len(statuses))
	}

	byName := make(map[string]*time.Time, len(statuses))
	for _, s := range statuses {
		byName[s.Badge.Name] = s.EarnedAt
	}
	if byName["first_steps"] == nil {
		t.Error("Expected first_steps to carry an earned timestamp")
	}
	if byName["storyteller"] != nil {
		t.Error("Expected storyteller to be unearned")
	}
}

func TestGetLeaderboard_EnrichesEntries(t *testing.T) {
	service, stats, _, _ := setupProgressionService()

	stats.snapshots[1] = &models.UserProgression{UserID: 1, Points: 120, Level: 2}
	service.badgeRepo.(*mockBadgeRepo).counts[1] = 3

	entries, err := service.GetLeaderboard(context.Background(), 10, "points")
	if err != nil {
		t.Fatalf("GetLeaderboard() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Rank != 1 {
		t.Errorf("Expected rank 1, got %d", entry.Rank)
	}
	if entry.Username != "alice" {
		t.Errorf("Expected username enriched, got %q", entry.Username)
	}
	if entry.BadgeCount != 3 {
		t.Errorf("Expected badge count 3, got %d", entry.BadgeCount)
	}
}
