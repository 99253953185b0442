package repository

import (
	"encoding/json"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/roamly/progression-engine/internal/models"
)

// setupBadgeTestDB creates an in-memory SQLite database for testing.
func setupBadgeTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(
		&models.User{},
		&models.BadgeDefinition{},
		&models.UserBadge{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

// createTestBadge creates a test badge definition in the database.
func createTestBadge(t *testing.T, repo *BadgeRepository, name string) *models.BadgeDefinition {
	t.Helper()

	badge := &models.BadgeDefinition{
		Name:         name,
		Description:  "Test badge",
		Icon:         "🎯",
		Requirements: json.RawMessage(`{"memory_count":1}`),
		PointsReward: 5,
	}
	if err := repo.CreateDefinition(badge); err != nil {
		t.Fatalf("Failed to create test badge: %v", err)
	}
	return badge
}

func TestBadgeRepository_UpsertDefinition(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	badge := &models.BadgeDefinition{
		Name:         "first_steps",
		Requirements: json.RawMessage(`{"memory_count":1}`),
		PointsReward: 5,
	}
	if err := repo.UpsertDefinition(badge); err != nil {
		t.Fatalf("First UpsertDefinition() failed: %v", err)
	}
	originalID := badge.ID

	updated := &models.BadgeDefinition{
		Name:         "first_steps",
		Description:  "Created your first memory capsule",
		Requirements: json.RawMessage(`{"memory_count":1}`),
		PointsReward: 10,
	}
	if err := repo.UpsertDefinition(updated); err != nil {
		t.Fatalf("Second UpsertDefinition() failed: %v", err)
	}
	if updated.ID != originalID {
		t.Errorf("Expected upsert to keep ID %d, got %d", originalID, updated.ID)
	}

	defs, err := repo.ListDefinitions()
	if err != nil {
		t.Fatalf("ListDefinitions() failed: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("Expected 1 definition after upsert, got %d", len(defs))
	}
	if defs[0].PointsReward != 10 {
		t.Errorf("Expected updated points reward 10, got %d", defs[0].PointsReward)
	}
}

func TestBadgeRepository_GetDefinitionByName(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	createTestBadge(t, repo, "storyteller")

	badge, err := repo.GetDefinitionByName("storyteller")
	if err != nil {
		t.Fatalf("GetDefinitionByName() failed: %v", err)
	}
	if badge.Icon != "🎯" {
		t.Errorf("Expected icon 🎯, got %q", badge.Icon)
	}

	if _, err := repo.GetDefinitionByName("nonexistent"); err == nil {
		t.Error("Expected error for unknown badge name")
	}
}

func TestBadgeRepository_CreateUserBadge_WriteOnce(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	badge := createTestBadge(t, repo, "first_steps")

	grant, err := repo.CreateUserBadge(1, badge.ID)
	if err != nil {
		t.Fatalf("CreateUserBadge() failed: %v", err)
	}
	if grant.EarnedAt.IsZero() {
		t.Error("Expected EarnedAt to be set")
	}

	// Second grant of the same badge loses against the unique index.
	_, err = repo.CreateUserBadge(1, badge.ID)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate on second grant, got %v", err)
	}

	earned, err := repo.HasEarned(1, badge.ID)
	if err != nil {
		t.Fatalf("HasEarned() failed: %v", err)
	}
	if !earned {
		t.Error("Expected HasEarned to report true")
	}

	count, err := repo.GetUserBadgeCount(1)
	if err != nil {
		t.Fatalf("GetUserBadgeCount() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 grant row, got %d", count)
	}
}

func TestBadgeRepository_GetEarnedBadgeIDs(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	first := createTestBadge(t, repo, "first_steps")
	second := createTestBadge(t, repo, "storyteller")
	createTestBadge(t, repo, "rising_star")

	if _, err := repo.CreateUserBadge(1, first.ID); err != nil {
		t.Fatalf("CreateUserBadge() failed: %v", err)
	}
	if _, err := repo.CreateUserBadge(1, second.ID); err != nil {
		t.Fatalf("CreateUserBadge() failed: %v", err)
	}

	earned, err := repo.GetEarnedBadgeIDs(1)
	if err != nil {
		t.Fatalf("GetEarnedBadgeIDs() failed: %v", err)
	}
	if len(earned) != 2 {
		t.Fatalf("Expected 2 earned badges, got %d", len(earned))
	}
	if _, ok := earned[first.ID]; !ok {
		t.Error("Expected first badge in earned set")
	}
	if earned[second.ID].IsZero() {
		t.Error("Expected earned timestamp to be set")
	}
}

func TestBadgeRepository_GetBadgeHoldersCount(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	badge := createTestBadge(t, repo, "first_steps")

	for userID := uint(1); userID <= 3; userID++ {
		if _, err := repo.CreateUserBadge(userID, badge.ID); err != nil {
			t.Fatalf("CreateUserBadge() failed: %v", err)
		}
	}

	count, err := repo.GetBadgeHoldersCount(badge.ID)
	if err != nil {
		t.Fatalf("GetBadgeHoldersCount() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 holders, got %d", count)
	}
}

func TestBadgeRepository_GetUserBadges_PreloadsBadge(t *testing.T) {
	db := setupBadgeTestDB(t)
	repo := NewBadgeRepository(db)

	badge := createTestBadge(t, repo, "first_steps")
	if _, err := repo.CreateUserBadge(1, badge.ID); err != nil {
		t.Fatalf("CreateUserBadge() failed: %v", err)
	}

	grants, err := repo.GetUserBadges(1)
	if err != nil {
		t.Fatalf("GetUserBadges() failed: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("Expected 1 grant, got %d", len(grants))
	}
	if grants[0].Badge.Name != "first_steps" {
		t.Errorf("Expected badge preloaded, got %q", grants[0].Badge.Name)
	}
}
