package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/college-attendance-api/internal/models"
)

// BranchRepository persists branches.
type BranchRepository struct {
	db *sqlx.DB
}

// NewBranchRepository constructs a BranchRepository.
func NewBranchRepository(db *sqlx.DB) *BranchRepository {
	return &BranchRepository{db: db}
}

// List returns all branches ordered by name.
func (r *BranchRepository) List(ctx context.Context) ([]models.Branch, error) {
	const query = `SELECT id, name, created_at FROM branches ORDER BY name ASC`
	var branches []models.Branch
	if err := r.db.SelectContext(ctx, &branches, query); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return branches, nil
}

// FindByID fetches a branch.
func (r *BranchRepository) FindByID(ctx context.Context, id string) (*models.Branch, error) {
	const query = `SELECT id, name, created_at FROM branches WHERE id = $1`
	var branch models.Branch
	if err := r.db.GetContext(ctx, &branch, query, id); err != nil {
		if err == sql.ErrNoRows || IsInvalidText(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find branch by id: %w", err)
	}
	return &branch, nil
}

// ExistsByName checks for a branch with the same name, case insensitive.
func (r *BranchRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM branches WHERE LOWER(name) = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, strings.ToLower(name)); err != nil {
		return false, fmt.Errorf("check branch name: %w", err)
	}
	return exists, nil
}

// Create inserts a branch.
func (r *BranchRepository) Create(ctx context.Context, branch *models.Branch) error {
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO branches (id, name, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, branch.ID, branch.Name, branch.CreatedAt); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}
