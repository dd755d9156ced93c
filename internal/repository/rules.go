package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sinout-engine/internal/models"

	"go.uber.org/zap"
)

// RulesRepository 规则仓库（只读：规则的增删改由外部管理端负责）
type RulesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRulesRepository 创建规则仓库
func NewRulesRepository(db *sql.DB, logger *zap.Logger) *RulesRepository {
	return &RulesRepository{
		db:     db,
		logger: logger,
	}
}

// FetchActiveRules 获取某个看护人的全部启用规则
func (r *RulesRepository) FetchActiveRules(ctx context.Context, ownerID string) ([]models.Rule, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id is required")
	}

	query := `
		SELECT
			rule_id,
			owner_id,
			emotion,
			intensity_level,
			min_percent,
			message,
			priority,
			active,
			created_at,
			updated_at
		FROM rules
		WHERE owner_id = $1
		  AND active = true
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		var rule models.Rule
		var intensity string
		var updatedAt sql.NullTime

		err := rows.Scan(
			&rule.RuleID,
			&rule.OwnerID,
			&rule.Emotion,
			&intensity,
			&rule.MinPercent,
			&rule.Message,
			&rule.Priority,
			&rule.Active,
			&rule.CreatedAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rule.IntensityLevel = models.ParseIntensityLevel(intensity)
		if updatedAt.Valid {
			t := updatedAt.Time
			rule.UpdatedAt = &t
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return rules, nil
}
