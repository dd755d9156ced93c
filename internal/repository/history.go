package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sinout-engine/internal/models"

	"go.uber.org/zap"
)

// ErrAppendFailed 历史记录写入失败（由上层做有界退避重试）
var ErrAppendFailed = errors.New("history append failed")

// HistoryRepository 检测历史仓库（对应 detection_history 表，只追加）
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository 创建检测历史仓库
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append 追加一条历史记录（写入后不可变）
func (r *HistoryRepository) Append(ctx context.Context, rec *models.HistoryRecord) error {
	if rec.RecordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if rec.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	scoresJSON, err := json.Marshal(rec.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}

	query := `
		INSERT INTO detection_history (
			record_id,
			subject_id,
			owner_id,
			ts,
			scores,
			dominant_emotion,
			dominant_percent,
			fired_rule_id,
			fired_message,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.RecordID,
		rec.SubjectID,
		rec.OwnerID,
		rec.Timestamp,
		scoresJSON,
		rec.DominantEmotion,
		rec.DominantPercent,
		rec.FiredRuleID,
		rec.FiredMessage,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	return nil
}

// QueryRecent 按时间倒序查询某对象最近的历史记录
func (r *HistoryRepository) QueryRecent(ctx context.Context, subjectID string, limit int) ([]models.HistoryRecord, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	query := selectHistoryColumns + `
		WHERE subject_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent history: %w", err)
	}
	defer rows.Close()

	return scanHistoryRows(rows)
}

// QueryRange 按时间正序查询某对象一段时间内的历史记录（用于重放重建聚合状态）
func (r *HistoryRepository) QueryRange(ctx context.Context, subjectID string, from, to time.Time) ([]models.HistoryRecord, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := selectHistoryColumns + `
		WHERE subject_id = $1
		  AND ts >= $2
		  AND ts <= $3
		ORDER BY ts ASC
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query history range: %w", err)
	}
	defer rows.Close()

	return scanHistoryRows(rows)
}

const selectHistoryColumns = `
		SELECT
			record_id,
			subject_id,
			owner_id,
			ts,
			scores,
			dominant_emotion,
			dominant_percent,
			fired_rule_id,
			fired_message,
			created_at
		FROM detection_history
`

// scanHistoryRows 扫描历史记录行
func scanHistoryRows(rows *sql.Rows) ([]models.HistoryRecord, error) {
	var records []models.HistoryRecord
	for rows.Next() {
		var rec models.HistoryRecord
		var scoresJSON []byte
		var firedRuleID, firedMessage sql.NullString

		err := rows.Scan(
			&rec.RecordID,
			&rec.SubjectID,
			&rec.OwnerID,
			&rec.Timestamp,
			&scoresJSON,
			&rec.DominantEmotion,
			&rec.DominantPercent,
			&firedRuleID,
			&firedMessage,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		if err := json.Unmarshal(scoresJSON, &rec.Scores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scores: %w", err)
		}
		if firedRuleID.Valid {
			s := firedRuleID.String
			rec.FiredRuleID = &s
		}
		if firedMessage.Valid {
			s := firedMessage.String
			rec.FiredMessage = &s
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history records: %w", err)
	}

	return records, nil
}
