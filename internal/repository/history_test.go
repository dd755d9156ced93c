package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"sinout-engine/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockHistoryDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *HistoryRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewHistoryRepository(db, logger)

	return db, mock, repo
}

func testHistoryRecord() *models.HistoryRecord {
	ruleID := "rule-1"
	message := "Estou muito feliz!"
	return &models.HistoryRecord{
		RecordID:        uuid.New().String(),
		SubjectID:       "subject-1",
		OwnerID:         "owner-1",
		Timestamp:       time.Now(),
		Scores:          map[string]float64{"happy": 80, "sad": 5, "angry": 3, "fear": 2, "disgust": 1, "surprise": 4, "neutral": 10},
		DominantEmotion: "happy",
		DominantPercent: 80,
		FiredRuleID:     &ruleID,
		FiredMessage:    &message,
	}
}

func TestAppend_Success(t *testing.T) {
	db, mock, repo := setupMockHistoryDB(t)
	defer db.Close()

	rec := testHistoryRecord()

	mock.ExpectExec(`INSERT INTO detection_history`).
		WithArgs(
			rec.RecordID, rec.SubjectID, rec.OwnerID, rec.Timestamp,
			sqlmock.AnyArg(), rec.DominantEmotion, rec.DominantPercent,
			rec.FiredRuleID, rec.FiredMessage,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), rec)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_DatabaseError(t *testing.T) {
	db, mock, repo := setupMockHistoryDB(t)
	defer db.Close()

	rec := testHistoryRecord()

	mock.ExpectExec(`INSERT INTO detection_history`).
		WillReturnError(errors.New("connection refused"))

	err := repo.Append(context.Background(), rec)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAppendFailed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_MissingRecordID(t *testing.T) {
	db, _, repo := setupMockHistoryDB(t)
	defer db.Close()

	rec := testHistoryRecord()
	rec.RecordID = ""

	err := repo.Append(context.Background(), rec)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "record_id is required")
}

func historyRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"record_id", "subject_id", "owner_id", "ts", "scores",
		"dominant_emotion", "dominant_percent", "fired_rule_id", "fired_message", "created_at",
	})
}

func TestQueryRecent_Success(t *testing.T) {
	db, mock, repo := setupMockHistoryDB(t)
	defer db.Close()

	now := time.Now()
	rows := historyRows().
		AddRow("rec-2", "subject-1", "owner-1", now, `{"happy": 80}`, "happy", 80.0, "rule-1", "Estou muito feliz!", now).
		AddRow("rec-1", "subject-1", "owner-1", now.Add(-time.Minute), `{"sad": 65}`, "sad", 65.0, nil, nil, now)

	mock.ExpectQuery(`SELECT`).
		WithArgs("subject-1", 50).
		WillReturnRows(rows)

	records, err := repo.QueryRecent(context.Background(), "subject-1", 0)

	require.NoError(t, err)
	require.Len(t, records, 2)

	// 最近的在前
	assert.Equal(t, "rec-2", records[0].RecordID)
	assert.Equal(t, "happy", records[0].DominantEmotion)
	assert.Equal(t, 80.0, records[0].Scores["happy"])
	require.NotNil(t, records[0].FiredRuleID)
	assert.Equal(t, "rule-1", *records[0].FiredRuleID)
	require.NotNil(t, records[0].FiredMessage)

	// 未触发规则的记录
	assert.Nil(t, records[1].FiredRuleID)
	assert.Nil(t, records[1].FiredMessage)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRange_Success(t *testing.T) {
	db, mock, repo := setupMockHistoryDB(t)
	defer db.Close()

	now := time.Now()
	from := now.AddDate(0, 0, -7)

	rows := historyRows().
		AddRow("rec-1", "subject-1", "owner-1", now.Add(-time.Hour), `{"angry": 75}`, "angry", 75.0, nil, nil, now)

	mock.ExpectQuery(`SELECT`).
		WithArgs("subject-1", from, now).
		WillReturnRows(rows)

	records, err := repo.QueryRange(context.Background(), "subject-1", from, now)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "angry", records[0].DominantEmotion)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRecent_MissingSubjectID(t *testing.T) {
	db, _, repo := setupMockHistoryDB(t)
	defer db.Close()

	records, err := repo.QueryRecent(context.Background(), "", 10)

	assert.Error(t, err)
	assert.Nil(t, records)
	assert.Contains(t, err.Error(), "subject_id is required")
}
