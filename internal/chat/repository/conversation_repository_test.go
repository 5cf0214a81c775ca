package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB mirrors the production connection config, TranslateError
// included, so duplicate-key errors surface as gorm.ErrDuplicatedKey here
// exactly as they do against a real MySQL.
func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return gormDB, mock, cleanup
}

func conversationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "participant_low", "participant_high", "last_seq", "last_activity_at", "created_at", "updated_at",
	})
}

func TestConversationRepository_GetOrCreate_Existing(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `conversations` WHERE participant_low = ? AND participant_high = ?")).
		WithArgs("alice", "bob", 1).
		WillReturnRows(conversationRows().
			AddRow("conv-1", "alice", "bob", 4, time.Now(), time.Now(), time.Now()))

	repo := NewConversationRepository(db)
	conv, err := repo.GetOrCreate(context.Background(), "bob", "alice")

	require.NoError(t, err)
	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, "alice", conv.ParticipantLow)
	assert.Equal(t, "bob", conv.ParticipantHigh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_GetOrCreate_CreatesOnFirstContact(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `conversations` WHERE participant_low = ? AND participant_high = ?")).
		WithArgs("alice", "bob", 1).
		WillReturnRows(conversationRows())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `conversations`")).
		WithArgs(sqlmock.AnyArg(), "alice", "bob", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := NewConversationRepository(db)
	conv, err := repo.GetOrCreate(context.Background(), "bob", "alice")

	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "alice", conv.ParticipantLow)
	assert.Equal(t, "bob", conv.ParticipantHigh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_GetOrCreate_LosesCreationRace(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// first lookup misses, the insert trips the pair's unique index because a
	// concurrent request created the row in between, and the re-read returns
	// the winner
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `conversations` WHERE participant_low = ? AND participant_high = ?")).
		WithArgs("alice", "bob", 1).
		WillReturnRows(conversationRows())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `conversations`")).
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `conversations` WHERE participant_low = ? AND participant_high = ?")).
		WithArgs("alice", "bob", 1).
		WillReturnRows(conversationRows().
			AddRow("conv-winner", "alice", "bob", 0, time.Now(), time.Now(), time.Now()))

	repo := NewConversationRepository(db)
	conv, err := repo.GetOrCreate(context.Background(), "alice", "bob")

	require.NoError(t, err)
	assert.Equal(t, "conv-winner", conv.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_ByID(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `conversations` WHERE id = ?")).
		WithArgs("conv-1", 1).
		WillReturnRows(conversationRows().
			AddRow("conv-1", "alice", "bob", 9, time.Now(), time.Now(), time.Now()))

	repo := NewConversationRepository(db)
	conv, err := repo.ByID(context.Background(), "conv-1")

	require.NoError(t, err)
	assert.Equal(t, uint64(9), conv.LastSeq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_ByID_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `conversations` WHERE id = ?")).
		WithArgs("missing", 1).
		WillReturnRows(conversationRows())

	repo := NewConversationRepository(db)
	_, err := repo.ByID(context.Background(), "missing")

	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_ListForUser(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT * FROM `conversations` WHERE participant_low = ? OR participant_high = ? ORDER BY last_activity_at DESC")).
		WithArgs("bob", "bob").
		WillReturnRows(conversationRows().
			AddRow("conv-2", "bob", "carol", 1, time.Now(), time.Now(), time.Now()).
			AddRow("conv-1", "alice", "bob", 7, time.Now().Add(-time.Hour), time.Now(), time.Now()))

	repo := NewConversationRepository(db)
	conversations, err := repo.ListForUser(context.Background(), "bob")

	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, "conv-2", conversations[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
