package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, Name: "alarms", User: "eval", Password: "secret"}

	assert.Equal(t, "host=db port=5432 user=eval password=secret dbname=alarms sslmode=disable application_name='alarm-evaluator'", cfg.DSN())

	cfg.SSLMode = "require"
	cfg.ApplicationName = "alarm evaluator's eu"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
	assert.Contains(t, cfg.DSN(), `application_name='alarm evaluator\'s eu'`)
}

func TestDB_CountAlarmsByState(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT state, COUNT").WillReturnRows(
		sqlmock.NewRows([]string{"state", "count"}).
			AddRow("ok", 4).
			AddRow("alarm", 1).
			AddRow("insufficient data", 2))

	counts, err := (&DB{DB: sqlDB}).CountAlarmsByState(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[models.AlarmState]int{
		models.StateOK:               4,
		models.StateAlarm:            1,
		models.StateInsufficientData: 2,
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationFiles_Ordered(t *testing.T) {
	files, err := MigrationFiles()
	require.NoError(t, err)

	assert.Equal(t, []string{"001_create_alarms.sql", "002_create_alarm_history.sql"}, files)
}

func TestMigrator_Run(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS alarms").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS alarm_history").WillReturnResult(sqlmock.NewResult(0, 0))
	for _, table := range requiredTables {
		mock.ExpectQuery("SELECT EXISTS").WithArgs(table).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	err = NewMigrator(&DB{DB: sqlDB}).Run(context.Background())

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_MissingTable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("alarms").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = NewMigrator(&DB{DB: sqlDB}).Run(context.Background())

	assert.ErrorContains(t, err, "alarms missing")
}
