package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

func (db *DB) TableExists(ctx context.Context, tableName string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)`
	err := db.QueryRowContext(ctx, query, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if table exists: %w", err)
	}
	return exists, nil
}

func (db *DB) GetVersion(ctx context.Context) (string, error) {
	var version string
	err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version)
	if err != nil {
		return "", fmt.Errorf("failed to get database version: %w", err)
	}
	return version, nil
}

func (db *DB) GetConnectionStats() sql.DBStats {
	return db.Stats()
}

// CountAlarmsByState summarises the alarm table for startup logging. Disabled
// alarms are counted too.
func (db *DB) CountAlarmsByState(ctx context.Context) (map[models.AlarmState]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT state, COUNT(*) FROM alarms GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alarms by state: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AlarmState]int)
	for rows.Next() {
		var (
			state string
			count int
		)
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		counts[models.AlarmState(state)] = count
	}
	return counts, rows.Err()
}
