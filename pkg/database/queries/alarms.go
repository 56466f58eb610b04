package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

var (
	ErrAlarmNotFound = errors.New("alarm not found")
	// ErrInvalidDefinition marks a stored row that cannot be decoded into an alarm.
	ErrInvalidDefinition = errors.New("invalid alarm definition")
)

const alarmColumns = `id, name, description, counter_name, comparison_operator, threshold,
		evaluation_periods, statistic, period, user_id, project_id, matching_metadata,
		state, enabled, state_timestamp, timestamp`

// AlarmRepository is the alarm store. Periods are stored in whole seconds and
// matching metadata as a JSON object.
type AlarmRepository struct {
	db *sql.DB
}

func NewAlarmRepository(db *sql.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// ListAll returns every alarm, enabled or not, in a stable order. Rows that
// cannot be decoded are logged and left out so the rest still get evaluated.
func (r *AlarmRepository) ListAll(ctx context.Context) ([]*models.Alarm, error) {
	query := `SELECT ` + alarmColumns + ` FROM alarms ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alarms: %w", err)
	}
	defer rows.Close()

	var alarms []*models.Alarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if errors.Is(err, ErrInvalidDefinition) {
			logger.WithAlarm(alarm.ID).Errorf("Skipping alarm definition: %v", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		alarms = append(alarms, alarm)
	}

	return alarms, rows.Err()
}

func (r *AlarmRepository) GetByID(ctx context.Context, id string) (*models.Alarm, error) {
	query := `SELECT ` + alarmColumns + ` FROM alarms WHERE id = $1`

	alarm, err := scanAlarm(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlarmNotFound
	}
	return alarm, err
}

func (r *AlarmRepository) Create(ctx context.Context, alarm *models.Alarm) error {
	metadata, err := json.Marshal(alarm.MatchingMetadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alarms (id, name, description, counter_name, comparison_operator, threshold,
			evaluation_periods, statistic, period, user_id, project_id, matching_metadata, state, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING timestamp`

	return r.db.QueryRowContext(ctx, query,
		alarm.ID,
		alarm.Name,
		alarm.Description,
		alarm.MetricName,
		string(alarm.ComparisonOperator),
		alarm.Threshold,
		alarm.EvaluationPeriods,
		string(alarm.Statistic),
		int64(alarm.Period/time.Second),
		alarm.UserID,
		alarm.ProjectID,
		metadata,
		string(alarm.State),
		alarm.Enabled,
	).Scan(&alarm.Timestamp)
}

// UpdateState persists a new state for the alarm and stamps the change time.
func (r *AlarmRepository) UpdateState(ctx context.Context, id string, state models.AlarmState) error {
	query := `UPDATE alarms SET state = $2, state_timestamp = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, string(state))
	if err != nil {
		return fmt.Errorf("failed to update alarm state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrAlarmNotFound, id)
	}

	return nil
}

func (r *AlarmRepository) RecordTransition(ctx context.Context, t *models.Transition) error {
	query := `
		INSERT INTO alarm_history (id, alarm_id, alarm_name, previous_state, state, reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.AlarmID,
		t.AlarmName,
		string(t.Previous),
		string(t.Current),
		t.Reason,
		t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// History returns the most recent transitions of an alarm, newest first.
func (r *AlarmRepository) History(ctx context.Context, alarmID string, limit int) ([]*models.Transition, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, alarm_id, alarm_name, previous_state, state, reason, timestamp
		FROM alarm_history
		WHERE alarm_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, alarmID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm history: %w", err)
	}
	defer rows.Close()

	var transitions []*models.Transition
	for rows.Next() {
		var (
			t                 models.Transition
			previous, current string
		)
		if err := rows.Scan(&t.ID, &t.AlarmID, &t.AlarmName, &previous, &current, &t.Reason, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Previous = models.AlarmState(previous)
		t.Current = models.AlarmState(current)
		transitions = append(transitions, &t)
	}

	return transitions, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlarm(s scanner) (*models.Alarm, error) {
	var (
		alarm          models.Alarm
		operator       string
		statistic      string
		periodSeconds  int64
		metadata       []byte
		state          string
		stateTimestamp sql.NullTime
	)

	err := s.Scan(
		&alarm.ID,
		&alarm.Name,
		&alarm.Description,
		&alarm.MetricName,
		&operator,
		&alarm.Threshold,
		&alarm.EvaluationPeriods,
		&statistic,
		&periodSeconds,
		&alarm.UserID,
		&alarm.ProjectID,
		&metadata,
		&state,
		&alarm.Enabled,
		&stateTimestamp,
		&alarm.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	alarm.ComparisonOperator = models.ComparisonOperator(operator)
	alarm.Statistic = models.StatisticKind(statistic)
	alarm.Period = time.Duration(periodSeconds) * time.Second
	alarm.State = models.AlarmState(state)

	if stateTimestamp.Valid {
		ts := stateTimestamp.Time
		alarm.StateTimestamp = &ts
	}

	alarm.MatchingMetadata = make(map[string]string)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &alarm.MatchingMetadata); err != nil {
			return &alarm, fmt.Errorf("%w: alarm %s has invalid matching metadata: %v", ErrInvalidDefinition, alarm.ID, err)
		}
	}

	return &alarm, nil
}
