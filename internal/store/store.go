package store

import (
	"context"
	"time"

	"backend-fieldforce/internal/db"

	"github.com/google/uuid"
)

type Store struct {
	db db.Querier
}

func NewStore(db db.Querier) *Store {
	return &Store{db: db}
}

func (s *Store) SaveSample(ctx context.Context, input Sample) (Sample, error) {
	input.ID = uuid.NewString()
	if input.RecordedAt.IsZero() {
		input.RecordedAt = time.Now()
	}
	input.SyncState = SyncStatePending

	row := s.db.QueryRow(ctx, `
		INSERT INTO location_samples (id, employee_id, lat, lng, accuracy_m, battery_pct, recorded_at, sync_state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, input.ID, input.EmployeeID, input.Lat, input.Lng, input.AccuracyM, input.BatteryPct, input.RecordedAt, input.SyncState)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Sample{}, err
	}
	return input, nil
}

func (s *Store) PendingSamples(ctx context.Context, employeeID string) ([]Sample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, employee_id, lat, lng, accuracy_m, battery_pct, recorded_at, sync_state, created_at
		FROM location_samples
		WHERE employee_id=$1 AND sync_state=$2
		ORDER BY recorded_at
	`, employeeID, SyncStatePending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.ID, &smp.EmployeeID, &smp.Lat, &smp.Lng, &smp.AccuracyM, &smp.BatteryPct, &smp.RecordedAt, &smp.SyncState, &smp.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

func (s *Store) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE location_samples SET sync_state=$2 WHERE id = ANY($1)
	`, ids, SyncStateSynced)
	return err
}

func (s *Store) PendingCount(ctx context.Context, employeeID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM location_samples WHERE employee_id=$1 AND sync_state=$2
	`, employeeID, SyncStatePending).Scan(&count)
	return count, err
}

func (s *Store) LastSample(ctx context.Context, employeeID string) (Sample, bool, error) {
	var smp Sample
	err := s.db.QueryRow(ctx, `
		SELECT id, employee_id, lat, lng, accuracy_m, battery_pct, recorded_at, sync_state, created_at
		FROM location_samples
		WHERE employee_id=$1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, employeeID).Scan(&smp.ID, &smp.EmployeeID, &smp.Lat, &smp.Lng, &smp.AccuracyM, &smp.BatteryPct, &smp.RecordedAt, &smp.SyncState, &smp.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return Sample{}, false, nil
		}
		return Sample{}, false, err
	}
	return smp, true, nil
}

func (s *Store) SaveEmergencyCheckout(ctx context.Context, input EmergencyCheckout) (EmergencyCheckout, error) {
	input.ID = uuid.NewString()
	if input.OccurredAt.IsZero() {
		input.OccurredAt = time.Now()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO emergency_checkouts (id, employee_id, reason, last_lat, last_lng, accuracy_m, battery_pct, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, input.ID, input.EmployeeID, input.Reason, input.LastLat, input.LastLng, input.AccuracyM, input.BatteryPct, input.OccurredAt)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return EmergencyCheckout{}, err
	}
	return input, nil
}

// ClearEmployeeData removes all samples and emergency checkouts for an
// employee and reports the number of rows removed.
func (s *Store) ClearEmployeeData(ctx context.Context, employeeID string) (int64, error) {
	samplesTag, err := s.db.Exec(ctx, `
		DELETE FROM location_samples WHERE employee_id=$1
	`, employeeID)
	if err != nil {
		return 0, err
	}
	checkoutsTag, err := s.db.Exec(ctx, `
		DELETE FROM emergency_checkouts WHERE employee_id=$1
	`, employeeID)
	if err != nil {
		return samplesTag.RowsAffected(), err
	}
	return samplesTag.RowsAffected() + checkoutsTag.RowsAffected(), nil
}
