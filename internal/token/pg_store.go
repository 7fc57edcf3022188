package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres-backed Store used by the api-server. Slot token
// lists are stored as text[] so list order survives round trips.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&d.SlotIDs,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartMinute,
		&s.EndMinute,
		&s.MaxCapacity,
		&s.CurrentLoad,
		&s.Status,
		&s.Allocated,
		&s.Waitlist,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanToken(row pgx.Row) (*Token, error) {
	var t Token
	var slotID, severity *string
	var allocatedAt *time.Time

	err := row.Scan(
		&t.ID,
		&t.PatientName,
		&t.Category,
		&t.Priority,
		&t.DoctorID,
		&slotID,
		&t.Status,
		&severity,
		&t.BumpCount,
		&t.CreatedAt,
		&allocatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	if slotID != nil {
		t.SlotID = *slotID
	}
	if severity != nil {
		t.Severity = *severity
	}
	t.AllocatedAt = allocatedAt
	return &t, nil
}

// Interface methods

func (r *PgStore) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialization, slot_ids, created_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgStore) SaveDoctor(ctx context.Context, d *Doctor) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctors (id, name, specialization, slot_ids, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    specialization = EXCLUDED.specialization,
		    slot_ids = EXCLUDED.slot_ids
	`, d.ID, d.Name, d.Specialization, d.SlotIDs, nullableTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("save doctor: %w", err)
	}
	return nil
}

func (r *PgStore) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialization, slot_ids, created_at
		FROM doctors
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *PgStore) GetSlot(ctx context.Context, id string) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, start_minute, end_minute, max_capacity,
		       current_load, status, allocated, waitlist, created_at
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgStore) SaveSlot(ctx context.Context, s *TimeSlot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO time_slots (id, doctor_id, start_minute, end_minute,
		                        max_capacity, current_load, status,
		                        allocated, waitlist, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
		ON CONFLICT (id) DO UPDATE
		SET current_load = EXCLUDED.current_load,
		    status = EXCLUDED.status,
		    allocated = EXCLUDED.allocated,
		    waitlist = EXCLUDED.waitlist
	`, s.ID, s.DoctorID, s.StartMinute, s.EndMinute, s.MaxCapacity,
		s.CurrentLoad, s.Status, s.Allocated, s.Waitlist, nullableTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("save slot: %w", err)
	}
	return nil
}

func (r *PgStore) GetToken(ctx context.Context, id string) (*Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_name, category, priority, doctor_id, slot_id,
		       status, severity, bump_count, created_at, allocated_at
		FROM tokens
		WHERE id = $1
	`, id)
	return scanToken(row)
}

func (r *PgStore) SaveToken(ctx context.Context, t *Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tokens (id, patient_name, category, priority, doctor_id,
		                    slot_id, status, severity, bump_count,
		                    created_at, allocated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		SET slot_id = EXCLUDED.slot_id,
		    status = EXCLUDED.status,
		    severity = EXCLUDED.severity,
		    bump_count = EXCLUDED.bump_count,
		    allocated_at = EXCLUDED.allocated_at
	`, t.ID, t.PatientName, t.Category, t.Priority, t.DoctorID,
		nullableString(t.SlotID), t.Status, nullableString(t.Severity),
		t.BumpCount, t.CreatedAt, t.AllocatedAt)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (r *PgStore) ListTokens(ctx context.Context, f TokenFilter) ([]*Token, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_name, category, priority, doctor_id, slot_id,
		       status, severity, bump_count, created_at, allocated_at
		FROM tokens
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR doctor_id = $2)
		ORDER BY created_at, id
	`, string(f.Status), f.DoctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *PgStore) DeleteToken(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, token_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.TokenID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
