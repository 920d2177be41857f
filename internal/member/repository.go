package member

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists members.
type Repository interface {
	Create(ctx context.Context, m Member) error
	FindByID(ctx context.Context, id string) (Member, error)
	FindByPhone(ctx context.Context, phone string) (Member, error)
	UpdateDevice(ctx context.Context, id, deviceID string) error
	// RecordLogin stores the login time and the member's current tier.
	RecordLogin(ctx context.Context, id, tier string, at time.Time) error
	UpdateTokenVersion(ctx context.Context, id string, version int) error
}

// DB is the subset of pgxpool.Pool used by PostgresRepository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository builds a Postgres-backed member repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new member.
func (r *PostgresRepository) Create(ctx context.Context, m Member) error {
	memberID, err := uuid.Parse(m.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO members (id, phone, full_name, tier, pin_hash, device_id, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		memberID, m.Phone, m.FullName, m.Tier, m.PINHash, m.DeviceID, m.TokenVersion, m.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrMemberExists
	}
	return err
}

const selectMember = `SELECT id, phone, full_name, tier, pin_hash, device_id, token_version, created_at, last_login_at FROM members`

// FindByID fetches a member by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Member, error) {
	memberID, err := uuid.Parse(id)
	if err != nil {
		return Member{}, ErrMemberNotFound
	}
	return scanMember(r.db.QueryRow(ctx, selectMember+` WHERE id = $1`, memberID))
}

// FindByPhone fetches a member by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (Member, error) {
	return scanMember(r.db.QueryRow(ctx, selectMember+` WHERE phone = $1`, phone))
}

func scanMember(row pgx.Row) (Member, error) {
	var (
		m         Member
		id        uuid.UUID
		createdAt time.Time
		lastLogin *time.Time
	)
	if err := row.Scan(&id, &m.Phone, &m.FullName, &m.Tier, &m.PINHash, &m.DeviceID, &m.TokenVersion, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, err
	}
	m.ID = id.String()
	m.CreatedAt = createdAt.UTC()
	if lastLogin != nil {
		m.LastLoginAt = lastLogin.UTC()
	}
	return m, nil
}

// UpdateDevice stores the member's bound device identifier.
func (r *PostgresRepository) UpdateDevice(ctx context.Context, id, deviceID string) error {
	return r.update(ctx, `UPDATE members SET device_id = $1 WHERE id = $2`, deviceID, id)
}

// RecordLogin stores the last login and the tier reached.
func (r *PostgresRepository) RecordLogin(ctx context.Context, id, tier string, at time.Time) error {
	memberID, err := uuid.Parse(id)
	if err != nil {
		return ErrMemberNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE members SET tier = $1, last_login_at = $2 WHERE id = $3`, tier, at.UTC(), memberID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// UpdateTokenVersion sets the version embedded in newly issued tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	return r.update(ctx, `UPDATE members SET token_version = $1 WHERE id = $2`, version, id)
}

func (r *PostgresRepository) update(ctx context.Context, sql string, value any, id string) error {
	memberID, err := uuid.Parse(id)
	if err != nil {
		return ErrMemberNotFound
	}
	cmd, err := r.db.Exec(ctx, sql, value, memberID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}
