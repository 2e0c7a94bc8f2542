package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JacobMintzer/Allstar-API/internal/crypto"
	"github.com/JacobMintzer/Allstar-API/internal/model"
)

const uniqueViolation = "23505"

type PostgresAccounts struct {
	pool *pgxpool.Pool
}

func NewPostgresAccounts(pool *pgxpool.Pool) *PostgresAccounts {
	return &PostgresAccounts{pool: pool}
}

func (s *PostgresAccounts) Create(ctx context.Context, account model.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4)
	`, account.Email, account.PasswordHash, account.Role, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *PostgresAccounts) Get(ctx context.Context, email string) (model.Account, error) {
	var account model.Account
	row := s.pool.QueryRow(ctx, `
		SELECT email, password_hash, role, created_at
		FROM accounts
		WHERE email = $1
	`, email)
	err := row.Scan(&account.Email, &account.PasswordHash, &account.Role, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (s *PostgresAccounts) VerifyCredentials(ctx context.Context, email, passwordHash string) (model.Account, error) {
	account, err := s.Get(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Account{}, ErrAuthenticationFailed
		}
		return model.Account{}, err
	}
	if !crypto.CheckHash(account.PasswordHash, passwordHash) {
		return model.Account{}, ErrAuthenticationFailed
	}
	return account, nil
}

func (s *PostgresAccounts) List(ctx context.Context) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT email, password_hash, role, created_at
		FROM accounts
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.Account, 0)
	for rows.Next() {
		var account model.Account
		if err := rows.Scan(&account.Email, &account.PasswordHash, &account.Role, &account.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

type PostgresRecords struct {
	pool *pgxpool.Pool
}

func NewPostgresRecords(pool *pgxpool.Pool) *PostgresRecords {
	return &PostgresRecords{pool: pool}
}

func (s *PostgresRecords) Create(ctx context.Context, record model.TimeRecord) (string, error) {
	record.ID = uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO time_records (id, owner_email, start_time, finish_time, total_time, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.OwnerEmail, record.StartTime, record.FinishTime, record.TotalTime, record.Notes)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return record.ID, nil
}

func (s *PostgresRecords) Get(ctx context.Context, id string) (model.TimeRecord, error) {
	var record model.TimeRecord
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_email, start_time, finish_time, total_time, notes
		FROM time_records
		WHERE id = $1
	`, id)
	err := row.Scan(&record.ID, &record.OwnerEmail, &record.StartTime, &record.FinishTime, &record.TotalTime, &record.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TimeRecord{}, ErrNotFound
		}
		return model.TimeRecord{}, fmt.Errorf("db error: %w", err)
	}
	return record, nil
}

// Update is read-then-write with no version check; concurrent updates to
// the same id are last-write-wins.
func (s *PostgresRecords) Update(ctx context.Context, id string, update RecordUpdate) (string, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	applyUpdate(&record, update)

	_, err = s.pool.Exec(ctx, `
		UPDATE time_records
		SET start_time = $2, finish_time = $3, total_time = $4, notes = $5
		WHERE id = $1
	`, record.ID, record.StartTime, record.FinishTime, record.TotalTime, record.Notes)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return record.ID, nil
}

func (s *PostgresRecords) AppendNote(ctx context.Context, id, note string) (string, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE time_records
		SET notes = $2
		WHERE id = $1
	`, record.ID, record.Notes+" "+note)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return record.ID, nil
}

func (s *PostgresRecords) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM time_records WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresRecords) List(ctx context.Context) ([]model.TimeRecord, error) {
	return s.query(ctx, `
		SELECT id, owner_email, start_time, finish_time, total_time, notes
		FROM time_records
	`)
}

func (s *PostgresRecords) SearchNotes(ctx context.Context, term string) ([]model.TimeRecord, error) {
	return s.query(ctx, `
		SELECT id, owner_email, start_time, finish_time, total_time, notes
		FROM time_records
		WHERE notes ILIKE '%' || $1 || '%'
	`, term)
}

func (s *PostgresRecords) OverlapRange(ctx context.Context, start, end time.Time) ([]model.TimeRecord, error) {
	return s.query(ctx, `
		SELECT id, owner_email, start_time, finish_time, total_time, notes
		FROM time_records
		WHERE start_time < $2 AND finish_time > $1
	`, start, end)
}

func (s *PostgresRecords) SumSecondsByOwner(ctx context.Context, email string) (int64, error) {
	var total int64
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_time), 0)
		FROM time_records
		WHERE owner_email = $1
	`, email)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

func (s *PostgresRecords) query(ctx context.Context, sql string, args ...interface{}) ([]model.TimeRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	records := make([]model.TimeRecord, 0)
	for rows.Next() {
		var record model.TimeRecord
		if err := rows.Scan(&record.ID, &record.OwnerEmail, &record.StartTime, &record.FinishTime, &record.TotalTime, &record.Notes); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
