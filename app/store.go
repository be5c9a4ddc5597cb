package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/night131rd/referensiku.ai-sub000/app/models"
)

// Store is the quota store adapter: fetch-or-create quota records, the one
// atomic decrement the product relies on, role transitions, and webhook
// transaction persistence. An interface so handlers can be tested without
// a backing Postgres.
type Store interface {
	// GetQuota returns the quota record for an identity, lazily creating it
	// with role defaults for a never-seen identity.
	GetQuota(ctx context.Context, id models.Identity) (models.QuotaRecord, error)
	// Decrement atomically spends one search. It never drives remaining below
	// zero: with zero remaining it returns QuotaExhaustedError and mutates
	// nothing.
	Decrement(ctx context.Context, id models.Identity) (models.QuotaRecord, error)
	// SetRole transitions an authenticated profile to role, topping remaining
	// up by the ceiling difference. The profile must already exist.
	SetRole(ctx context.Context, userID string, role models.Role) error
	// UpsertTransaction persists a webhook notification keyed by order id.
	// Replays converge to the same stored row.
	UpsertTransaction(ctx context.Context, tx models.Transaction) error
}

// store is the process-wide Store, set by MustInitDB. Tests swap it.
var store Store

type sqlStore struct {
	db *sql.DB
}

// quotaTable returns the quota table and key column for an identity kind.
func quotaTable(id models.Identity) (table, keyCol string) {
	if id.IsAuthenticated() {
		return "profiles", "id"
	}
	return "anonymous_quota", "anonymous_id"
}

func (s *sqlStore) GetQuota(ctx context.Context, id models.Identity) (models.QuotaRecord, error) {
	table, keyCol := quotaTable(id)

	rec, err := s.selectQuota(ctx, table, keyCol, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.QuotaRecord{}, err
	}

	role := models.DefaultRole(id.Kind)
	q := fmt.Sprintf(`
		INSERT INTO %s (%s, role, sisa_quota)
		VALUES ($1, $2, $3)
		ON CONFLICT (%s) DO NOTHING;
	`, table, keyCol, keyCol)
	if _, err := s.db.ExecContext(ctx, q, id.Key, role, models.RoleTotal(role)); err != nil {
		return models.QuotaRecord{}, err
	}

	return s.selectQuota(ctx, table, keyCol, id)
}

func (s *sqlStore) selectQuota(ctx context.Context, table, keyCol string, id models.Identity) (models.QuotaRecord, error) {
	var rec models.QuotaRecord
	q := fmt.Sprintf(`
		SELECT role, sisa_quota
		FROM %s
		WHERE %s = $1;
	`, table, keyCol)
	if err := s.db.QueryRowContext(ctx, q, id.Key).Scan(&rec.Role, &rec.Remaining); err != nil {
		return models.QuotaRecord{}, err
	}
	rec.IdentityKey = id.Key
	rec.Total = models.RoleTotal(rec.Role)
	return rec, nil
}

// Decrement is a single conditional update at the store, not a read-then-write
// pair, so concurrent spends of the last unit cannot both win.
func (s *sqlStore) Decrement(ctx context.Context, id models.Identity) (models.QuotaRecord, error) {
	// Lazy-create first so a brand new identity gets its full allowance.
	rec, err := s.GetQuota(ctx, id)
	if err != nil {
		return models.QuotaRecord{}, err
	}

	table, keyCol := quotaTable(id)
	q := fmt.Sprintf(`
		UPDATE %s
		SET sisa_quota = sisa_quota - 1
		WHERE %s = $1 AND sisa_quota > 0
		RETURNING role, sisa_quota;
	`, table, keyCol)

	var out models.QuotaRecord
	err = s.db.QueryRowContext(ctx, q, id.Key).Scan(&out.Role, &out.Remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QuotaRecord{}, &QuotaExhaustedError{
			Role:  string(rec.Role),
			Total: rec.Total,
		}
	}
	if err != nil {
		return models.QuotaRecord{}, err
	}
	out.IdentityKey = id.Key
	out.Total = models.RoleTotal(out.Role)
	return out, nil
}

// SetRole reads the old role under lock so the top-up is computed against a
// stable row. Upgrades grant total(new)-total(old) extra remaining, clamped
// to the new ceiling; downgrades clamp remaining to the new ceiling.
func (s *sqlStore) SetRole(ctx context.Context, userID string, role models.Role) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldRole models.Role
	var remaining int
	err = tx.QueryRowContext(ctx, `
		SELECT role, sisa_quota
		FROM profiles
		WHERE id = $1
		FOR UPDATE;
	`, userID).Scan(&oldRole, &remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUnknownIdentity
	}
	if err != nil {
		return err
	}

	if oldRole != role {
		remaining += models.RoleTotal(role) - models.RoleTotal(oldRole)
		if remaining < 0 {
			remaining = 0
		}
		if max := models.RoleTotal(role); remaining > max {
			remaining = max
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE profiles
			SET role = $1, sisa_quota = $2
			WHERE id = $3;
		`, role, remaining, userID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *sqlStore) UpsertTransaction(ctx context.Context, t models.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			order_id, transaction_status, status_code, gross_amount,
			payment_type, signature_key, raw, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (order_id) DO UPDATE SET
			transaction_status = EXCLUDED.transaction_status,
			status_code        = EXCLUDED.status_code,
			gross_amount       = EXCLUDED.gross_amount,
			payment_type       = EXCLUDED.payment_type,
			signature_key      = EXCLUDED.signature_key,
			raw                = EXCLUDED.raw,
			received_at        = EXCLUDED.received_at;
	`, t.OrderID, t.TransactionStatus, t.StatusCode, t.GrossAmount,
		t.PaymentType, t.SignatureKey, t.Raw, t.ReceivedAt)
	return err
}
