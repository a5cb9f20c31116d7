package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/1of9europe/ViteFait-sub001/internal/domain"
)

// ErrPendingPaymentExists maps the partial unique index on payments(mission_id)
// WHERE status='pending': a second concurrent escrow attempt lost the race.
var ErrPendingPaymentExists = errors.New("a pending payment already exists for this mission")

const paymentColumns = `id,mission_id,client_id,assistant_id,amount,currency,status,provider_intent_id,
idempotency_key,failure_reason,completed_at,cancelled_at,failed_at,created_at`

func scanPayment(row rowScanner) (domain.Payment, error) {
	var p domain.Payment
	var failureReason, completedAt, cancelledAt, failedAt sql.NullString
	err := row.Scan(&p.ID, &p.MissionID, &p.ClientID, &p.AssistantID, &p.Amount, &p.Currency, &p.Status,
		&p.ProviderIntentID, &p.IdempotencyKey, &failureReason, &completedAt, &cancelledAt, &failedAt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if failureReason.Valid {
		p.FailureReason = &failureReason.String
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.String
	}
	if cancelledAt.Valid {
		p.CancelledAt = &cancelledAt.String
	}
	if failedAt.Valid {
		p.FailedAt = &failedAt.String
	}
	return p, nil
}

func (r Repo) InsertPayment(ctx context.Context, tx *sql.Tx, p domain.Payment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payments(`+paymentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.MissionID, p.ClientID, p.AssistantID, p.Amount, p.Currency, p.Status, p.ProviderIntentID,
		p.IdempotencyKey, nullableStringPtr(p.FailureReason), nullableStringPtr(p.CompletedAt),
		nullableStringPtr(p.CancelledAt), nullableStringPtr(p.FailedAt), p.CreatedAt)
	// The pending-escrow index reports the column form of the message; a
	// primary key collision would name payments.id instead.
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: payments.mission_id") {
		return ErrPendingPaymentExists
	}
	return err
}

func (r Repo) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	return scanPayment(r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=?`, id))
}

func (r Repo) GetPaymentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=?`, id))
}

func (r Repo) GetPaymentByIntent(ctx context.Context, intentID string) (domain.Payment, error) {
	return scanPayment(r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_intent_id=? LIMIT 1`, intentID))
}

// PendingPaymentForMission returns the mission's single PENDING payment, if any.
func (r Repo) PendingPaymentForMission(ctx context.Context, missionID string) (domain.Payment, error) {
	return scanPayment(r.DB.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE mission_id=? AND status=? LIMIT 1`, missionID, domain.PaymentPending))
}

func (r Repo) PendingPaymentForMissionTx(ctx context.Context, tx *sql.Tx, missionID string) (domain.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE mission_id=? AND status=? LIMIT 1`, missionID, domain.PaymentPending))
}

// ApplyPaymentTransition writes the payment's settlement fields keyed on the
// status the caller read, so two concurrent settlements cannot both commit.
func (r Repo) ApplyPaymentTransition(ctx context.Context, tx *sql.Tx, p domain.Payment, expected domain.PaymentStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE payments SET status=?, failure_reason=?, completed_at=?, cancelled_at=?,
failed_at=? WHERE id=? AND status=?`,
		p.Status, nullableStringPtr(p.FailureReason), nullableStringPtr(p.CompletedAt),
		nullableStringPtr(p.CancelledAt), nullableStringPtr(p.FailedAt), p.ID, expected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r Repo) ListMissionPayments(ctx context.Context, missionID string) ([]domain.Payment, error) {
	return r.listPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE mission_id=? ORDER BY created_at DESC, id DESC`, missionID)
}

// ListUserPayments returns payments where the user is on either side of the escrow.
func (r Repo) ListUserPayments(ctx context.Context, userID string) ([]domain.Payment, error) {
	return r.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE client_id=? OR assistant_id=? ORDER BY created_at DESC, id DESC`, userID, userID)
}

func (r Repo) listPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
