package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/1of9europe/ViteFait-sub001/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrStaleStatus signals that a conditional update matched no row because the
// record's status changed between read and write.
var ErrStaleStatus = errors.New("status changed concurrently")

const missionColumns = `id,client_id,assistant_id,status,title,description,pickup_address,pickup_latitude,pickup_longitude,
drop_address,drop_latitude,drop_longitude,time_window_start,time_window_end,price_estimate,cash_advance,final_price,
currency,category,priority,instructions,requires_car,requires_tools,accepted_at,started_at,completed_at,cancelled_at,
cancellation_reason,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (domain.Mission, error) {
	var m domain.Mission
	var assistantID, description, dropAddress, category, instructions sql.NullString
	var dropLat, dropLng sql.NullFloat64
	var acceptedAt, startedAt, completedAt, cancelledAt, cancellationReason sql.NullString
	err := row.Scan(&m.ID, &m.ClientID, &assistantID, &m.Status, &m.Title, &description, &m.PickupAddress,
		&m.PickupLatitude, &m.PickupLongitude, &dropAddress, &dropLat, &dropLng, &m.TimeWindowStart, &m.TimeWindowEnd,
		&m.PriceEstimate, &m.CashAdvance, &m.FinalPrice, &m.Currency, &category, &m.Priority, &instructions,
		&m.RequiresCar, &m.RequiresTools, &acceptedAt, &startedAt, &completedAt, &cancelledAt, &cancellationReason,
		&m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if assistantID.Valid {
		m.AssistantID = &assistantID.String
	}
	if description.Valid {
		m.Description = description.String
	}
	if dropAddress.Valid {
		m.DropAddress = &dropAddress.String
	}
	if dropLat.Valid {
		m.DropLatitude = &dropLat.Float64
	}
	if dropLng.Valid {
		m.DropLongitude = &dropLng.Float64
	}
	if category.Valid {
		m.Category = category.String
	}
	if instructions.Valid {
		m.Instructions = instructions.String
	}
	if acceptedAt.Valid {
		m.AcceptedAt = &acceptedAt.String
	}
	if startedAt.Valid {
		m.StartedAt = &startedAt.String
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.String
	}
	if cancelledAt.Valid {
		m.CancelledAt = &cancelledAt.String
	}
	if cancellationReason.Valid {
		m.CancellationReason = &cancellationReason.String
	}
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO missions(`+missionColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ClientID, nullableStringPtr(m.AssistantID), m.Status, m.Title, nullable(m.Description),
		m.PickupAddress, m.PickupLatitude, m.PickupLongitude, nullableStringPtr(m.DropAddress),
		nullableFloatPtr(m.DropLatitude), nullableFloatPtr(m.DropLongitude), m.TimeWindowStart, m.TimeWindowEnd,
		m.PriceEstimate, m.CashAdvance, m.FinalPrice, m.Currency, nullable(m.Category), m.Priority,
		nullable(m.Instructions), m.RequiresCar, m.RequiresTools, nullableStringPtr(m.AcceptedAt),
		nullableStringPtr(m.StartedAt), nullableStringPtr(m.CompletedAt), nullableStringPtr(m.CancelledAt),
		nullableStringPtr(m.CancellationReason), m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return scanMission(r.DB.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	return scanMission(tx.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id))
}

// UpdateMissionDetails rewrites the client-editable fields. Callers gate on
// PENDING before invoking; the WHERE clause re-checks it under the transaction.
func (r Repo) UpdateMissionDetails(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET title=?, description=?, pickup_address=?, pickup_latitude=?,
pickup_longitude=?, drop_address=?, drop_latitude=?, drop_longitude=?, time_window_start=?, time_window_end=?,
price_estimate=?, cash_advance=?, currency=?, category=?, priority=?, instructions=?, requires_car=?, requires_tools=?,
updated_at=? WHERE id=? AND status=?`,
		m.Title, nullable(m.Description), m.PickupAddress, m.PickupLatitude, m.PickupLongitude,
		nullableStringPtr(m.DropAddress), nullableFloatPtr(m.DropLatitude), nullableFloatPtr(m.DropLongitude),
		m.TimeWindowStart, m.TimeWindowEnd, m.PriceEstimate, m.CashAdvance, m.Currency, nullable(m.Category),
		m.Priority, nullable(m.Instructions), m.RequiresCar, m.RequiresTools, m.UpdatedAt, m.ID, domain.MissionPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ApplyMissionTransition writes the mission's lifecycle fields keyed on the
// status the caller read. Zero rows affected means a concurrent transition won.
func (r Repo) ApplyMissionTransition(ctx context.Context, tx *sql.Tx, m domain.Mission, expected domain.MissionStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET status=?, assistant_id=?, final_price=?, accepted_at=?,
started_at=?, completed_at=?, cancelled_at=?, cancellation_reason=?, updated_at=? WHERE id=? AND status=?`,
		m.Status, nullableStringPtr(m.AssistantID), m.FinalPrice, nullableStringPtr(m.AcceptedAt),
		nullableStringPtr(m.StartedAt), nullableStringPtr(m.CompletedAt), nullableStringPtr(m.CancelledAt),
		nullableStringPtr(m.CancellationReason), m.UpdatedAt, m.ID, expected)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// DeleteMission removes a mission that never left PENDING. Missions with
// payments or history survive as soft lifecycle only; callers gate on that.
func (r Repo) DeleteMission(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM mission_status_history WHERE mission_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM missions WHERE id=? AND status=?`, id, domain.MissionPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleStatus
	}
	return nil
}

type MissionFilters struct {
	Status          string
	Priority        string
	Category        string
	ClientID        string
	AssistantID     string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.AssistantID != "" {
		clauses = append(clauses, "assistant_id=?")
		args = append(args, f.AssistantID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + missionColumns + ` FROM missions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ListUserMissions returns the missions a user owns (client) or executes (assistant).
func (r Repo) ListUserMissions(ctx context.Context, userID string, role domain.Role) ([]domain.Mission, error) {
	f := MissionFilters{}
	if role == domain.RoleAssistant {
		f.AssistantID = userID
	} else {
		f.ClientID = userID
	}
	return r.ListMissions(ctx, f)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
