package repo

import (
	"context"
	"database/sql"

	"github.com/1of9europe/ViteFait-sub001/internal/domain"
)

// AppendHistory writes one audit row. Rows are never updated or deleted; the
// write happens in the same transaction as the status change it records.
func (r Repo) AppendHistory(ctx context.Context, tx *sql.Tx, e domain.StatusHistoryEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO mission_status_history(id,mission_id,status,actor_id,comment,created_at)
VALUES (?,?,?,?,?,?)`,
		e.ID, e.MissionID, e.Status, nullableStringPtr(e.ActorID), nullable(e.Comment), e.CreatedAt)
	return err
}

// ListStatusHistory returns a mission's audit trail, oldest first.
func (r Repo) ListStatusHistory(ctx context.Context, missionID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,mission_id,status,actor_id,COALESCE(comment,''),created_at
FROM mission_status_history WHERE mission_id=? ORDER BY created_at ASC, id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistoryEntry
	for rows.Next() {
		var e domain.StatusHistoryEntry
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.MissionID, &e.Status, &actorID, &e.Comment, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			e.ActorID = &actorID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
