package repo

import (
	"context"

	dom "github.com/like-Ocean/TODOs/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskRepo is the persistence collaborator for tasks. Lookups of missing rows
// return pgx.ErrNoRows; every method is a single statement, so each call is its
// own transaction.
type TaskRepo interface {
	GetByID(ctx context.Context, id int64) (dom.Task, error)
	GetByExternalID(ctx context.Context, externalID int64) (dom.Task, error)
	List(ctx context.Context, offset, limit int) ([]dom.Task, error)
	Create(ctx context.Context, t dom.Task) (dom.Task, error)
	Update(ctx context.Context, id int64, patch dom.TaskPatch) (dom.Task, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

const taskColumns = `id, external_id, title, description, completed, created_at, updated_at`

type PGTaskRepo struct {
	db *pgxpool.Pool
}

func NewPGTaskRepo(db *pgxpool.Pool) *PGTaskRepo {
	return &PGTaskRepo{db: db}
}

func (r *PGTaskRepo) GetByID(ctx context.Context, id int64) (dom.Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (r *PGTaskRepo) GetByExternalID(ctx context.Context, externalID int64) (dom.Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE external_id = $1`, externalID)
	return scanTask(row)
}

func (r *PGTaskRepo) List(ctx context.Context, offset, limit int) ([]dom.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY id OFFSET $1 LIMIT $2`
	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]dom.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Create inserts t. A clash on external_id surfaces as a unique violation (23505).
func (r *PGTaskRepo) Create(ctx context.Context, t dom.Task) (dom.Task, error) {
	query := `
		INSERT INTO tasks (external_id, title, description, completed)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + taskColumns
	row := r.db.QueryRow(ctx, query, t.ExternalID, t.Title, t.Description, t.Completed)
	return scanTask(row)
}

// Update applies patch. Description is written whenever the patch sets it,
// so a set nil Description stores NULL.
func (r *PGTaskRepo) Update(ctx context.Context, id int64, patch dom.TaskPatch) (dom.Task, error) {
	query := `
		UPDATE tasks SET
			title = COALESCE($2, title),
			description = CASE WHEN $5::boolean THEN $3::text ELSE description END,
			completed = COALESCE($4, completed),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + taskColumns
	row := r.db.QueryRow(ctx, query, id, patch.Title, patch.Description, patch.Completed, patch.SetsDescription())
	return scanTask(row)
}

// Delete removes the row and reports whether it existed.
func (r *PGTaskRepo) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanTask(row pgx.Row) (dom.Task, error) {
	var t dom.Task
	err := row.Scan(&t.ID, &t.ExternalID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
