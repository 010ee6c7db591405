package db

import (
	"chatrelay/models"
	"database/sql"
	"strings"
)

// TaskField is one field=value pair of a task update. Updates keep the order
// the client sent, so responses echo fields in a predictable order.
type TaskField struct {
	Name  string
	Value string
}

// CreateTask inserts a task and returns its id.
func (db *DB) CreateTask(creator, description, status, deadline, assignee string) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO tasks (creator, description, status, deadline, assignee) VALUES (?, ?, ?, ?, ?)",
		creator, description, status, deadline, assignee,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (db *DB) GetTask(id int64) (*models.Task, error) {
	var t models.Task
	err := db.conn.QueryRow(
		"SELECT id, creator, COALESCE(assignee, ''), description, COALESCE(status, 'pending'), COALESCE(deadline, '') FROM tasks WHERE id = ?",
		id,
	).Scan(&t.ID, &t.Creator, &t.Assignee, &t.Description, &t.Status, &t.Deadline)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTasks lists tasks ordered by id, optionally filtered by assignee.
func (db *DB) GetTasks(assignee string) ([]models.Task, error) {
	query := "SELECT id, creator, COALESCE(assignee, ''), description, COALESCE(status, 'pending'), COALESCE(deadline, '') FROM tasks"
	var args []any
	if assignee != "" {
		query += " WHERE assignee = ?"
		args = append(args, assignee)
	}
	query += " ORDER BY id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Creator, &t.Assignee, &t.Description, &t.Status, &t.Deadline); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

// UpdateTask applies all field updates in a single statement.
func (db *DB) UpdateTask(id int64, fields []TaskField) error {
	if len(fields) == 0 {
		return nil
	}

	var setClauses []string
	var values []any
	for _, f := range fields {
		setClauses = append(setClauses, f.Name+" = ?")
		values = append(values, f.Value)
	}
	values = append(values, id)

	query := "UPDATE tasks SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	result, err := db.conn.Exec(query, values...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}

func (db *DB) DeleteTask(id int64) error {
	result, err := db.conn.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNoRows
	}
	return nil
}
