package db

import (
	"chatrelay/models"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoRows        = errors.New("no rows found")
	ErrDuplicateUser = errors.New("username already taken")
)

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// The sqlite driver serializes writes on a single connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			hostname TEXT NOT NULL,
			loggedin INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS direct_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			receiver TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channel_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			channel TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			creator TEXT NOT NULL,
			assignee TEXT DEFAULT '',
			description TEXT NOT NULL,
			status TEXT DEFAULT 'pending',
			deadline TEXT DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender TEXT NOT NULL,
			destination_type TEXT NOT NULL CHECK(destination_type IN ('USER', 'CHANNEL')),
			destination_name TEXT NOT NULL,
			filename TEXT NOT NULL,
			file_data BLOB NOT NULL,
			uploaded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_direct_messages_sender ON direct_messages(sender, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_direct_messages_receiver ON direct_messages(receiver, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_messages_channel ON channel_messages(channel, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assignee)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return db.migrate()
}

// migrate adds columns introduced after the initial schema to databases
// created by older builds.
func (db *DB) migrate() error {
	alters := map[string]string{
		"loggedin": "ALTER TABLE users ADD COLUMN loggedin INTEGER DEFAULT 0",
		"assignee": "ALTER TABLE tasks ADD COLUMN assignee TEXT DEFAULT ''",
		"status":   "ALTER TABLE tasks ADD COLUMN status TEXT DEFAULT 'pending'",
		"deadline": "ALTER TABLE tasks ADD COLUMN deadline TEXT DEFAULT ''",
	}

	tables := map[string]string{
		"loggedin": "users",
		"assignee": "tasks",
		"status":   "tasks",
		"deadline": "tasks",
	}

	for column, alter := range alters {
		if !db.columnExists(tables[column], column) {
			if _, err := db.conn.Exec(alter); err != nil {
				return err
			}
		}
	}

	return nil
}

func (db *DB) columnExists(table, column string) bool {
	query := "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	var count int
	err := db.conn.QueryRow(query, table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// User methods

// CreateUser registers a new user, recording the origin address the
// registration came from. The username is unique.
func (db *DB) CreateUser(username, password, ip, hostname string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(
		"INSERT INTO users (username, password, ip_address, hostname) VALUES (?, ?, ?, ?)",
		username, string(hashed), ip, hostname,
	)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicateUser
	}
	return err
}

// AuthenticateUser checks username, password and the origin recorded at
// registration. All three must match; any mismatch is reported the same way.
func (db *DB) AuthenticateUser(username, password, ip, hostname string) (bool, error) {
	var hashedPassword, storedIP, storedHost string
	err := db.conn.QueryRow(
		"SELECT password, ip_address, hostname FROM users WHERE username = ?",
		username,
	).Scan(&hashedPassword, &storedIP, &storedHost)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if storedIP != ip || storedHost != hostname {
		return false, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil, nil
}

func (db *DB) UserExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (db *DB) SetLoggedIn(username string, online bool) error {
	flag := 0
	if online {
		flag = 1
	}
	_, err := db.conn.Exec("UPDATE users SET loggedin = ? WHERE username = ?", flag, username)
	return err
}

// Message methods

func (db *DB) SaveDirectMessage(sender, receiver, body string, timestamp time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO direct_messages (sender, receiver, message, timestamp) VALUES (?, ?, ?, ?)",
		sender, receiver, body, timestamp.Format(time.RFC3339),
	)
	return err
}

func (db *DB) SaveChannelMessage(sender, channel, body string, timestamp time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO channel_messages (sender, channel, message, timestamp) VALUES (?, ?, ?, ?)",
		sender, channel, body, timestamp.Format(time.RFC3339),
	)
	return err
}

// GetDirectMessages returns every direct message the user sent or received,
// oldest first.
func (db *DB) GetDirectMessages(username string) ([]models.DirectMessage, error) {
	query := `
		SELECT sender, receiver, message, timestamp
		FROM direct_messages
		WHERE sender = ? OR receiver = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := db.conn.Query(query, username, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.DirectMessage
	for rows.Next() {
		var m models.DirectMessage
		var timestampStr string
		if err := rows.Scan(&m.Sender, &m.Receiver, &m.Body, &timestampStr); err != nil {
			return nil, err
		}
		m.Timestamp, _ = time.Parse(time.RFC3339, timestampStr)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *DB) GetChannelMessages(channel string) ([]models.ChannelMessage, error) {
	query := `
		SELECT sender, channel, message, timestamp
		FROM channel_messages
		WHERE channel = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := db.conn.Query(query, channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChannelMessage
	for rows.Next() {
		var m models.ChannelMessage
		var timestampStr string
		if err := rows.Scan(&m.Sender, &m.Channel, &m.Body, &timestampStr); err != nil {
			return nil, err
		}
		m.Timestamp, _ = time.Parse(time.RFC3339, timestampStr)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// File methods

// SaveFile appends a file record. Written before any forwarding happens, so
// the record is the durability boundary of a transfer.
func (db *DB) SaveFile(sender, kind, destination, filename string, data []byte, timestamp time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO files (sender, destination_type, destination_name, filename, file_data, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)",
		sender, kind, destination, filename, data, timestamp.Format(time.RFC3339),
	)
	return err
}

func (db *DB) CountFiles() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM files").Scan(&count)
	return count, err
}
