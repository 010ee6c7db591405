package models

import "time"

type User struct {
	ID       int64
	Username string
	Password string // bcrypt hash
	IP       string
	Hostname string
	LoggedIn bool
}

type DirectMessage struct {
	ID        int64
	Sender    string
	Receiver  string
	Body      string
	Timestamp time.Time
}

type ChannelMessage struct {
	ID        int64
	Sender    string
	Channel   string
	Body      string
	Timestamp time.Time
}

type Task struct {
	ID          int64
	Creator     string
	Assignee    string // empty when unassigned
	Description string
	Status      string // "pending", "in_progress" or "completed"
	Deadline    string // free-form, empty when unset
}

type FileRecord struct {
	ID              int64
	Sender          string
	DestinationKind string // "USER" or "CHANNEL"
	DestinationName string
	Filename        string
	Data            []byte
	Timestamp       time.Time
}
