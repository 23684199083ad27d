// Package model defines the microblog's persisted records.
package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/microblog/internal/search"
	"github.com/Aman-CERP/microblog/internal/store"
)

var (
	_ store.Record      = (*User)(nil)
	_ search.Searchable = (*Post)(nil)
	_ store.Record      = (*Message)(nil)
)

// Column length limits.
const (
	MaxUsernameLen = 64
	MaxEmailLen    = 120
	MaxAboutLen    = 140
	MaxBodyLen     = 140
	MaxLanguageLen = 5
)

// Collection names, identical to table names.
const (
	UserTable    = "user"
	PostTable    = "post"
	MessageTable = "message"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// User is an account. Users are not searchable.
type User struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	AboutMe  string    `json:"about_me,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func (u *User) Table() string          { return UserTable }
func (u *User) PrimaryKey() int64      { return u.ID }
func (u *User) SetPrimaryKey(id int64) { u.ID = id }

func (u *User) Columns() []string {
	return []string{"username", "email", "about_me", "last_seen"}
}

func (u *User) Values() []any {
	return []any{u.Username, u.Email, u.AboutMe, formatTime(u.LastSeen)}
}

func (u *User) ScanFrom(row store.Scanner) error {
	var lastSeen string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.AboutMe, &lastSeen); err != nil {
		return err
	}
	var err error
	u.LastSeen, err = parseTime(lastSeen)
	return err
}

// Validate checks the user's fields against the column limits.
func (u *User) Validate() error {
	switch {
	case strings.TrimSpace(u.Username) == "":
		return fmt.Errorf("username is required")
	case utf8.RuneCountInString(u.Username) > MaxUsernameLen:
		return fmt.Errorf("username is longer than %d characters", MaxUsernameLen)
	case !strings.Contains(u.Email, "@"):
		return fmt.Errorf("email %q is not valid", u.Email)
	case utf8.RuneCountInString(u.Email) > MaxEmailLen:
		return fmt.Errorf("email is longer than %d characters", MaxEmailLen)
	case utf8.RuneCountInString(u.AboutMe) > MaxAboutLen:
		return fmt.Errorf("about_me is longer than %d characters", MaxAboutLen)
	}
	return nil
}

// Post is a short public status update. Its body is full-text searchable.
type Post struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int64     `json:"user_id"`
	Language  string    `json:"language,omitempty"`
}

// NewPost returns an unsaved post by userID, stamped now.
func NewPost(userID int64, body string) *Post {
	return &Post{UserID: userID, Body: body, Timestamp: time.Now().UTC()}
}

// Validate checks the post's fields against the column limits.
func (p *Post) Validate() error {
	switch {
	case strings.TrimSpace(p.Body) == "":
		return fmt.Errorf("body is required")
	case utf8.RuneCountInString(p.Body) > MaxBodyLen:
		return fmt.Errorf("body is longer than %d characters", MaxBodyLen)
	case len(p.Language) > MaxLanguageLen:
		return fmt.Errorf("language code %q is longer than %d characters", p.Language, MaxLanguageLen)
	case p.UserID == 0:
		return fmt.Errorf("user_id is required")
	}
	return nil
}

func (p *Post) Table() string          { return PostTable }
func (p *Post) PrimaryKey() int64      { return p.ID }
func (p *Post) SetPrimaryKey(id int64) { p.ID = id }

func (p *Post) Columns() []string {
	return []string{"body", "timestamp", "user_id", "language"}
}

func (p *Post) Values() []any {
	return []any{p.Body, formatTime(p.Timestamp), p.UserID, p.Language}
}

func (p *Post) ScanFrom(row store.Scanner) error {
	var ts string
	if err := row.Scan(&p.ID, &p.Body, &ts, &p.UserID, &p.Language); err != nil {
		return err
	}
	var err error
	p.Timestamp, err = parseTime(ts)
	return err
}

var postSearchFields = []string{"body"}

// SearchableFields lists the fields copied into the search index.
func (p *Post) SearchableFields() []string { return postSearchFields }

// SearchField returns the value of a searchable field.
func (p *Post) SearchField(name string) (any, bool) {
	switch name {
	case "body":
		return p.Body, true
	default:
		return nil, false
	}
}

// Message is a private message between two users. Messages are stored but
// never indexed.
type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
}

func (m *Message) Table() string          { return MessageTable }
func (m *Message) PrimaryKey() int64      { return m.ID }
func (m *Message) SetPrimaryKey(id int64) { m.ID = id }

func (m *Message) Columns() []string {
	return []string{"sender_id", "recipient_id", "body", "timestamp"}
}

func (m *Message) Values() []any {
	return []any{m.SenderID, m.RecipientID, m.Body, formatTime(m.Timestamp)}
}

func (m *Message) ScanFrom(row store.Scanner) error {
	var ts string
	if err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &ts); err != nil {
		return err
	}
	var err error
	m.Timestamp, err = parseTime(ts)
	return err
}
