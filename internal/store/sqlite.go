package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) the database at dbPath and applies the
// schema.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation ON chat_messages(conversation_id);

	CREATE TABLE IF NOT EXISTS disease_detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL UNIQUE REFERENCES chat_messages(id) ON DELETE CASCADE,
		plant_type TEXT,
		disease_name TEXT,
		confidence REAL,
		detected_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_disease_detections_name ON disease_detections(disease_name);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation inserts a conversation with a fresh uuid.
func (s *SQLiteStore) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	c := &Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, c.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// GetConversation returns ErrNotFound when id is unknown.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations WHERE id = ?`, id)

	var c Conversation
	var createdAt int64
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes the conversation with its messages and
// detections. Unknown ids return ErrNotFound.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage stores msg and returns its id. A zero Timestamp means now.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg *ChatMessage) (int64, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (conversation_id, user_id, sender, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.UserID, msg.Sender, msg.Content, msg.Timestamp.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message id: %w", err)
	}
	msg.ID = id
	return id, nil
}

// ListMessages returns the conversation's messages in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, sender, content, timestamp FROM chat_messages WHERE conversation_id = ? ORDER BY id`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var ts int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Sender, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddDetection(ctx context.Context, d *Detection) error {
	if d.DetectedAt.IsZero() {
		d.DetectedAt = time.Now().UTC()
	}
	var conf any
	if d.Confidence != nil {
		conf = *d.Confidence
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO disease_detections (message_id, plant_type, disease_name, confidence, detected_at) VALUES (?, ?, ?, ?, ?)`,
		d.MessageID, d.PlantType, d.DiseaseName, conf, d.DetectedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("detection id: %w", err)
	}
	return nil
}

// GetDetection returns ErrNotFound when the message carries no detection.
func (s *SQLiteStore) GetDetection(ctx context.Context, messageID int64) (*Detection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT d.id, d.message_id, m.conversation_id, d.plant_type, d.disease_name, d.confidence, d.detected_at
		FROM disease_detections d JOIN chat_messages m ON m.id = d.message_id
		WHERE d.message_id = ?`,
		messageID)

	d, err := scanDetection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDetections returns every detection in the user's conversations, newest
// first.
func (s *SQLiteStore) ListDetections(ctx context.Context, userID string) ([]Detection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.message_id, m.conversation_id, d.plant_type, d.disease_name, d.confidence, d.detected_at
		FROM disease_detections d
		JOIN chat_messages m ON m.id = d.message_id
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = ?
		ORDER BY d.detected_at DESC, d.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetection(row rowScanner) (*Detection, error) {
	var d Detection
	var plant, name sql.NullString
	var conf sql.NullFloat64
	var detectedAt int64
	if err := row.Scan(&d.ID, &d.MessageID, &d.ConversationID, &plant, &name, &conf, &detectedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan detection row: %w", err)
	}
	d.PlantType = plant.String
	d.DiseaseName = name.String
	if conf.Valid {
		v := conf.Float64
		d.Confidence = &v
	}
	d.DetectedAt = time.UnixMilli(detectedAt).UTC()
	return &d, nil
}
