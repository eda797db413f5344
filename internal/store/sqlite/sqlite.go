package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-live/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests pass ApplySchema with ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== MeetingStore implementation ====

const meetingColumns = `id, space_id, discussion_id, status, external_room_id, created_at, updated_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row rowScanner) (*store.Meeting, error) {
	var m store.Meeting
	var status string
	var externalRoomID sql.NullString
	var endedAt sql.NullTime

	if err := row.Scan(
		&m.ID,
		&m.SpaceID,
		&m.DiscussionID,
		&status,
		&externalRoomID,
		&m.CreatedAt,
		&m.UpdatedAt,
		&endedAt,
	); err != nil {
		return nil, err
	}

	m.Status = store.MeetingStatus(status)
	if externalRoomID.Valid {
		m.ExternalRoomID = &externalRoomID.String
	}
	if endedAt.Valid {
		m.EndedAt = &endedAt.Time
	}
	return &m, nil
}

// CreateMeeting creates a new meeting.
func (s *SQLiteStore) CreateMeeting(ctx context.Context, m *store.Meeting) error {
	query := `
		INSERT INTO meetings (id, space_id, discussion_id, status, external_room_id)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.SpaceID,
		m.DiscussionID,
		string(m.Status),
		m.ExternalRoomID,
	)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

// UpdateMeeting updates an existing meeting.
func (s *SQLiteStore) UpdateMeeting(ctx context.Context, m *store.Meeting) error {
	query := `
		UPDATE meetings
		SET status = ?, external_room_id = ?, updated_at = CURRENT_TIMESTAMP, ended_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(m.Status),
		m.ExternalRoomID,
		m.EndedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("meeting %s: %w", m.ID, store.ErrNotFound)
	}
	return nil
}

// GetMeeting retrieves a meeting by ID.
func (s *SQLiteStore) GetMeeting(ctx context.Context, id string) (*store.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE id = ?`

	m, err := scanMeeting(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("meeting %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query meeting: %w", err)
	}
	return m, nil
}

// GetActiveMeeting returns the active meeting of a discussion, or nil if none exists.
func (s *SQLiteStore) GetActiveMeeting(ctx context.Context, spaceID, discussionID string) (*store.Meeting, error) {
	query := `
		SELECT ` + meetingColumns + `
		FROM meetings
		WHERE space_id = ? AND discussion_id = ? AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`
	m, err := scanMeeting(s.db.QueryRowContext(ctx, query, spaceID, discussionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No active meeting
	}
	if err != nil {
		return nil, fmt.Errorf("query active meeting: %w", err)
	}
	return m, nil
}

// ==== ParticipantStore implementation ====

const participantColumns = `id, meeting_id, user_id, username, attendee_id, registered_at, joined_at, left_at`

func scanParticipant(row rowScanner) (*store.MeetingParticipant, error) {
	var p store.MeetingParticipant
	var attendeeID sql.NullString
	var joinedAt, leftAt sql.NullTime

	if err := row.Scan(
		&p.ID,
		&p.MeetingID,
		&p.UserID,
		&p.Username,
		&attendeeID,
		&p.RegisteredAt,
		&joinedAt,
		&leftAt,
	); err != nil {
		return nil, err
	}

	if attendeeID.Valid {
		p.AttendeeID = &attendeeID.String
	}
	if joinedAt.Valid {
		p.JoinedAt = &joinedAt.Time
	}
	if leftAt.Valid {
		p.LeftAt = &leftAt.Time
	}
	return &p, nil
}

// AddParticipant registers a user for a meeting.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *store.MeetingParticipant) error {
	query := `
		INSERT INTO meeting_participants (meeting_id, user_id, username, attendee_id, joined_at, left_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, p.MeetingID, p.UserID, p.Username, p.AttendeeID, p.JoinedAt, p.LeftAt)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// UpdateParticipant updates a participant record.
func (s *SQLiteStore) UpdateParticipant(ctx context.Context, p *store.MeetingParticipant) error {
	query := `
		UPDATE meeting_participants
		SET username = ?, attendee_id = ?, joined_at = ?, left_at = ?
		WHERE meeting_id = ? AND user_id = ?
	`
	_, err := s.db.ExecContext(ctx, query, p.Username, p.AttendeeID, p.JoinedAt, p.LeftAt, p.MeetingID, p.UserID)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves a participant from a meeting.
func (s *SQLiteStore) GetParticipant(ctx context.Context, meetingID, userID string) (*store.MeetingParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM meeting_participants WHERE meeting_id = ? AND user_id = ?`

	p, err := scanParticipant(s.db.QueryRowContext(ctx, query, meetingID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("participant %s: %w", userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query participant: %w", err)
	}
	return p, nil
}

// ListParticipants lists participants of a meeting.
func (s *SQLiteStore) ListParticipants(ctx context.Context, meetingID string, joinedOnly bool) ([]*store.MeetingParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM meeting_participants WHERE meeting_id = ?`
	if joinedOnly {
		query += ` AND joined_at IS NOT NULL AND left_at IS NULL AND attendee_id IS NOT NULL`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []*store.MeetingParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
