package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-groupridemtb/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrSelfMessage       = errors.New("cannot message yourself")
)

type Service struct {
	db  db.Querier
	now func() time.Time
	log *zap.Logger
}

func NewService(db db.Querier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, now: time.Now, log: log.Named("message")}
}

// Send stores a direct message. recipientEmail is returned so the caller can
// hand it to the notifier as a fallback address.
func (s *Service) Send(ctx context.Context, senderID string, req SendRequest) (msg DirectMessage, recipientEmail string, err error) {
	if senderID == req.RecipientID {
		return DirectMessage{}, "", ErrSelfMessage
	}
	msg = DirectMessage{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
	}
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(s.name,''), COALESCE(r.email,'')
		FROM users s, users r
		WHERE s.id=$1 AND r.id=$2
	`, senderID, req.RecipientID).Scan(&msg.SenderName, &recipientEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return DirectMessage{}, "", ErrRecipientNotFound
	}
	if err != nil {
		return DirectMessage{}, "", fmt.Errorf("send message: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO direct_messages (id, sender_id, recipient_id, content)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, msg.ID, msg.SenderID, msg.RecipientID, msg.Content).Scan(&msg.CreatedAt)
	if err != nil {
		return DirectMessage{}, "", fmt.Errorf("send message: %w", err)
	}
	return msg, recipientEmail, nil
}

// Conversation returns both directions between userID and otherID, oldest
// first, and marks the incoming side read.
func (s *Service) Conversation(ctx context.Context, userID, otherID string) ([]DirectMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.sender_id, COALESCE(u.name,''), m.recipient_id, m.content, m.read_at, m.created_at
		FROM direct_messages m JOIN users u ON u.id = m.sender_id
		WHERE (m.sender_id=$1 AND m.recipient_id=$2) OR (m.sender_id=$2 AND m.recipient_id=$1)
		ORDER BY m.created_at
	`, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}
	var msgs []DirectMessage
	for rows.Next() {
		var m DirectMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.RecipientID, &m.Content, &m.ReadAt, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("conversation: %w", err)
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE direct_messages SET read_at=$3
		WHERE sender_id=$2 AND recipient_id=$1 AND read_at IS NULL
	`, userID, otherID, s.now())
	if err != nil {
		s.log.Warn("mark direct messages read", zap.String("user", userID), zap.String("other", otherID), zap.Error(err))
	}
	return msgs, nil
}
