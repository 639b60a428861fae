package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/unithread/chat-service/internal/config"
	"github.com/unithread/chat-service/internal/domain"
)

// CassandraMessageRepository implements MessageRepository on a table
// clustered newest-first per room:
//
//	CREATE TABLE chat_messages (
//	    room_id      text,
//	    created_at   timestamp,
//	    id           text,
//	    sender_id    text,
//	    content      text,
//	    content_type text,
//	    unread_count int,
//	    PRIMARY KEY ((room_id), created_at, id)
//	) WITH CLUSTERING ORDER BY (created_at DESC, id DESC);
type CassandraMessageRepository struct {
	session *gocql.Session
}

// NewCassandraMessageRepository connects to the Cassandra cluster.
func NewCassandraMessageRepository(cfg config.CassandraConfig) (*CassandraMessageRepository, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout

	switch cfg.Consistency {
	case "LOCAL_ONE":
		cluster.Consistency = gocql.LocalOne
	case "LOCAL_QUORUM":
		cluster.Consistency = gocql.LocalQuorum
	case "ONE":
		cluster.Consistency = gocql.One
	case "QUORUM":
		cluster.Consistency = gocql.Quorum
	default:
		cluster.Consistency = gocql.LocalQuorum
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	return &CassandraMessageRepository{session: session}, nil
}

// Insert appends a message. Messages are never updated afterwards except
// for their residual unread count.
func (r *CassandraMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	err := r.session.Query(`
		INSERT INTO chat_messages (room_id, created_at, id, sender_id, content, content_type, unread_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.RoomID, msg.CreatedAt, msg.ID, msg.SenderID, msg.Content, string(msg.ContentType), msg.UnreadCount,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// ListByRoom returns one page of messages, newest first.
func (r *CassandraMessageRepository) ListByRoom(ctx context.Context, roomID string, page, size int) ([]domain.Message, error) {
	query := r.session.Query(`
		SELECT id, room_id, sender_id, content, content_type, unread_count, created_at
		FROM chat_messages
		WHERE room_id = ?
		LIMIT ?`,
		roomID, (page+1)*size,
	).WithContext(ctx)

	return r.scanPage(query, page*size)
}

// ListByRoomAfter returns one page of messages created strictly after the
// given time, newest first.
func (r *CassandraMessageRepository) ListByRoomAfter(ctx context.Context, roomID string, after time.Time, page, size int) ([]domain.Message, error) {
	query := r.session.Query(`
		SELECT id, room_id, sender_id, content, content_type, unread_count, created_at
		FROM chat_messages
		WHERE room_id = ? AND created_at > ?
		LIMIT ?`,
		roomID, after, (page+1)*size,
	).WithContext(ctx)

	return r.scanPage(query, page*size)
}

// Recent returns the most recent messages of a room, newest first.
func (r *CassandraMessageRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	query := r.session.Query(`
		SELECT id, room_id, sender_id, content, content_type, unread_count, created_at
		FROM chat_messages
		WHERE room_id = ?
		LIMIT ?`,
		roomID, limit,
	).WithContext(ctx)

	return r.scanPage(query, 0)
}

// DecrementUnread lowers the residual unread count of each message by one.
// The updates carry the new absolute value and are order-independent, so an
// unlogged batch is sufficient.
func (r *CassandraMessageRepository) DecrementUnread(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	batch := r.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for i := range msgs {
		msgs[i].UnreadCount--
		batch.Query(`
			UPDATE chat_messages SET unread_count = ?
			WHERE room_id = ? AND created_at = ? AND id = ?`,
			msgs[i].UnreadCount, msgs[i].RoomID, msgs[i].CreatedAt, msgs[i].ID,
		)
	}

	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to decrement unread counts: %w", err)
	}
	return nil
}

func (r *CassandraMessageRepository) scanPage(query *gocql.Query, skip int) ([]domain.Message, error) {
	iter := query.Iter()

	var messages []domain.Message
	var msg domain.Message
	var contentType string
	n := 0

	for iter.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &contentType, &msg.UnreadCount, &msg.CreatedAt) {
		if n >= skip {
			msg.ContentType = domain.ContentType(contentType)
			messages = append(messages, msg)
		}
		n++
		msg = domain.Message{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// Close shuts down the Cassandra session.
func (r *CassandraMessageRepository) Close() error {
	r.session.Close()
	return nil
}
