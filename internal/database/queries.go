package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	roomSelectQuery = "SELECT r.id, r.name, r.created_at, COUNT(m.id) FROM chatrooms r " +
		"LEFT JOIN messages m ON m.room_id = r.id "
	roomGroupBy = " GROUP BY r.id, r.name, r.created_at"
)

var _ ChatStore = (*PgChatStore)(nil)

func (db *PgChatStore) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx, roomSelectQuery+roomGroupBy+" ORDER BY r.created_at, r.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.Id, &room.Name, &room.CreatedAt, &room.MessageCount); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}

		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rooms, nil
}

func (db *PgChatStore) CreateRoom(ctx context.Context, name string) (Room, error) {
	id, err := newId(roomIdPrefix)
	if err != nil {
		return Room{}, err
	}

	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO chatrooms (id, name) VALUES ($1, $2) RETURNING id, name, created_at",
		id,
		name,
	)

	var room Room
	if err := res.Scan(&room.Id, &room.Name, &room.CreatedAt); err != nil {
		if isPqError(err, uniqueViolation) {
			return Room{}, ErrDuplicateName
		}
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatStore) GetRoom(ctx context.Context, id string) (Room, error) {
	row := db.conn.QueryRowContext(ctx, roomSelectQuery+"WHERE r.id = $1"+roomGroupBy, id)

	var room Room
	err := row.Scan(&room.Id, &room.Name, &room.CreatedAt, &room.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}

	return room, err
}

// DeleteRoom runs both deletions in a single transaction so a failure on the
// second step cannot leave an empty room behind.
func (db *PgChatStore) DeleteRoom(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE room_id = $1", id)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM chatrooms WHERE id = $1", id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = ErrNotFound
		return err
	}

	return tx.Commit()
}

func (db *PgChatStore) ListMessages(ctx context.Context, roomId string) ([]Message, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM chatrooms WHERE id = $1)",
		roomId,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, room_id, username, message, timestamp FROM messages "+
			"WHERE room_id = $1 ORDER BY timestamp ASC, seq ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.RoomId, &msg.Username, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

func (db *PgChatStore) AddMessage(ctx context.Context, roomId, username, text string) (Message, error) {
	id, err := newId(messageIdPrefix)
	if err != nil {
		return Message{}, err
	}

	// the insert only happens if the room exists at write time
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (id, room_id, username, message) "+
			"SELECT $1, $2, $3, $4 WHERE EXISTS (SELECT 1 FROM chatrooms WHERE id = $2) "+
			"RETURNING id, room_id, username, message, timestamp",
		id,
		roomId,
		username,
		text,
	)

	var msg Message
	err = res.Scan(&msg.Id, &msg.RoomId, &msg.Username, &msg.Content, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) || isPqError(err, foreignKeyViolation) {
		return Message{}, ErrRoomNotFound
	}

	return msg, err
}

func (db *PgChatStore) DeleteMessage(ctx context.Context, roomId, messageId, username string) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM messages WHERE id = $1 AND room_id = $2 AND username = $3",
		messageId,
		roomId,
		username,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}
