package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	roomColumns    = "r.id, r.external_id, r.name, r.creator_id, a.username AS creator_username, r.created_at, r.updated_at"
	boardReturn    = "RETURNING id, room_id, seq_id, element_count, last_updated_by, created_at, updated_at"
	elementColumns = "id, board_id, seq_id, element_id, data, created_by, created_at"
)

const pqUniqueViolation = "23505"

// ErrDuplicate is returned when an insert collides with a unique key, such as
// registering an email address twice.
var ErrDuplicate = errors.New("duplicate key")

type PgWhiteboardRepository struct {
	conn *sqlx.DB
}

func NewPgWhiteboardRepository(dsn string) (*PgWhiteboardRepository, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &PgWhiteboardRepository{conn: db}, nil
}

func (db *PgWhiteboardRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgWhiteboardRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgWhiteboardRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	var u User
	err := db.conn.GetContext(ctx, &u,
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email, password_hash, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return u, fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Message)
	}

	return u, err
}

func (db *PgWhiteboardRepository) GetAccountById(ctx context.Context, accountId int) (User, error) {
	var u User
	err := db.conn.GetContext(ctx, &u,
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	return u, err
}

func (db *PgWhiteboardRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := db.conn.GetContext(ctx, &u,
		"SELECT id, username, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	return u, err
}

// CreateRoom inserts the room and its creator as a participant with write
// access in one transaction.
func (db *PgWhiteboardRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return Room{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var room Room
	err = tx.GetContext(ctx, &room,
		"INSERT INTO rooms (external_id, name, creator_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, external_id, name, creator_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.CreatorId,
		now,
	)
	if err != nil {
		return Room{}, fmt.Errorf("insert room: %w", err)
	}

	var p Participant
	err = tx.GetContext(ctx, &p,
		"INSERT INTO participants (room_id, account_id, can_write, created_at, updated_at) "+
			"VALUES ($1, $2, TRUE, $3, $3) RETURNING room_id, account_id, can_write, created_at, updated_at",
		room.Id,
		params.CreatorId,
		now,
	)
	if err != nil {
		return Room{}, fmt.Errorf("insert creator participant: %w", err)
	}

	if err := tx.GetContext(ctx, &room.CreatorUsername,
		"SELECT username FROM accounts WHERE id = $1", params.CreatorId); err != nil {
		return Room{}, fmt.Errorf("get creator: %w", err)
	}
	p.Username = room.CreatorUsername
	room.Participants = []Participant{p}

	if err := tx.Commit(); err != nil {
		return Room{}, fmt.Errorf("commit transaction: %w", err)
	}

	return room, nil
}

func (db *PgWhiteboardRepository) GetRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	var room Room
	err := db.conn.GetContext(ctx, &room,
		"SELECT "+roomColumns+" FROM rooms r JOIN accounts a ON a.id = r.creator_id "+
			"WHERE r.external_id = $1 LIMIT 1",
		externalId,
	)

	return room, err
}

func (db *PgWhiteboardRepository) GetRoomWithParticipants(ctx context.Context, roomId int) (Room, error) {
	var room Room
	err := db.conn.GetContext(ctx, &room,
		"SELECT "+roomColumns+" FROM rooms r JOIN accounts a ON a.id = r.creator_id "+
			"WHERE r.id = $1 LIMIT 1",
		roomId,
	)
	if err != nil {
		return Room{}, err
	}

	err = db.conn.SelectContext(ctx, &room.Participants,
		"SELECT p.room_id, p.account_id, a.username, p.can_write, p.created_at, p.updated_at "+
			"FROM participants p JOIN accounts a ON a.id = p.account_id "+
			"WHERE p.room_id = $1 ORDER BY p.created_at",
		roomId,
	)
	if err != nil {
		return Room{}, fmt.Errorf("select participants: %w", err)
	}

	return room, nil
}

// ListRoomsForAccount returns every room the account participates in, most
// recently updated first, with participants loaded.
func (db *PgWhiteboardRepository) ListRoomsForAccount(ctx context.Context, accountId int) ([]Room, error) {
	var rooms []Room
	err := db.conn.SelectContext(ctx, &rooms,
		"SELECT "+roomColumns+" FROM rooms r "+
			"JOIN accounts a ON a.id = r.creator_id "+
			"JOIN participants me ON me.room_id = r.id AND me.account_id = $1 "+
			"ORDER BY r.updated_at DESC",
		accountId,
	)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	if len(rooms) == 0 {
		return rooms, nil
	}

	ids := make([]int64, len(rooms))
	byId := make(map[int]int, len(rooms))
	for i, r := range rooms {
		ids[i] = int64(r.Id)
		byId[r.Id] = i
	}

	var participants []Participant
	err = db.conn.SelectContext(ctx, &participants,
		"SELECT p.room_id, p.account_id, a.username, p.can_write, p.created_at, p.updated_at "+
			"FROM participants p JOIN accounts a ON a.id = p.account_id "+
			"WHERE p.room_id = ANY($1) ORDER BY p.created_at",
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}

	for _, p := range participants {
		i := byId[p.RoomId]
		rooms[i].Participants = append(rooms[i].Participants, p)
	}

	return rooms, nil
}

func (db *PgWhiteboardRepository) GetParticipant(ctx context.Context, roomId, accountId int) (Participant, error) {
	var p Participant
	err := db.conn.GetContext(ctx, &p,
		"SELECT p.room_id, p.account_id, a.username, p.can_write, p.created_at, p.updated_at "+
			"FROM participants p JOIN accounts a ON a.id = p.account_id "+
			"WHERE p.room_id = $1 AND p.account_id = $2",
		roomId,
		accountId,
	)

	return p, err
}

// AddParticipant is idempotent and never touches can_write of an existing row.
func (db *PgWhiteboardRepository) AddParticipant(ctx context.Context, roomId, accountId int) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO participants (room_id, account_id, can_write, created_at, updated_at) "+
			"VALUES ($1, $2, FALSE, $3, $3) ON CONFLICT (room_id, account_id) DO NOTHING",
		roomId,
		accountId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgWhiteboardRepository) SetParticipantWrite(ctx context.Context, roomId, accountId int, canWrite bool) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE participants SET can_write = $3, updated_at = $4 "+
			"WHERE room_id = $1 AND account_id = $2",
		roomId,
		accountId,
		canWrite,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgWhiteboardRepository) GetOrCreateBoard(ctx context.Context, roomId int) (Board, error) {
	if _, err := db.conn.ExecContext(ctx,
		"INSERT INTO boards (room_id, created_at, updated_at) VALUES ($1, $2, $2) "+
			"ON CONFLICT (room_id) DO NOTHING",
		roomId,
		time.Now().UTC(),
	); err != nil {
		return Board{}, err
	}

	var b Board
	err := db.conn.GetContext(ctx, &b,
		"SELECT id, room_id, seq_id, element_count, last_updated_by, created_at, updated_at "+
			"FROM boards WHERE room_id = $1",
		roomId,
	)

	return b, err
}

func (db *PgWhiteboardRepository) GetBoardElements(ctx context.Context, boardId int) ([]BoardElement, error) {
	elements := make([]BoardElement, 0)
	err := db.conn.SelectContext(ctx, &elements,
		"SELECT "+elementColumns+" FROM board_elements "+
			"WHERE board_id = $1 ORDER BY seq_id",
		boardId,
	)

	return elements, err
}

// AppendElement creates the board lazily and assigns the next sequence number.
// The upsert holds the board row lock until commit, serializing concurrent
// appends to the same board. An element id that is already on the board is
// not inserted again; the stored element is returned instead.
func (db *PgWhiteboardRepository) AppendElement(ctx context.Context, roomId, accountId int, elementId string, data []byte) (Board, BoardElement, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return Board{}, BoardElement{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var b Board
	err = tx.GetContext(ctx, &b,
		"INSERT INTO boards (room_id, seq_id, element_count, last_updated_by, created_at, updated_at) "+
			"VALUES ($1, 1, 1, $2, $3, $3) "+
			"ON CONFLICT (room_id) DO UPDATE SET seq_id = boards.seq_id + 1, "+
			"element_count = boards.element_count + 1, "+
			"last_updated_by = EXCLUDED.last_updated_by, updated_at = EXCLUDED.updated_at "+
			boardReturn,
		roomId,
		accountId,
		now,
	)
	if err != nil {
		return Board{}, BoardElement{}, fmt.Errorf("upsert board: %w", err)
	}

	var el BoardElement
	err = tx.GetContext(ctx, &el,
		"INSERT INTO board_elements (board_id, seq_id, element_id, data, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (board_id, element_id) DO NOTHING "+
			"RETURNING "+elementColumns,
		b.Id,
		b.SeqId,
		elementId,
		data,
		accountId,
		now,
	)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return db.storedElement(ctx, roomId, elementId)
	}
	if err != nil {
		return Board{}, BoardElement{}, fmt.Errorf("insert element: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Board{}, BoardElement{}, fmt.Errorf("commit transaction: %w", err)
	}

	return b, el, nil
}

func (db *PgWhiteboardRepository) storedElement(ctx context.Context, roomId int, elementId string) (Board, BoardElement, error) {
	var b Board
	err := db.conn.GetContext(ctx, &b,
		"SELECT id, room_id, seq_id, element_count, last_updated_by, created_at, updated_at "+
			"FROM boards WHERE room_id = $1",
		roomId,
	)
	if err != nil {
		return Board{}, BoardElement{}, fmt.Errorf("get board: %w", err)
	}

	var el BoardElement
	err = db.conn.GetContext(ctx, &el,
		"SELECT "+elementColumns+" FROM board_elements WHERE board_id = $1 AND element_id = $2",
		b.Id,
		elementId,
	)
	if err != nil {
		return Board{}, BoardElement{}, fmt.Errorf("get element: %w", err)
	}

	return b, el, nil
}

// ClearBoard removes every element but leaves seq_id untouched.
func (db *PgWhiteboardRepository) ClearBoard(ctx context.Context, roomId, accountId int) (Board, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return Board{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var b Board
	err = tx.GetContext(ctx, &b,
		"INSERT INTO boards (room_id, last_updated_by, created_at, updated_at) VALUES ($1, $2, $3, $3) "+
			"ON CONFLICT (room_id) DO UPDATE SET element_count = 0, "+
			"last_updated_by = EXCLUDED.last_updated_by, updated_at = EXCLUDED.updated_at "+
			boardReturn,
		roomId,
		accountId,
		time.Now().UTC(),
	)
	if err != nil {
		return Board{}, fmt.Errorf("upsert board: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM board_elements WHERE board_id = $1", b.Id); err != nil {
		return Board{}, fmt.Errorf("delete elements: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Board{}, fmt.Errorf("commit transaction: %w", err)
	}

	return b, nil
}

// ReplaceBoard swaps the whole element list. New elements continue the
// board's sequence rather than restarting it.
func (db *PgWhiteboardRepository) ReplaceBoard(ctx context.Context, roomId, accountId int, elements [][]byte) (Board, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return Board{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var b Board
	err = tx.GetContext(ctx, &b,
		"INSERT INTO boards (room_id, seq_id, element_count, last_updated_by, created_at, updated_at) "+
			"VALUES ($1, $2, $5, $3, $4, $4) "+
			"ON CONFLICT (room_id) DO UPDATE SET seq_id = boards.seq_id + $2, element_count = $5, "+
			"last_updated_by = EXCLUDED.last_updated_by, updated_at = EXCLUDED.updated_at "+
			boardReturn,
		roomId,
		int64(len(elements)),
		accountId,
		now,
		len(elements),
	)
	if err != nil {
		return Board{}, fmt.Errorf("upsert board: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM board_elements WHERE board_id = $1", b.Id); err != nil {
		return Board{}, fmt.Errorf("delete elements: %w", err)
	}

	first := b.SeqId - int64(len(elements)) + 1
	for i, data := range elements {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO board_elements (board_id, seq_id, data, created_by, created_at) "+
				"VALUES ($1, $2, $3, $4, $5)",
			b.Id,
			first+int64(i),
			data,
			accountId,
			now,
		); err != nil {
			return Board{}, fmt.Errorf("insert element %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Board{}, fmt.Errorf("commit transaction: %w", err)
	}

	return b, nil
}
