package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/npezzotti/go-whiteboard/internal/database"
	"github.com/npezzotti/go-whiteboard/internal/export"
	"github.com/npezzotti/go-whiteboard/internal/server"
	"github.com/npezzotti/go-whiteboard/internal/types"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type JoinRoomRequest struct {
	RoomId string `json:"roomId"`
}

type SetPermissionsRequest struct {
	RoomId       string `json:"roomId"`
	TargetUserId int    `json:"targetUserId"`
	CanWrite     bool   `json:"canWrite"`
}

type SaveBoardRequest struct {
	Elements []types.Element `json:"elements"`
}

func (s *WhiteboardApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *WhiteboardApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Println(errResp.Error())
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func toRoom(r database.Room) types.Room {
	room := types.Room{
		Id:           r.Id,
		ExternalId:   r.ExternalId,
		Name:         r.Name,
		Creator:      types.User{Id: r.CreatorId, Username: r.CreatorUsername},
		Participants: make([]types.Participant, 0, len(r.Participants)),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}

	for _, p := range r.Participants {
		room.Participants = append(room.Participants, types.Participant{
			User:     types.User{Id: p.AccountId, Username: p.Username},
			CanWrite: p.CanWrite,
		})
	}

	return room
}

func (s *WhiteboardApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Println("health check:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// loadRoom returns the room with its participants, or sql.ErrNoRows.
func (s *WhiteboardApp) loadRoom(ctx context.Context, externalId string) (database.Room, error) {
	room, err := s.db.GetRoomByExternalId(ctx, externalId)
	if err != nil {
		return database.Room{}, err
	}

	return s.db.GetRoomWithParticipants(ctx, room.Id)
}

func (s *WhiteboardApp) writeRoom(w http.ResponseWriter, r *http.Request, externalId string, statusCode int) {
	room, err := s.loadRoom(r.Context(), externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, statusCode, toRoom(room))
}

func (s *WhiteboardApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		s.writeError(w, NewInternalServerError(err))
		return
	}

	newRoom, err := s.db.CreateRoom(r.Context(), database.CreateRoomParams{
		Name:       req.Name,
		CreatorId:  userId,
		ExternalId: sid,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, toRoom(newRoom))
}

func (s *WhiteboardApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	if err := s.perms.AddParticipant(r.Context(), req.RoomId, userId); err != nil {
		s.writeError(w, storeError(err))
		return
	}

	s.writeRoom(w, r, req.RoomId, http.StatusOK)
}

func (s *WhiteboardApp) setPermissions(w http.ResponseWriter, r *http.Request) {
	var req SetPermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomId == "" || req.TargetUserId == 0 {
		s.writeError(w, NewBadRequestError())
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	if err := s.perms.SetWrite(r.Context(), req.RoomId, userId, req.TargetUserId, req.CanWrite); err != nil {
		s.writeError(w, storeError(err))
		return
	}

	s.writeRoom(w, r, req.RoomId, http.StatusOK)
}

func (s *WhiteboardApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	dbRooms, err := s.db.ListRoomsForAccount(r.Context(), userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, room := range dbRooms {
		rooms = append(rooms, toRoom(room))
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *WhiteboardApp) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	room, err := s.loadRoom(r.Context(), r.PathValue("roomId"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	isParticipant := slices.ContainsFunc(room.Participants, func(p database.Participant) bool {
		return p.AccountId == userId
	})
	if !isParticipant {
		s.writeError(w, NewForbiddenError())
		return
	}

	s.writeJson(w, http.StatusOK, toRoom(room))
}

// requireParticipant writes an error response and returns false unless the
// requesting user participates in roomId.
func (s *WhiteboardApp) requireParticipant(w http.ResponseWriter, r *http.Request, roomId string) (int, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return 0, false
	}

	ok, err := s.perms.IsParticipant(r.Context(), roomId, userId)
	if err != nil {
		s.writeError(w, storeError(err))
		return 0, false
	}
	if !ok {
		s.writeError(w, NewForbiddenError())
		return 0, false
	}

	return userId, true
}

func (s *WhiteboardApp) getBoard(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")
	if _, ok := s.requireParticipant(w, r, roomId); !ok {
		return
	}

	board, err := s.boards.GetOrCreate(r.Context(), roomId)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	if board.Elements == nil {
		board.Elements = []types.Element{}
	}
	s.writeJson(w, http.StatusOK, board)
}

func (s *WhiteboardApp) saveBoard(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req SaveBoardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	board, err := s.wb.SaveBoard(r.Context(), r.PathValue("roomId"), userId, req.Elements)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	if board.Elements == nil {
		board.Elements = []types.Element{}
	}
	s.writeJson(w, http.StatusOK, board)
}

func (s *WhiteboardApp) exportBoard(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("roomId")
	if _, ok := s.requireParticipant(w, r, roomId); !ok {
		return
	}

	board, err := s.boards.GetOrCreate(r.Context(), roomId)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	var buf bytes.Buffer
	if err := export.WritePDF(&buf, board); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "board-"+roomId+".pdf"))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.log.Printf("write pdf: %v", err)
	}
}

// wsToken reads the token query parameter; browsers cannot set headers on
// the websocket handshake, so the cookie is the fallback.
func wsToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if c, err := r.Cookie(tokenCookieKey); err == nil {
		return c.Value
	}
	return ""
}

func (s *WhiteboardApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, err := s.tokens.ValidateToken(wsToken(r))
	if err != nil {
		s.log.Printf("ws handshake rejected: %v", err)
		s.writeError(w, NewUnauthorizedError())
		return
	}

	user, err := s.db.GetAccountById(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewUnauthorizedError())
		} else {
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(toUser(user), conn, s.wb, s.log)

	s.wb.RegisterClient(client)
	go client.Write()
	go client.Read()
}
