package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-whiteboard/internal/testutil"
	"github.com/npezzotti/go-whiteboard/internal/types"
)

func TestServerMessageEncoding(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tcases := []struct {
		name     string
		msg      *ServerMessage
		expected string
	}{
		{
			name: "empty board",
			msg:  NewLoadBoard(types.Board{RoomId: "R"}),
			expected: `{"event":"load-board","payload":{"roomId":"R","elements":[],"seq":0},
				"timestamp":"2024-01-02T03:04:05Z"}`,
		},
		{
			name: "board with text",
			msg: NewLoadBoard(types.Board{RoomId: "R", SeqId: 2, Elements: []types.Element{
				{Seq: 2, Type: types.ElementText, X: testutil.Float(5), Y: testutil.Float(6), Text: "hi", Color: "#000000", FontSize: 16},
			}}),
			expected: `{"event":"load-board","payload":{"roomId":"R","seq":2,"elements":[
				{"seq":2,"type":"text","x":5,"y":6,"text":"hi","color":"#000000","fontSize":16}]},
				"timestamp":"2024-01-02T03:04:05Z"}`,
		},
		{
			name:     "user joined",
			msg:      NewUserJoined(4, "R", nil),
			expected: `{"event":"user-joined","payload":{"userId":4,"roomId":"R"},"timestamp":"2024-01-02T03:04:05Z"}`,
		},
		{
			name:     "clear board has no payload",
			msg:      NewClearBoard(),
			expected: `{"event":"clear-board","timestamp":"2024-01-02T03:04:05Z"}`,
		},
		{
			name: "permission denied names the event",
			msg:  ErrPermissionDenied(EventDraw, msgDrawDenied),
			expected: `{"event":"permission-denied","payload":{"message":"You do not have write access to this board.","event":"draw"},
				"timestamp":"2024-01-02T03:04:05Z"}`,
		},
		{
			name:     "board error",
			msg:      ErrBoard("Room not found."),
			expected: `{"event":"board-error","payload":{"message":"Room not found."},"timestamp":"2024-01-02T03:04:05Z"}`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			tc.msg.Timestamp = ts
			bytes, err := json.Marshal(tc.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(bytes))
		})
	}
}

func TestSkipClientIsNotEncoded(t *testing.T) {
	msg := NewDraw(1, types.Element{Type: types.ElementPath}, &Client{id: "c1"})

	bytes, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(bytes), "c1")
}

func TestNow(t *testing.T) {
	now := Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, now, now.Round(time.Millisecond))
}
