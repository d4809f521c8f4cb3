package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-whiteboard/internal/testutil"
	"github.com/npezzotti/go-whiteboard/internal/types"
)

func Test_parseColor(t *testing.T) {
	tcases := []struct {
		in       string
		expected rgb
	}{
		{in: "#000000", expected: rgb{}},
		{in: "#ff8000", expected: rgb{r: 255, g: 128}},
		{in: "#0f0", expected: rgb{g: 255}},
		{in: "1e90ff", expected: rgb{r: 30, g: 144, b: 255}},
		{in: "red", expected: rgb{}},
		{in: "#zzzzzz", expected: rgb{}},
		{in: "", expected: rgb{}},
	}

	for _, tc := range tcases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseColor(tc.in))
		})
	}
}

func TestWritePDF(t *testing.T) {
	board := types.Board{
		RoomId: "R",
		Elements: []types.Element{
			{Type: types.ElementPath, Points: []float64{0, 0, 30, 30, 60, 0}, Color: "#ff0000", Thickness: 3},
			{Type: types.ElementRectangle, X: testutil.Float(10), Y: testutil.Float(10), Width: testutil.Float(90), Height: testutil.Float(45)},
			{Type: types.ElementCircle, X: testutil.Float(150), Y: testutil.Float(150), Radius: testutil.Float(30), Color: "#00f"},
			{Type: types.ElementText, X: testutil.Float(30), Y: testutil.Float(200), Text: "café", FontSize: 24},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, board))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")), "expected a PDF document")
}

func TestWritePDFEmptyBoard(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, types.Board{RoomId: "R"}))
	assert.NotZero(t, buf.Len())
}
