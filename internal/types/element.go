package types

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ElementType discriminates the kinds of drawing elements stored in a board.
type ElementType string

const (
	ElementPath      ElementType = "path"
	ElementText      ElementType = "text"
	ElementRectangle ElementType = "rectangle"
	ElementCircle    ElementType = "circle"
)

const (
	DefaultColor     = "#000000"
	DefaultThickness = 2
	DefaultFontSize  = 16

	maxPoints     = 20000
	maxTextLength = 4096
	maxIdLength   = 64
)

// ErrInvalidElement is returned for drawing payloads that must never reach the board log.
var ErrInvalidElement = errors.New("invalid element")

// Element is one entry of the append-only board log. Which attributes are
// meaningful depends on Type.
type Element struct {
	// Id identifies the element across retried appends. The server assigns
	// one when the client does not.
	Id        string      `json:"id,omitempty"`
	Seq       int64       `json:"seq,omitempty"`
	Type      ElementType `json:"type"`
	Points    []float64   `json:"points,omitempty"`
	Color     string      `json:"color,omitempty"`
	Thickness float64     `json:"thickness,omitempty"`
	X         *float64    `json:"x,omitempty"`
	Y         *float64    `json:"y,omitempty"`
	Width     *float64    `json:"width,omitempty"`
	Height    *float64    `json:"height,omitempty"`
	Radius    *float64    `json:"radius,omitempty"`
	Text      string      `json:"text,omitempty"`
	FontSize  float64     `json:"fontSize,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidElement, fmt.Sprintf(format, args...))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func requireCoord(name string, v *float64) error {
	if v == nil {
		return invalid("%s is required", name)
	}
	if !finite(*v) {
		return invalid("%s must be a finite number", name)
	}
	return nil
}

func requirePositive(name string, v *float64) error {
	if err := requireCoord(name, v); err != nil {
		return err
	}
	if *v <= 0 {
		return invalid("%s must be positive", name)
	}
	return nil
}

// Validate checks the element against the rules of its type.
func (e *Element) Validate() error {
	if len(e.Id) > maxIdLength {
		return invalid("id is longer than %d characters", maxIdLength)
	}
	if e.Thickness < 0 || !finite(e.Thickness) {
		return invalid("thickness must be a positive number")
	}
	if len(e.Color) > 32 || strings.ContainsAny(e.Color, " \t\r\n") {
		return invalid("malformed color %q", e.Color)
	}

	switch e.Type {
	case ElementPath:
		if len(e.Points) < 4 {
			return invalid("path needs at least 2 points, got %d values", len(e.Points))
		}
		if len(e.Points)%2 != 0 {
			return invalid("path points must alternate x,y, got odd length %d", len(e.Points))
		}
		if len(e.Points) > maxPoints {
			return invalid("path has too many points")
		}
		for _, p := range e.Points {
			if !finite(p) {
				return invalid("path points must be finite numbers")
			}
		}
	case ElementText:
		if err := requireCoord("x", e.X); err != nil {
			return err
		}
		if err := requireCoord("y", e.Y); err != nil {
			return err
		}
		if strings.TrimSpace(e.Text) == "" {
			return invalid("text is required")
		}
		if len(e.Text) > maxTextLength {
			return invalid("text is too long")
		}
		if e.FontSize < 0 || !finite(e.FontSize) {
			return invalid("fontSize must be positive")
		}
	case ElementRectangle:
		if err := requireCoord("x", e.X); err != nil {
			return err
		}
		if err := requireCoord("y", e.Y); err != nil {
			return err
		}
		if err := requirePositive("width", e.Width); err != nil {
			return err
		}
		if err := requirePositive("height", e.Height); err != nil {
			return err
		}
	case ElementCircle:
		if err := requireCoord("x", e.X); err != nil {
			return err
		}
		if err := requireCoord("y", e.Y); err != nil {
			return err
		}
		if err := requirePositive("radius", e.Radius); err != nil {
			return err
		}
	case "":
		return invalid("type is required")
	default:
		return invalid("unknown element type %q", e.Type)
	}

	return nil
}

// Normalize fills in defaults so stored elements are fully specified.
func (e *Element) Normalize() {
	if e.Color == "" {
		e.Color = DefaultColor
	}
	switch e.Type {
	case ElementText:
		if e.FontSize == 0 {
			e.FontSize = DefaultFontSize
		}
	default:
		if e.Thickness == 0 {
			e.Thickness = DefaultThickness
		}
	}
}
