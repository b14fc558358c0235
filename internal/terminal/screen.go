package terminal

import "strings"

// Field describes one input field reported by the host.
type Field struct {
	Row       int  `json:"row"`
	Col       int  `json:"col"`
	Length    int  `json:"length"`
	Protected bool `json:"protected"`
}

// Screen is a decoded character grid plus cursor position. A Screen is a
// value: once published by a session it is never mutated, so any number of
// readers can share it without locking. Version is assigned by the owning
// session and strictly increases across publications.
type Screen struct {
	Rows      int      `json:"rows"`
	Cols      int      `json:"cols"`
	CursorRow int      `json:"cursor_row"`
	CursorCol int      `json:"cursor_col"`
	Lines     []string `json:"lines"`
	Fields    []Field  `json:"fields,omitempty"`
	Version   int64    `json:"version"`
}

// Text renders the full screen as rows joined by newlines.
func (s Screen) Text() string {
	return strings.Join(s.Lines, "\n")
}

// Contains reports whether text appears anywhere in the rendered screen.
func (s Screen) Contains(text string) bool {
	if text == "" {
		return true
	}
	return strings.Contains(s.Text(), text)
}

// InBounds reports whether (row, col) is a valid cursor position.
func (s Screen) InBounds(row, col int) bool {
	return row >= 0 && row < s.Rows && col >= 0 && col < s.Cols
}

// Snapshot returns a deep copy safe to hold across later mutations of the
// source grid.
func (s Screen) Snapshot() Screen {
	out := s
	out.Lines = make([]string, len(s.Lines))
	copy(out.Lines, s.Lines)
	if len(s.Fields) > 0 {
		out.Fields = make([]Field, len(s.Fields))
		copy(out.Fields, s.Fields)
	}
	return out
}

// SameContent reports whether two screens render identically, ignoring the
// version counter. Used by refresh loops to suppress no-op publications.
func (s Screen) SameContent(other Screen) bool {
	if s.Rows != other.Rows || s.Cols != other.Cols {
		return false
	}
	if s.CursorRow != other.CursorRow || s.CursorCol != other.CursorCol {
		return false
	}
	if len(s.Lines) != len(other.Lines) {
		return false
	}
	for i := range s.Lines {
		if s.Lines[i] != other.Lines[i] {
			return false
		}
	}
	return true
}
