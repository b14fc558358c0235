// Package linemode implements terminal.Link for plain line-mode hosts over
// TCP or TLS. It keeps a fixed-size character grid: host output fills the
// grid left to right, line feeds advance and eventually scroll, and typed
// text is echoed locally before being sent. Richer protocols (3270 data
// stream) provide their own Link implementations.
package linemode

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tnpilot/tnpilot/internal/terminal"
)

const (
	DefaultRows = 24
	DefaultCols = 80
)

var (
	ErrNotConnected   = errors.New("link not connected")
	ErrUnsupportedKey = errors.New("key not supported in line mode")
)

type Options struct {
	Rows      int
	Cols      int
	TLSConfig *tls.Config // nil means a default config for the target host
}

// Dialer returns a terminal.Dialer producing line-mode links.
func Dialer(opts Options) terminal.Dialer {
	return func(host string, port int, useTLS bool) (terminal.Link, error) {
		return New(host, port, useTLS, opts), nil
	}
}

type Link struct {
	host   string
	port   int
	useTLS bool
	opts   Options

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	grid      []string
	cursorRow int
	cursorCol int
	readDone  chan struct{}
}

func New(host string, port int, useTLS bool, opts Options) *Link {
	if opts.Rows <= 0 {
		opts.Rows = DefaultRows
	}
	if opts.Cols <= 0 {
		opts.Cols = DefaultCols
	}
	return &Link{host: host, port: port, useTLS: useTLS, opts: opts}
}

func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil
	}

	addr := net.JoinHostPort(l.host, strconv.Itoa(l.port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	if l.useTLS {
		tlsConfig := l.opts.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: l.host}
		}
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return err
		}
		conn = tlsConn
	}

	l.conn = conn
	l.connected = true
	l.grid = blankGrid(l.opts.Rows, l.opts.Cols)
	l.cursorRow, l.cursorCol = 0, 0
	l.readDone = make(chan struct{})
	go l.readLoop(conn, l.readDone)
	return nil
}

func (l *Link) Disconnect() error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil
	}
	l.connected = false
	conn := l.conn
	done := l.readDone
	l.conn = nil
	l.mu.Unlock()

	// Close outside the lock: the read loop may be waiting for it to
	// fold in a final chunk.
	err := conn.Close()
	<-done
	return err
}

func (l *Link) WriteText(row, col int, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return ErrNotConnected
	}
	l.cursorRow, l.cursorCol = row, col
	l.placeLocked(text)
	return l.sendLocked([]byte(text))
}

func (l *Link) WriteKey(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return ErrNotConnected
	}
	switch key {
	case "Enter":
		l.cursorRow, l.cursorCol = l.advanceRowLocked(), 0
		return l.sendLocked([]byte("\r\n"))
	case "Tab":
		return l.sendLocked([]byte("\t"))
	case "Clear":
		l.grid = blankGrid(l.opts.Rows, l.opts.Cols)
		l.cursorRow, l.cursorCol = 0, 0
		return nil
	default:
		// PF/PA attention keys have no line-mode representation; the
		// host would never see them, so the write is rejected.
		return fmt.Errorf("%w: %s", ErrUnsupportedKey, key)
	}
}

func (l *Link) MoveCursor(row, col int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return ErrNotConnected
	}
	l.cursorRow, l.cursorCol = row, col
	return nil
}

func (l *Link) Screen() (terminal.Screen, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lines := make([]string, len(l.grid))
	copy(lines, l.grid)
	return terminal.Screen{
		Rows:      l.opts.Rows,
		Cols:      l.opts.Cols,
		CursorRow: l.cursorRow,
		CursorCol: l.cursorCol,
		Lines:     lines,
	}, nil
}

func (l *Link) sendLocked(data []byte) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_, err := l.conn.Write(data)
	return err
}

func (l *Link) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			l.mu.Lock()
			l.ingestLocked(buf[:n])
			l.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// ingestLocked folds raw host bytes into the grid at the cursor.
func (l *Link) ingestLocked(data []byte) {
	for _, b := range data {
		switch b {
		case '\n':
			l.cursorRow = l.advanceRowLocked()
			l.cursorCol = 0
		case '\r':
			l.cursorCol = 0
		case '\b':
			if l.cursorCol > 0 {
				l.cursorCol--
			}
		default:
			if b < 0x20 || b == 0x7f {
				continue
			}
			l.setCellLocked(l.cursorRow, l.cursorCol, b)
			l.cursorCol++
			if l.cursorCol >= l.opts.Cols {
				l.cursorRow = l.advanceRowLocked()
				l.cursorCol = 0
			}
		}
	}
}

// placeLocked echoes typed text into the grid starting at the cursor.
func (l *Link) placeLocked(text string) {
	for i := 0; i < len(text); i++ {
		l.setCellLocked(l.cursorRow, l.cursorCol, text[i])
		l.cursorCol++
		if l.cursorCol >= l.opts.Cols {
			l.cursorRow = l.advanceRowLocked()
			l.cursorCol = 0
		}
	}
}

// advanceRowLocked moves one row down, scrolling the grid when the cursor is
// on the bottom line. It returns the new cursor row.
func (l *Link) advanceRowLocked() int {
	if l.cursorRow < l.opts.Rows-1 {
		return l.cursorRow + 1
	}
	copy(l.grid, l.grid[1:])
	l.grid[l.opts.Rows-1] = strings.Repeat(" ", l.opts.Cols)
	return l.cursorRow
}

func (l *Link) setCellLocked(row, col int, b byte) {
	if row < 0 || row >= l.opts.Rows || col < 0 || col >= l.opts.Cols {
		return
	}
	line := []byte(l.grid[row])
	line[col] = b
	l.grid[row] = string(line)
}

func blankGrid(rows, cols int) []string {
	grid := make([]string, rows)
	blank := strings.Repeat(" ", cols)
	for i := range grid {
		grid[i] = blank
	}
	return grid
}
