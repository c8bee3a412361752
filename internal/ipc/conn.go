// Package ipc is the native host channel: line-delimited JSON event frames
// over a local socket to the desktop shell process.
package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"genesis/internal/bus"
)

const errWrapFormat = "%w: %v"

var (
	ErrDialFailed  = errors.New("ipc: dial failed")
	ErrReadFailed  = errors.New("ipc: read failed")
	ErrWriteFailed = errors.New("ipc: write failed")
	ErrBadFrame    = fmt.Errorf("ipc: %w", bus.ErrMalformed)
)

// Conn implements bus.Channel.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
	closeMu sync.Once
}

// NewConn wraps an established connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c, reader: bufio.NewReader(c)}
}

// Dial connects to the host socket. A missing socket is the normal browser-like
// case and surfaces as ErrDialFailed so the bus can fall back.
func Dial(ctx context.Context, network, address string, timeout time.Duration) (*Conn, error) {
	if address == "" {
		return nil, fmt.Errorf(errWrapFormat, ErrDialFailed, "no address configured")
	}
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf(errWrapFormat, ErrDialFailed, err)
	}
	return NewConn(c), nil
}

// Probe adapts Dial to bus.Probe.
func Probe(network, address string, timeout time.Duration) bus.Probe {
	return func(ctx context.Context) (bus.Channel, error) {
		c, err := Dial(ctx, network, address, timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Send writes one frame followed by a newline.
func (c *Conn) Send(ev bus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf(errWrapFormat, ErrWriteFailed, err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf(errWrapFormat, ErrWriteFailed, err)
	}
	return nil
}

// Receive reads the next frame. Blank lines are skipped.
func (c *Conn) Receive(ctx context.Context) (bus.Event, error) {
	type result struct {
		ev  bus.Event
		err error
	}
	resultChan := make(chan result, 1)

	go func() {
		for {
			line, err := c.reader.ReadBytes('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					resultChan <- result{err: err}
					return
				}
				resultChan <- result{err: fmt.Errorf(errWrapFormat, ErrReadFailed, err)}
				return
			}
			ev, err := decodeFrame(line)
			if errors.Is(err, errBlank) {
				continue
			}
			resultChan <- result{ev: ev, err: err}
			return
		}
	}()

	select {
	case <-ctx.Done():
		return bus.Event{}, ctx.Err()
	case res := <-resultChan:
		return res.ev, res.err
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeMu.Do(func() { err = c.conn.Close() })
	return err
}

var errBlank = errors.New("blank line")

func decodeFrame(line []byte) (bus.Event, error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return bus.Event{}, errBlank
	}
	var ev bus.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return bus.Event{}, fmt.Errorf(errWrapFormat, ErrBadFrame, err)
	}
	if ev.Name == "" {
		return bus.Event{}, fmt.Errorf(errWrapFormat, ErrBadFrame, "missing event name")
	}
	return ev, nil
}
