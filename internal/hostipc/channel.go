// Package hostipc talks to the privileged host process that launched the relay.
// Messages are newline-delimited JSON objects of the form
// {"type": "...", "result": ..., "err": ...}.
package hostipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

const (
	TypePrintImage        = "print-image"
	TypePrintImageSuccess = "print-image-success"
	TypePrintImageFailed  = "print-image-failed"
	TypePreviewFile       = "preview-file"

	maxLineSize = 1 << 20
)

var ErrClosed = errors.New("host channel closed")

type Message struct {
	Type   string          `json:"type"`
	Result json.RawMessage `json:"result,omitempty"`
	Err    json.RawMessage `json:"err,omitempty"`
}

// ErrorText renders the err field, which hosts send either as a string or an object.
func (m Message) ErrorText() string {
	if len(m.Err) == 0 || string(m.Err) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Err, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(m.Err, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(m.Err)
}

func NewMessage(typ string, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s message: %w", typ, err)
	}
	return Message{Type: typ, Result: raw}, nil
}

type waiter struct {
	types map[string]bool
	ch    chan Message
}

type Channel struct {
	r      io.Reader
	w      io.Writer
	wmu    sync.Mutex
	logger *zap.Logger

	mu      sync.Mutex
	waiters []*waiter
	closed  chan struct{}
	once    sync.Once
}

func New(r io.Reader, w io.Writer, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		r:      r,
		w:      w,
		logger: logger.Named("hostipc"),
		closed: make(chan struct{}),
	}
}

func (c *Channel) Send(msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	raw = append(raw, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Preview asks the host to open fileURL in its preview window. The host does
// not reply.
func (c *Channel) Preview(fileURL string) error {
	msg, err := NewMessage(TypePreviewFile, fileURL)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Request sends msg and waits for the first incoming message whose type is one
// of replyTypes. Replies are not correlated by id; callers must keep at most
// one request of a kind in flight.
func (c *Channel) Request(ctx context.Context, msg Message, replyTypes ...string) (Message, error) {
	w := &waiter{types: make(map[string]bool, len(replyTypes)), ch: make(chan Message, 1)}
	for _, t := range replyTypes {
		w.types[t] = true
	}

	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	defer c.remove(w)

	if err := c.Send(msg); err != nil {
		return Message{}, err
	}

	select {
	case reply := <-w.ch:
		return reply, nil
	case <-c.closed:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *Channel) remove(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func (c *Channel) dispatch(msg Message) {
	c.mu.Lock()
	for i, w := range c.waiters {
		if w.types[msg.Type] {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			c.mu.Unlock()
			w.ch <- msg
			return
		}
	}
	c.mu.Unlock()
	c.logger.Debug("dropping unsolicited message", zap.String("type", msg.Type))
}

// Run reads messages until the reader is exhausted or ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	defer c.once.Do(func() { close(c.closed) })

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read host channel: %w", err)
			}
			c.logger.Info("host channel closed")
			return nil
		case line := <-lines:
			if len(line) == 0 {
				continue
			}
			var msg Message
			if err := json.Unmarshal(line, &msg); err != nil {
				c.logger.Warn("invalid host message", zap.Error(err))
				continue
			}
			c.dispatch(msg)
		}
	}
}
