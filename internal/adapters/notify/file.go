package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultOutboxFile is where FileTransport writes when no path is given.
const DefaultOutboxFile = "emails.log"

// FileTransport appends messages to a rotating outbox file instead of
// delivering them. Used when no real transport is configured.
type FileTransport struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	now func() time.Time
}

// NewFileTransport creates an outbox at path.
func NewFileTransport(path string) *FileTransport {
	if path == "" {
		path = DefaultOutboxFile
	}
	return &FileTransport{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 3,
		},
		now: time.Now,
	}
}

func (t *FileTransport) Name() string { return "outbox" }

// Path returns the outbox file path.
func (t *FileTransport) Path() string { return t.out.Filename }

func (t *FileTransport) Send(_ context.Context, address, subject, body string) error {
	if err := validate(address, subject, body); err != nil {
		return err
	}

	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n[%s] EMAIL LOG\n%s\n", rule, t.now().Format("2006-01-02 15:04:05"), rule)
	fmt.Fprintf(&b, "To: %s\nSubject: %s\nBody:\n%s\n", address, subject, body)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.out.Write([]byte(b.String())); err != nil {
		return ErrSend{Provider: "outbox", Err: err}
	}
	return nil
}

// Close closes the outbox file.
func (t *FileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Close()
}
