// Package mbox implements a MessageSource over mbox exports, for
// environments that deliver SMS-to-email bridges or desktop sync dumps.
// Each mbox message maps to one text message: the From header carries the
// sender, the Date header the observed time, the body the message text.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"sort"
	"strings"

	gombox "github.com/emersion/go-mbox"

	"github.com/BarnBuilder412/smsync/pkg/api"
)

// Source reads messages from an mbox file.
type Source struct {
	path string
}

var _ api.MessageSource = (*Source)(nil)

// New creates a Source reading from the mbox file at path.
func New(path string) *Source {
	return &Source{path: path}
}

// Available reports whether the mbox file can be opened.
func (s *Source) Available(ctx context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening mbox: %w", err)
	}
	return f.Close()
}

// ListInbox returns messages with ObservedAt >= minTimestampMs in ascending
// order. Messages without a parseable Date header are skipped.
func (s *Source) ListInbox(ctx context.Context, minTimestampMs int64) ([]api.RawMessage, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	var out []api.RawMessage
	reader := gombox.NewReader(f)
	for {
		raw, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox message: %w", err)
		}

		msg, ok := convert(raw)
		if !ok {
			continue
		}
		if minTimestampMs > 0 && msg.ObservedAt < minTimestampMs {
			continue
		}
		out = append(out, msg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ObservedAt < out[j].ObservedAt
	})
	return out, nil
}

func convert(r io.Reader) (api.RawMessage, bool) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return api.RawMessage{}, false
	}

	date, err := msg.Header.Date()
	if err != nil {
		return api.RawMessage{}, false
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return api.RawMessage{}, false
	}

	return api.RawMessage{
		Sender:     sender(msg.Header.Get("From")),
		Body:       strings.TrimSpace(string(body)),
		ObservedAt: date.UnixMilli(),
	}, true
}

// sender reduces a From header to the bare sender name: display name when
// present, otherwise the address local part.
func sender(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	if addr.Name != "" {
		return addr.Name
	}
	if at := strings.IndexByte(addr.Address, '@'); at > 0 {
		return addr.Address[:at]
	}
	return addr.Address
}

// Gate is a PermissionGate over mbox readability, mirroring the backup-file
// gate: permission to read messages is permission to read the mbox.
type Gate struct {
	path string
}

var _ api.PermissionGate = (*Gate)(nil)

// NewGate creates a Gate for the mbox at path.
func NewGate(path string) *Gate {
	return &Gate{path: path}
}

func (g *Gate) HasPermission(ctx context.Context) bool {
	f, err := os.Open(g.path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// RequestPermission cannot prompt for anything in a file-based environment;
// it just re-checks.
func (g *Gate) RequestPermission(ctx context.Context) bool {
	return g.HasPermission(ctx)
}
