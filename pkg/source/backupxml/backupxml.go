// Package backupxml implements a MessageSource over SMS Backup & Restore
// XML dumps, the common export format for Android message stores.
package backupxml

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/BarnBuilder412/smsync/pkg/api"
)

// inboxType is the message direction code for received messages.
const inboxType = "1"

type backup struct {
	XMLName  xml.Name  `xml:"smses"`
	Messages []message `xml:"sms"`
}

type message struct {
	Address string `xml:"address,attr"`
	Date    string `xml:"date,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:"body,attr"`
}

// Source reads messages from a backup XML file. The file is re-read on
// every ListInbox call, so a dump refreshed in place is picked up by the
// next poll.
type Source struct {
	path string
}

var _ api.MessageSource = (*Source)(nil)

// New creates a Source reading from the XML dump at path.
func New(path string) *Source {
	return &Source{path: path}
}

// Available reports whether the dump exists and parses.
func (s *Source) Available(ctx context.Context) error {
	_, err := s.load()
	return err
}

// ListInbox returns received messages with ObservedAt >= minTimestampMs in
// ascending arrival order. minTimestampMs <= 0 scans the full dump.
func (s *Source) ListInbox(ctx context.Context, minTimestampMs int64) ([]api.RawMessage, error) {
	dump, err := s.load()
	if err != nil {
		return nil, err
	}

	var out []api.RawMessage
	for _, m := range dump.Messages {
		if m.Type != inboxType {
			continue
		}
		observedAt, err := strconv.ParseInt(m.Date, 10, 64)
		if err != nil {
			continue
		}
		if minTimestampMs > 0 && observedAt < minTimestampMs {
			continue
		}
		out = append(out, api.RawMessage{
			Sender:     m.Address,
			Body:       m.Body,
			ObservedAt: observedAt,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ObservedAt < out[j].ObservedAt
	})
	return out, nil
}

func (s *Source) load() (*backup, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading backup file: %w", err)
	}

	var dump backup
	if err := xml.Unmarshal(raw, &dump); err != nil {
		return nil, fmt.Errorf("parsing backup file: %w", err)
	}
	return &dump, nil
}

// Gate is a PermissionGate over backup-file readability: permission to read
// messages is permission to read the dump.
type Gate struct {
	path string
}

var _ api.PermissionGate = (*Gate)(nil)

// NewGate creates a Gate for the dump at path.
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
