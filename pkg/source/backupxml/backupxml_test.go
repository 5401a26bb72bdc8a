package backupxml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleDump = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="4">
  <sms protocol="0" address="HDFCBK" date="1700000000000" type="1" body="Rs.450.00 debited for Swiggy order" read="1" />
  <sms protocol="0" address="ICICIB" date="1700000060000" type="1" body="INR 250.00 spent at AMAZON" read="1" />
  <sms protocol="0" address="Me" date="1700000120000" type="2" body="sent message, not inbox" read="1" />
  <sms protocol="0" address="VM-PROMO" date="1699999000000" type="1" body="older promo" read="1" />
</smses>
`

func writeDump(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sms-backup.xml")
	if err := os.WriteFile(path, []byte(sampleDump), 0o600); err != nil {
		t.Fatalf("writing dump: %v", err)
	}
	return path
}

func TestListInboxFullScan(t *testing.T) {
	src := New(writeDump(t))

	msgs, err := src.ListInbox(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}

	// Sent messages are excluded; results are ascending by time.
	if len(msgs) != 3 {
		t.Fatalf("messages: got %d, want 3", len(msgs))
	}
	if msgs[0].Sender != "VM-PROMO" || msgs[2].Sender != "ICICIB" {
		t.Errorf("unexpected order: %v, %v", msgs[0].Sender, msgs[2].Sender)
	}
}

func TestListInboxWindow(t *testing.T) {
	src := New(writeDump(t))

	msgs, err := src.ListInbox(context.Background(), 1700000000000)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want 2", len(msgs))
	}
	if msgs[0].Sender != "HDFCBK" || msgs[0].ObservedAt != 1700000000000 {
		t.Errorf("window is not inclusive: %+v", msgs[0])
	}
}

func TestAvailable(t *testing.T) {
	if err := New(writeDump(t)).Available(context.Background()); err != nil {
		t.Errorf("Available on valid dump: %v", err)
	}
	if err := New("/nonexistent/dump.xml").Available(context.Background()); err == nil {
		t.Error("Available on missing dump: want error")
	}
}

func TestGate(t *testing.T) {
	path := writeDump(t)
	if !NewGate(path).HasPermission(context.Background()) {
		t.Error("gate should grant permission for a readable dump")
	}
	if NewGate("/nonexistent/dump.xml").HasPermission(context.Background()) {
		t.Error("gate should deny permission for a missing dump")
	}
}
