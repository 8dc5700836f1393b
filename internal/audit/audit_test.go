package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	var out []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "audit")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(Entry{Kind: KindTradeCommitted, Actor: "p1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(Entry{Kind: KindMatchFormed}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readEntries(t, filepath.Join(dir, "audit-2026-03-01-10.jsonl.zst"))
	second := readEntries(t, filepath.Join(dir, "audit-2026-03-01-11.jsonl.zst"))
	if len(first) != 1 || first[0].Kind != KindTradeCommitted || first[0].Actor != "p1" {
		t.Fatalf("first hour entries: %+v", first)
	}
	if len(second) != 1 || second[0].Kind != KindMatchFormed {
		t.Fatalf("second hour entries: %+v", second)
	}
}

func TestMulti_WritesAll(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	_ = Multi{a, nil, b}.WriteAudit(Entry{Kind: KindGuildCreated})
	if len(a.Entries()) != 1 || len(b.Entries()) != 1 {
		t.Fatalf("expected both loggers to receive the entry")
	}
}
