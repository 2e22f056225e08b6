package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	logx "thermopool/pkg/logx"
)

func TestRingKeepsNewestFirst(t *testing.T) {
	s := newRing(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := s.Append(ctx, Record{TaskID: fmt.Sprintf("t%d", i), Kind: "noop", Outcome: "completed"})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, want := range []string{"t4", "t3", "t2"} {
		if recs[i].TaskID != want {
			t.Errorf("recs[%d] = %s, want %s", i, recs[i].TaskID, want)
		}
	}
}

func TestRingRecentLimit(t *testing.T) {
	s := newRing(10)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = s.Append(ctx, Record{TaskID: fmt.Sprintf("t%d", i), Outcome: "completed"})
	}

	recs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 || recs[0].TaskID != "t3" || recs[1].TaskID != "t2" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st != nil {
		t.Fatal("expected nil store for empty driver")
	}

	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestAsyncFlushesOnClose(t *testing.T) {
	s := newRing(10)
	a := NewAsync(s, 16, logx.Nop())

	for i := 0; i < 5; i++ {
		a.Record(Record{TaskID: fmt.Sprintf("t%d", i), Outcome: "completed"})
	}
	a.Close()

	deadline := time.Now().Add(time.Second)
	for {
		recs, _ := s.Recent(context.Background(), 10)
		if len(recs) == 5 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 5 records after Close, got %d", len(recs))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
