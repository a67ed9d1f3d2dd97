package helper

import (
	"errors"
	"testing"
	"time"
)

func TestIsQueueOpen(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, loc) }

	tests := []struct {
		name        string
		open, close string
		now         time.Time
		want        bool
	}{
		{"inside", "08:00", "16:00", at(9, 30), true},
		{"at open", "08:00:00", "16:00:00", at(8, 0), true},
		{"at close", "08:00", "16:00", at(16, 0), false},
		{"before open", "08:00", "16:00", at(7, 59), false},
		{"overnight evening", "22:00", "02:00", at(23, 0), true},
		{"overnight early", "22:00", "02:00", at(1, 0), true},
		{"overnight gap", "22:00", "02:00", at(12, 0), false},
		{"unset", "", "", at(3, 0), true},
		{"garbage", "soon", "16:00", at(3, 0), true},
	}
	for _, tt := range tests {
		if got := IsQueueOpen(tt.open, tt.close, loc, tt.now); got != tt.want {
			t.Errorf("%s: IsQueueOpen = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOpenHoursConvertsZone(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	gate := OpenHours("08:00", "16:00", loc)
	// 02:00 UTC is 09:00 ICT
	if !gate(time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)) {
		t.Fatal("expected open")
	}
}

func TestBusy(t *testing.T) {
	var b Busy
	release, err := b.Enter()
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if _, err := b.Enter(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	release()
	if b.Active() {
		t.Fatal("flag still set after release")
	}
	if _, err := b.Enter(); err != nil {
		t.Fatalf("re-enter: %v", err)
	}
}
