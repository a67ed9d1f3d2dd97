package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"clinic-queue/internal/models"
	"clinic-queue/internal/store"
	"clinic-queue/internal/store/memory"
)

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.QueueEvent
}

func (f *fakeRecorder) Record(_ context.Context, event models.QueueEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRecorder) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Event
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, opts Options) (*Service, *memory.Store, *clock) {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { _ = st.Close() })
	clk := &clock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	if opts.Now == nil {
		opts.Now = clk.Now
	}
	return NewService(st, opts), st, clk
}

func issue(t *testing.T, s *Service, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := s.IssueTicket(context.Background()); err != nil {
			t.Fatalf("issue: %v", err)
		}
	}
}

func mustState(t *testing.T, s *Service) models.GlobalQueueState {
	t.Helper()
	st, err := s.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.NextNumber < st.CurrentNumber+1 {
		t.Fatalf("invariant broken: current=%d next=%d", st.CurrentNumber, st.NextNumber)
	}
	return st
}

func TestStateSeedsLazily(t *testing.T) {
	s, st, _ := newTestService(t, Options{})
	if _, err := st.Get(context.Background(), PathGlobal); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected empty store, got %v", err)
	}

	got := mustState(t, s)
	if got.CurrentNumber != 0 || got.NextNumber != 1 || got.AverageServiceTime != DefaultAverageServiceTime {
		t.Fatalf("unexpected seed %+v", got)
	}
	if _, err := st.Get(context.Background(), PathGlobal); err != nil {
		t.Fatalf("seed not written: %v", err)
	}
}

func TestStateNormalizesBadDocument(t *testing.T) {
	s, st, _ := newTestService(t, Options{})
	_ = st.Set(context.Background(), PathGlobal, []byte(`{"currentNumber":-3,"nextNumber":0,"notifiedTickets":[4,2,4,-1]}`))

	got := mustState(t, s)
	if got.CurrentNumber != 0 || got.NextNumber != 1 {
		t.Fatalf("counters not normalized: %+v", got)
	}
	if len(got.NotifiedTickets) != 2 || got.NotifiedTickets[0] != 2 || got.NotifiedTickets[1] != 4 {
		t.Fatalf("notified tickets not cleaned: %v", got.NotifiedTickets)
	}
}

func TestIssueTicketConcurrentIsDense(t *testing.T) {
	s, _, _ := newTestService(t, Options{})
	const callers = 40

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := s.IssueTicket(context.Background())
			if err != nil {
				t.Errorf("issue: %v", err)
				return
			}
			mu.Lock()
			got = append(got, ticket.Number)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(got)
	if len(got) != callers {
		t.Fatalf("got %d tickets, want %d", len(got), callers)
	}
	for i, n := range got {
		if n != i+1 {
			t.Fatalf("tickets not exactly 1..%d: %v", callers, got)
		}
	}
	if st := mustState(t, s); st.NextNumber != callers+1 {
		t.Fatalf("nextNumber = %d, want %d", st.NextNumber, callers+1)
	}
}

func TestIssueTicketRespectsClinicHours(t *testing.T) {
	s, _, _ := newTestService(t, Options{IsOpen: func(time.Time) bool { return false }})
	if _, err := s.IssueTicket(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestCancelTicketTailReclaim(t *testing.T) {
	ctx := context.Background()

	t.Run("tail", func(t *testing.T) {
		s, _, _ := newTestService(t, Options{})
		issue(t, s, 5)
		reclaimed, err := s.CancelTicket(ctx, 5, "left")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if !reclaimed || mustState(t, s).NextNumber != 5 {
			t.Fatalf("expected nextNumber 5 after tail cancel, reclaimed=%v", reclaimed)
		}
	})

	t.Run("middle", func(t *testing.T) {
		s, _, _ := newTestService(t, Options{})
		issue(t, s, 5)
		reclaimed, err := s.CancelTicket(ctx, 3, "")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if reclaimed || mustState(t, s).NextNumber != 6 {
			t.Fatal("non-tail cancel must leave nextNumber at 6")
		}
		ticket, _ := s.Ticket(ctx, 3)
		if ticket.Status != models.TicketCancelled {
			t.Fatalf("ticket 3 status = %s", ticket.Status)
		}
	})

	t.Run("tail already served", func(t *testing.T) {
		s, _, _ := newTestService(t, Options{})
		issue(t, s, 1)
		if _, err := s.CallNext(ctx); err != nil {
			t.Fatalf("call: %v", err)
		}
		reclaimed, err := s.CancelTicket(ctx, 1, "")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		st := mustState(t, s)
		if reclaimed || st.NextNumber != 2 {
			t.Fatalf("served ticket must not be reclaimed: %+v", st)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		s, _, _ := newTestService(t, Options{})
		if _, err := s.CancelTicket(ctx, 0, ""); !errors.Is(err, ErrInvalidTicket) {
			t.Fatalf("expected ErrInvalidTicket, got %v", err)
		}
		if _, err := s.CancelTicket(ctx, 9, ""); !errors.Is(err, ErrTicketNotFound) {
			t.Fatalf("expected ErrTicketNotFound, got %v", err)
		}
	})
}

func TestReclaimedNumberIsReissuedClean(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t, Options{})
	issue(t, s, 2)
	if _, err := s.CancelTicket(ctx, 2, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	ticket, err := s.IssueTicket(ctx)
	if err != nil || ticket.Number != 2 {
		t.Fatalf("expected reissued 2, got %d, %v", ticket.Number, err)
	}
	got, _ := s.Ticket(ctx, 2)
	if got.Status != models.TicketIssued {
		t.Fatalf("reissued ticket still cancelled")
	}
}

func TestCallNext(t *testing.T) {
	ctx := context.Background()

	t.Run("advances by one", func(t *testing.T) {
		s, _, clk := newTestService(t, Options{})
		issue(t, s, 2)
		clk.Advance(time.Minute)
		res, err := s.CallNext(ctx)
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if !res.Advanced || res.Serving != 1 || len(res.Skipped) != 0 {
			t.Fatalf("unexpected result %+v", res)
		}
		if !res.State.CurrentStartTime.Equal(clk.Now()) {
			t.Fatalf("currentStartTime not stamped")
		}
	})

	t.Run("skips one cancelled ticket", func(t *testing.T) {
		s, _, _ := newTestService(t, Options{})
		issue(t, s, 3)
		if _, err := s.CancelTicket(ctx, 1, ""); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		res, err := s.CallNext(ctx)
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if res.Serving != 2 || len(res.Skipped) != 1 || res.Skipped[0] != 1 {
			t.Fatalf("expected jump to 2 skipping 1, got %+v", res)
		}
	})

	t.Run("refuses two cancelled in a row", func(t *testing.T) {
		s, _, _ := newTestService(t, Options{})
		issue(t, s, 3)
		_, _ = s.CancelTicket(ctx, 1, "")
		_, _ = s.CancelTicket(ctx, 2, "")
		if _, err := s.CallNext(ctx); !errors.Is(err, ErrNoCallableTicket) {
			t.Fatalf("expected ErrNoCallableTicket, got %v", err)
		}
		if st := mustState(t, s); st.CurrentNumber != 0 {
			t.Fatalf("state mutated on abort: %+v", st)
		}
	})

	t.Run("cancelled candidate at the tail", func(t *testing.T) {
		s, st, _ := newTestService(t, Options{})
		_ = st.Set(ctx, PathGlobal, []byte(`{"currentNumber":0,"nextNumber":2}`))
		_ = st.Set(ctx, ticketPath(1), []byte(`{"number":1,"status":"cancelled"}`))
		if _, err := s.CallNext(ctx); !errors.Is(err, ErrNoCallableTicket) {
			t.Fatalf("expected ErrNoCallableTicket, got %v", err)
		}
	})

	t.Run("missing ticket record", func(t *testing.T) {
		s, st, _ := newTestService(t, Options{})
		_ = st.Set(ctx, PathGlobal, []byte(`{"currentNumber":0,"nextNumber":3}`))
		if _, err := s.CallNext(ctx); !errors.Is(err, ErrTicketNotFound) {
			t.Fatalf("expected ErrTicketNotFound, got %v", err)
		}
	})

	t.Run("no waiting queue is a no-op", func(t *testing.T) {
		s, _, _ := newTestService(t, Options{})
		res, err := s.CallNext(ctx)
		if err != nil || res.Advanced {
			t.Fatalf("expected no-op, got %+v, %v", res, err)
		}
	})
}

func TestCallNextLearnsAverage(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestService(t, Options{Learned: true, AverageServiceTime: 10 * time.Minute})
	issue(t, s, 3)
	if _, err := s.CallNext(ctx); err != nil {
		t.Fatalf("call: %v", err)
	}
	clk.Advance(20 * time.Minute)
	res, err := s.CallNext(ctx)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	want := 12 * time.Minute
	if res.State.AverageServiceTime != want {
		t.Fatalf("average = %v, want %v", res.State.AverageServiceTime, want)
	}

	clk.Advance(5 * time.Hour)
	res, _ = s.CallNext(ctx)
	if res.State.AverageServiceTime != want {
		t.Fatalf("outlier sample changed average to %v", res.State.AverageServiceTime)
	}
}

func TestStepBackFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t, Options{})
	issue(t, s, 2)
	_, _ = s.CallNext(ctx)

	st, err := s.StepBack(ctx)
	if err != nil || st.CurrentNumber != 0 {
		t.Fatalf("step back = %+v, %v", st, err)
	}
	st, err = s.StepBack(ctx)
	if err != nil || st.CurrentNumber != 0 {
		t.Fatalf("second step back = %+v, %v", st, err)
	}
	mustState(t, s)
}

func TestResetScenario(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	s, _, _ := newTestService(t, Options{Events: rec})

	if _, err := s.ResetAll(ctx, false); !errors.Is(err, ErrConfirmRequired) {
		t.Fatalf("expected ErrConfirmRequired, got %v", err)
	}
	st, err := s.ResetAll(ctx, true)
	if err != nil || st.CurrentNumber != 0 || st.NextNumber != 1 {
		t.Fatalf("reset = %+v, %v", st, err)
	}

	ticket, err := s.IssueTicket(ctx)
	if err != nil || ticket.Number != 1 {
		t.Fatalf("first ticket after reset = %d, %v", ticket.Number, err)
	}

	res, err := s.CallNext(ctx)
	if err != nil || res.Serving != 1 {
		t.Fatalf("call = %+v, %v", res, err)
	}
	if HasWaitingQueue(res.State) {
		t.Fatal("no waiting queue expected once ticket 1 is served")
	}
	res, err = s.CallNext(ctx)
	if err != nil || res.Advanced || res.Serving != 1 {
		t.Fatalf("call with empty queue must be a no-op, got %+v, %v", res, err)
	}

	want := []string{models.EventReset, models.EventTicketIssued, models.EventCalled}
	got := rec.names()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestResetClearsNotifiedAndKeepsAverage(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t, Options{AverageServiceTime: 7 * time.Minute})
	issue(t, s, 4)
	if added, err := s.MarkNotified(ctx, 3); err != nil || !added {
		t.Fatalf("mark = %v, %v", added, err)
	}
	if added, _ := s.MarkNotified(ctx, 3); added {
		t.Fatal("second mark must report false")
	}

	st, err := s.ResetAll(ctx, true)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(st.NotifiedTickets) != 0 || st.AverageServiceTime != 7*time.Minute {
		t.Fatalf("unexpected state after reset %+v", st)
	}
}

func TestInvariantHoldsAcrossOperations(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t, Options{})

	steps := []func() error{
		func() error { _, err := s.IssueTicket(ctx); return err },
		func() error { _, err := s.IssueTicket(ctx); return err },
		func() error { _, err := s.CallNext(ctx); return err },
		func() error { _, err := s.CancelTicket(ctx, 2, ""); return err },
		func() error { _, err := s.CallNext(ctx); return err },
		func() error { _, err := s.StepBack(ctx); return err },
		func() error { _, err := s.IssueTicket(ctx); return err },
		func() error { _, err := s.CallNext(ctx); return err },
		func() error { _, err := s.ResetAll(ctx, true); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		mustState(t, s)
	}
}

func TestSubscribeDeliversLatestState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _, _ := newTestService(t, Options{})

	states, err := s.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	first := <-states
	if first.NextNumber != 1 {
		t.Fatalf("initial snapshot %+v", first)
	}

	issue(t, s, 1)
	deadline := time.After(time.Second)
	for {
		select {
		case st := <-states:
			if st.NextNumber == 2 {
				cancel()
				return
			}
		case <-deadline:
			t.Fatal("no snapshot after issuing")
		}
	}
}

func TestTicketReadsCancellationMarker(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newTestService(t, Options{})
	issue(t, s, 1)
	issued, err := s.Ticket(ctx, 1)
	if err != nil || issued.Serial == "" {
		t.Fatalf("issued ticket = %+v, %v", issued, err)
	}

	tests := []struct {
		name   string
		serial string
		want   models.TicketStatus
	}{
		{"marker for an earlier issue", "older-serial", models.TicketIssued},
		{"marker for this issue", issued.Serial, models.TicketCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker, _ := json.Marshal(models.Cancellation{Number: 1, Serial: tt.serial})
			_ = st.Set(ctx, cancelledPath(1), marker)

			ticket, err := s.Ticket(ctx, 1)
			if err != nil || ticket.Status != tt.want {
				t.Fatalf("ticket = %+v, %v; want status %q", ticket, err, tt.want)
			}
		})
	}
}

// stickyMarkers refuses to delete cancellation markers.
type stickyMarkers struct {
	store.Store
}

func (s stickyMarkers) Delete(ctx context.Context, path string) error {
	if strings.HasPrefix(path, PathCancelled+"/") {
		return errors.New("link down")
	}
	return s.Store.Delete(ctx, path)
}

func TestReissuedNumberLiveWhenStaleMarkerStays(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	t.Cleanup(func() { _ = mem.Close() })
	clk := &clock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	s := NewService(stickyMarkers{mem}, Options{Now: clk.Now})

	issue(t, s, 3)
	reclaimed, err := s.CancelTicket(ctx, 3, "left")
	if err != nil || !reclaimed {
		t.Fatalf("cancel = %v, %v", reclaimed, err)
	}

	ticket, err := s.IssueTicket(ctx)
	if err != nil || ticket.Number != 3 {
		t.Fatalf("reissue = %+v, %v", ticket, err)
	}
	if _, err := mem.Get(ctx, cancelledPath(3)); err != nil {
		t.Fatalf("stale marker should still be stored: %v", err)
	}
	got, err := s.Ticket(ctx, 3)
	if err != nil || got.Status != models.TicketIssued {
		t.Fatalf("reissued ticket = %+v, %v", got, err)
	}

	for want := 1; want <= 3; want++ {
		res, err := s.CallNext(ctx)
		if err != nil {
			t.Fatalf("call %d: %v", want, err)
		}
		if res.Serving != want || len(res.Skipped) != 0 {
			t.Fatalf("call %d: unexpected result %+v", want, res)
		}
	}
}
