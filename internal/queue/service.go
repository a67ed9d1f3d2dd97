// Package queue implements the ticket-counter model: a monotonic nextNumber
// counter for issuance and a currentNumber pointer for the ticket being served.
//
// Every counter mutation goes through store.Transact on queue/global. Ticket
// records and cancellation markers are plain writes.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"clinic-queue/internal/eventlog"
	"clinic-queue/internal/models"
	"clinic-queue/internal/store"

	"github.com/google/uuid"
)

// Samples outside (0, maxServiceSample] never feed the learned average.
const (
	maxServiceSample = 4 * time.Hour
	// each sample moves the average a fifth of the way towards it
	learnDivisor = 5
)

type Options struct {
	AverageServiceTime time.Duration
	// Learned folds each observed service duration into the shared average.
	Learned bool
	Events  eventlog.Recorder
	// IsOpen gates ticket issuance; nil means always open.
	IsOpen func(now time.Time) bool
	Now    func() time.Time
}

type Service struct {
	store  store.Store
	avg    time.Duration
	learn  bool
	events eventlog.Recorder
	isOpen func(time.Time) bool
	now    func() time.Time
}

// CallResult describes the outcome of CallNext.
type CallResult struct {
	Advanced bool                    `json:"advanced"`
	Serving  int                     `json:"serving"`
	Skipped  []int                   `json:"skipped,omitempty"`
	State    models.GlobalQueueState `json:"state"`
}

func NewService(st store.Store, opts Options) *Service {
	s := &Service{
		store:  st,
		avg:    opts.AverageServiceTime,
		learn:  opts.Learned,
		events: opts.Events,
		isOpen: opts.IsOpen,
		now:    opts.Now,
	}
	if s.avg <= 0 {
		s.avg = DefaultAverageServiceTime
	}
	if s.events == nil {
		s.events = eventlog.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// State reads queue/global, seeding it when absent.
func (s *Service) State(ctx context.Context) (models.GlobalQueueState, error) {
	raw, err := s.store.Get(ctx, PathGlobal)
	if errors.Is(err, store.ErrNotFound) {
		raw, err = s.store.Transact(ctx, PathGlobal, func(current []byte) ([]byte, error) {
			if current != nil {
				return nil, nil
			}
			seed := Seed(s.avg)
			seed.LastUpdate = s.now()
			return encodeState(seed)
		})
	}
	if err != nil {
		return models.GlobalQueueState{}, err
	}
	return decodeState(raw, s.avg)
}

// IssueTicket atomically takes nextNumber and records the ticket.
func (s *Service) IssueTicket(ctx context.Context) (models.Ticket, error) {
	now := s.now()
	if s.isOpen != nil && !s.isOpen(now) {
		return models.Ticket{}, ErrQueueClosed
	}

	var number int
	_, err := s.update(ctx, func(st *models.GlobalQueueState) (bool, error) {
		number = st.NextNumber
		st.NextNumber++
		st.LastUpdate = now
		return true, nil
	})
	if err != nil {
		return models.Ticket{}, fmt.Errorf("issue ticket: %w", err)
	}

	ticket := models.Ticket{Number: number, IssuedAt: now, Status: models.TicketIssued, Serial: uuid.NewString()}
	if err := s.putTicket(ctx, ticket); err != nil {
		// the number is taken even though its record is missing
		log.Printf("[queue] ticket %d issued but not recorded: %v", number, err)
		return ticket, fmt.Errorf("record ticket %d: %w", number, err)
	}
	// a marker left over from before a reset or a tail reclaim carries an older
	// serial and no longer applies; removing it is housekeeping
	if err := s.store.Delete(ctx, cancelledPath(number)); err != nil {
		log.Printf("[queue] clear stale cancellation of %d: %v", number, err)
	}

	s.record(ctx, models.EventTicketIssued, number, "")
	return ticket, nil
}

// CancelTicket marks a ticket cancelled. When it is the most recently issued
// ticket and not yet reached, nextNumber is handed back so the slot is reused.
// It reports whether the slot was reclaimed.
func (s *Service) CancelTicket(ctx context.Context, number int, reason string) (bool, error) {
	if number <= 0 {
		return false, ErrInvalidTicket
	}
	ticket, err := s.Ticket(ctx, number)
	if err != nil {
		return false, err
	}
	if ticket.Status == models.TicketCancelled {
		return false, nil
	}

	now := s.now()
	marker, err := json.Marshal(models.Cancellation{Number: number, CancelledAt: now, Reason: reason, Serial: ticket.Serial})
	if err != nil {
		return false, err
	}
	if err := s.store.Set(ctx, cancelledPath(number), marker); err != nil {
		return false, fmt.Errorf("cancel ticket %d: %w", number, err)
	}
	ticket.Status = models.TicketCancelled
	if err := s.putTicket(ctx, ticket); err != nil {
		log.Printf("[queue] ticket %d cancelled but record not updated: %v", number, err)
	}

	var reclaimed bool
	_, err = s.update(ctx, func(st *models.GlobalQueueState) (bool, error) {
		reclaimed = st.NextNumber == number+1 && number > st.CurrentNumber
		if !reclaimed {
			return false, nil
		}
		st.NextNumber = number
		st.LastUpdate = now
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("reclaim ticket %d: %w", number, err)
	}

	detail := reason
	if reclaimed {
		detail = "reclaimed " + detail
	}
	s.record(ctx, models.EventTicketCancelled, number, detail)
	return reclaimed, nil
}

// CallNext advances currentNumber to the next callable ticket. A cancelled
// candidate is skipped only when the ticket after it is issued and live; at
// most one cancelled ticket is skipped per call.
func (s *Service) CallNext(ctx context.Context) (CallResult, error) {
	st, err := s.State(ctx)
	if err != nil {
		return CallResult{}, err
	}
	if !HasWaitingQueue(st) {
		return CallResult{Serving: st.CurrentNumber, State: st}, nil
	}

	base := st.CurrentNumber
	candidate := base + 1
	exists, cancelled, err := s.ticketState(ctx, candidate)
	if err != nil {
		return CallResult{}, err
	}
	if !exists {
		return CallResult{}, fmt.Errorf("call ticket %d: %w", candidate, ErrTicketNotFound)
	}

	step := 1
	var skipped []int
	if cancelled {
		after := candidate + 1
		if after >= st.NextNumber {
			return CallResult{}, fmt.Errorf("call after %d: %w", candidate, ErrNoCallableTicket)
		}
		afterExists, afterCancelled, err := s.ticketState(ctx, after)
		if err != nil {
			return CallResult{}, err
		}
		if !afterExists || afterCancelled {
			return CallResult{}, fmt.Errorf("call after %d: %w", candidate, ErrNoCallableTicket)
		}
		step = 2
		skipped = []int{candidate}
	}

	now := s.now()
	next, err := s.update(ctx, func(st *models.GlobalQueueState) (bool, error) {
		// the checks above were made against base; anything else means another station moved first
		if st.CurrentNumber != base || st.NextNumber < base+step+1 {
			return false, ErrQueueMoved
		}
		if s.learn && base > 0 && !st.CurrentStartTime.IsZero() {
			st.AverageServiceTime = learnAverage(st.AverageServiceTime, now.Sub(st.CurrentStartTime))
		}
		st.CurrentNumber = base + step
		st.CurrentStartTime = now
		st.LastUpdate = now
		return true, nil
	})
	if err != nil {
		return CallResult{}, err
	}

	detail := ""
	if len(skipped) > 0 {
		detail = fmt.Sprintf("skipped %d", skipped[0])
	}
	s.record(ctx, models.EventCalled, next.CurrentNumber, detail)
	return CallResult{Advanced: true, Serving: next.CurrentNumber, Skipped: skipped, State: next}, nil
}

// StepBack moves currentNumber back by one, never below zero.
func (s *Service) StepBack(ctx context.Context) (models.GlobalQueueState, error) {
	now := s.now()
	st, err := s.update(ctx, func(st *models.GlobalQueueState) (bool, error) {
		if st.CurrentNumber == 0 {
			return false, nil
		}
		st.CurrentNumber--
		st.LastUpdate = now
		return true, nil
	})
	if err != nil {
		return models.GlobalQueueState{}, fmt.Errorf("step back: %w", err)
	}
	s.record(ctx, models.EventStepBack, st.CurrentNumber, "")
	return st, nil
}

// ResetAll rewinds both counters to a fresh day. Ticket records and
// cancellation markers are left in place; IssueTicket clears a stale marker
// when it hands its number out again.
func (s *Service) ResetAll(ctx context.Context, confirm bool) (models.GlobalQueueState, error) {
	if !confirm {
		return models.GlobalQueueState{}, ErrConfirmRequired
	}
	now := s.now()
	st, err := s.update(ctx, func(st *models.GlobalQueueState) (bool, error) {
		st.CurrentNumber = 0
		st.NextNumber = 1
		st.CurrentStartTime = time.Time{}
		st.NotifiedTickets = nil
		st.LastUpdate = now
		return true, nil
	})
	if err != nil {
		return models.GlobalQueueState{}, fmt.Errorf("reset: %w", err)
	}
	s.record(ctx, models.EventReset, 0, "")
	return st, nil
}

// MarkNotified adds a ticket to notifiedTickets. It reports false when the
// ticket was already there, so only one device raises the near-turn alert.
func (s *Service) MarkNotified(ctx context.Context, number int) (bool, error) {
	if number <= 0 {
		return false, ErrInvalidTicket
	}
	var added bool
	_, err := s.update(ctx, func(st *models.GlobalQueueState) (bool, error) {
		added = false
		for _, n := range st.NotifiedTickets {
			if n == number {
				return false, nil
			}
		}
		st.NotifiedTickets = append(st.NotifiedTickets, number)
		added = true
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("mark notified %d: %w", number, err)
	}
	return added, nil
}

// Ticket returns the record of one ticket with its cancellation applied.
func (s *Service) Ticket(ctx context.Context, number int) (models.Ticket, error) {
	if number <= 0 {
		return models.Ticket{}, ErrInvalidTicket
	}
	raw, err := s.store.Get(ctx, ticketPath(number))
	if errors.Is(err, store.ErrNotFound) {
		return models.Ticket{}, fmt.Errorf("ticket %d: %w", number, ErrTicketNotFound)
	}
	if err != nil {
		return models.Ticket{}, err
	}
	var ticket models.Ticket
	if err := json.Unmarshal(raw, &ticket); err != nil {
		return models.Ticket{}, fmt.Errorf("decode ticket %d: %w", number, err)
	}
	ticket.Number = number
	if ticket.Status == "" {
		ticket.Status = models.TicketIssued
	}
	if ticket.Status != models.TicketCancelled {
		raw, err := s.store.Get(ctx, cancelledPath(number))
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return models.Ticket{}, err
		default:
			var marker models.Cancellation
			if err := json.Unmarshal(raw, &marker); err != nil {
				return models.Ticket{}, fmt.Errorf("decode cancellation %d: %w", number, err)
			}
			// only a marker written for this issue of the number counts
			if marker.Serial == ticket.Serial {
				ticket.Status = models.TicketCancelled
			}
		}
	}
	return ticket, nil
}

// Subscribe emits the queue state now and after every change under queue/.
// Intermediate snapshots are dropped when the consumer falls behind; the
// latest one is always delivered. The channel closes when ctx is done.
func (s *Service) Subscribe(ctx context.Context) (<-chan models.GlobalQueueState, error) {
	changes, err := s.store.Watch(ctx, "queue")
	if err != nil {
		return nil, err
	}
	first, err := s.State(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan models.GlobalQueueState, 1)
	out <- first
	go func() {
		defer close(out)
		for change := range changes {
			if change.Path != PathGlobal {
				continue
			}
			st, err := s.State(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[queue] refresh after change: %v", err)
				continue
			}
			select {
			case <-out:
			default:
			}
			out <- st
		}
	}()
	return out, nil
}

// update applies mutate to queue/global inside a transaction. mutate returns
// false to leave the document untouched.
func (s *Service) update(ctx context.Context, mutate func(st *models.GlobalQueueState) (bool, error)) (models.GlobalQueueState, error) {
	raw, err := s.store.Transact(ctx, PathGlobal, func(current []byte) ([]byte, error) {
		st, err := decodeState(current, s.avg)
		if err != nil {
			return nil, err
		}
		changed, err := mutate(&st)
		if err != nil {
			return nil, err
		}
		if !changed {
			if current == nil {
				// still write the seed so the document exists
				return encodeState(st)
			}
			return nil, nil
		}
		return encodeState(st)
	})
	if err != nil {
		return models.GlobalQueueState{}, err
	}
	return decodeState(raw, s.avg)
}

func (s *Service) putTicket(ctx context.Context, ticket models.Ticket) error {
	raw, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, ticketPath(ticket.Number), raw)
}

func (s *Service) ticketState(ctx context.Context, number int) (exists, cancelled bool, err error) {
	ticket, err := s.Ticket(ctx, number)
	if errors.Is(err, ErrTicketNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, ticket.Status == models.TicketCancelled, nil
}

func (s *Service) record(ctx context.Context, name string, ticket int, detail string) {
	event := models.QueueEvent{Event: name, Detail: detail, CreatedAt: s.now()}
	if ticket > 0 {
		n := ticket
		event.TicketNumber = &n
	}
	s.events.Record(ctx, event)
}

func learnAverage(avg, sample time.Duration) time.Duration {
	if sample <= 0 || sample > maxServiceSample {
		return avg
	}
	if avg <= 0 {
		return sample
	}
	return avg + (sample-avg)/learnDivisor
}
