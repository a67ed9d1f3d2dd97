// Package station is one client instance: a patient kiosk or phone holding a
// ticket, or a nurse desk advancing the queue. It keeps device-local state in
// a file, reacts to store changes and refuses to run two actions at once.
package station

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"clinic-queue/internal/device"
	"clinic-queue/internal/helper"
	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"
	"clinic-queue/internal/store"
)

var (
	ErrTicketHeld    = errors.New("this device already holds a ticket that has not been called")
	ErrNoTicket      = errors.New("this device holds no ticket")
	ErrWrongPIN      = errors.New("wrong PIN")
	ErrNotAuthorized = errors.New("staff login required")
)

type AlertKind string

const (
	AlertPrepare  AlertKind = "prepare"
	AlertYourTurn AlertKind = "your_turn"
	AlertReset    AlertKind = "reset"
)

type Alert struct {
	Kind    AlertKind
	Ticket  int
	Waiting int
}

func (a Alert) String() string {
	switch a.Kind {
	case AlertPrepare:
		return fmt.Sprintf("ticket %d: %d to go, please get ready", a.Ticket, a.Waiting)
	case AlertYourTurn:
		return fmt.Sprintf("ticket %d: it is your turn, please go to the examination room", a.Ticket)
	case AlertReset:
		return fmt.Sprintf("the queue was reset, ticket %d is no longer valid", a.Ticket)
	}
	return string(a.Kind)
}

// PINChecker verifies the staff PIN.
type PINChecker interface {
	Check(pin string) bool
}

type Options struct {
	StatePath         string
	NearTurnThreshold int
	PIN               PINChecker
	Now               func() time.Time
}

type Station struct {
	queue     *queue.Service
	store     store.Store
	statePath string
	nearTurn  int
	pin       PINChecker
	now       func() time.Time
	busy      helper.Busy

	mu           sync.Mutex
	local        device.State
	connected    bool
	turnAlerted  int
	lastSnapshot *models.GlobalQueueState
}

func New(st store.Store, q *queue.Service, opts Options) (*Station, error) {
	var local device.State
	if opts.StatePath != "" {
		loaded, err := device.Load(opts.StatePath)
		if err != nil {
			return nil, err
		}
		local = loaded
	}
	s := &Station{
		queue:     q,
		store:     st,
		statePath: opts.StatePath,
		nearTurn:  opts.NearTurnThreshold,
		pin:       opts.PIN,
		now:       opts.Now,
		local:     local,
		connected: true,
	}
	if s.nearTurn <= 0 {
		s.nearTurn = 3
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Local returns the device-local state.
func (s *Station) Local() device.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Take issues a ticket to this device. A device whose ticket has not been
// reached yet may not take another.
func (s *Station) Take(ctx context.Context) (models.Ticket, error) {
	release, err := s.busy.Enter()
	if err != nil {
		return models.Ticket{}, err
	}
	defer release()

	st, err := s.queue.State(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	if held := s.Local().Ticket; held > st.CurrentNumber {
		return models.Ticket{}, fmt.Errorf("ticket %d: %w", held, ErrTicketHeld)
	}

	ticket, err := s.queue.IssueTicket(ctx)
	if err != nil {
		return models.Ticket{}, err
	}
	if err := s.save(func(local *device.State) { local.Ticket = ticket.Number }); err != nil {
		return ticket, err
	}
	log.Printf("[station] took ticket %d", ticket.Number)
	return ticket, nil
}

// Drop cancels the held ticket and forgets it. It reports whether the number
// was handed back to the counter.
func (s *Station) Drop(ctx context.Context) (bool, error) {
	release, err := s.busy.Enter()
	if err != nil {
		return false, err
	}
	defer release()

	held := s.Local().Ticket
	if held <= 0 {
		return false, ErrNoTicket
	}
	reclaimed, err := s.queue.CancelTicket(ctx, held, "dropped by holder")
	if err != nil && !errors.Is(err, queue.ErrTicketNotFound) {
		return false, err
	}
	if err := s.save(func(local *device.State) { local.Ticket = 0 }); err != nil {
		return reclaimed, err
	}
	return reclaimed, nil
}

// Status reads the queue once and builds this device's view of it.
func (s *Station) Status(ctx context.Context) (models.QueueView, error) {
	st, err := s.queue.State(ctx)
	if err != nil {
		return models.QueueView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return queue.BuildView(st, s.local.Ticket, s.connected, s.now()), nil
}

func (s *Station) Login(pin string) error {
	if s.pin == nil || !s.pin.Check(pin) {
		return ErrWrongPIN
	}
	return s.save(func(local *device.State) { local.StaffAuthorized = true })
}

func (s *Station) Logout() error {
	return s.save(func(local *device.State) { local.StaffAuthorized = false })
}

func (s *Station) CallNext(ctx context.Context) (queue.CallResult, error) {
	release, err := s.staffAction()
	if err != nil {
		return queue.CallResult{}, err
	}
	defer release()
	return s.queue.CallNext(ctx)
}

func (s *Station) StepBack(ctx context.Context) (models.GlobalQueueState, error) {
	release, err := s.staffAction()
	if err != nil {
		return models.GlobalQueueState{}, err
	}
	defer release()
	return s.queue.StepBack(ctx)
}

func (s *Station) Reset(ctx context.Context, confirm bool) (models.GlobalQueueState, error) {
	release, err := s.staffAction()
	if err != nil {
		return models.GlobalQueueState{}, err
	}
	defer release()
	return s.queue.ResetAll(ctx, confirm)
}

// Run is the station's reactor. It recomputes the view after every queue
// change or connectivity flip and raises alerts for the held ticket. It
// returns when ctx is done.
func (s *Station) Run(ctx context.Context, onView func(models.QueueView), onAlert func(Alert)) error {
	if onView == nil {
		onView = func(models.QueueView) {}
	}
	if onAlert == nil {
		onAlert = func(Alert) {}
	}

	states, err := s.queue.Subscribe(ctx)
	if err != nil {
		return err
	}
	links := s.store.Connectivity(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case live, ok := <-links:
			if !ok {
				links = nil
				continue
			}
			s.mu.Lock()
			s.connected = live
			last := s.lastSnapshot
			s.mu.Unlock()
			if !live {
				log.Println("[station] store link lost")
			}
			if last != nil {
				onView(s.view(*last))
			}
		case st, ok := <-states:
			if !ok {
				return ctx.Err()
			}
			for _, alert := range s.react(ctx, st) {
				onAlert(alert)
			}
			onView(s.view(st))
		}
	}
}

// react applies one snapshot to local state and returns the alerts it raises.
func (s *Station) react(ctx context.Context, st models.GlobalQueueState) []Alert {
	s.mu.Lock()
	snapshot := st
	s.lastSnapshot = &snapshot
	held := s.local.Ticket
	s.mu.Unlock()

	var alerts []Alert
	if held > 0 && queue.IsFreshReset(st) {
		if err := s.save(func(local *device.State) { local.Ticket = 0 }); err != nil {
			log.Printf("[station] forget ticket after reset: %v", err)
		}
		return append(alerts, Alert{Kind: AlertReset, Ticket: held})
	}
	if held <= 0 {
		return nil
	}

	if queue.NearTurn(st, held, s.nearTurn) {
		added, err := s.queue.MarkNotified(ctx, held)
		if err != nil {
			log.Printf("[station] mark ticket %d notified: %v", held, err)
		}
		if added {
			alerts = append(alerts, Alert{Kind: AlertPrepare, Ticket: held, Waiting: queue.MyWaiting(st, held)})
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if queue.IsMyTurn(st, held) && s.turnAlerted != held {
		s.turnAlerted = held
		alerts = append(alerts, Alert{Kind: AlertYourTurn, Ticket: held})
	}
	return alerts
}

func (s *Station) view(st models.GlobalQueueState) models.QueueView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queue.BuildView(st, s.local.Ticket, s.connected, s.now())
}

func (s *Station) staffAction() (func(), error) {
	if !s.Local().StaffAuthorized {
		return nil, ErrNotAuthorized
	}
	return s.busy.Enter()
}

func (s *Station) save(mutate func(local *device.State)) error {
	s.mu.Lock()
	next := s.local
	mutate(&next)
	s.local = next
	s.mu.Unlock()

	if s.statePath == "" {
		return nil
	}
	if err := device.Save(s.statePath, next); err != nil {
		return fmt.Errorf("save device state: %w", err)
	}
	return nil
}
