// Package roster implements the named-patient queue used by the nurse board.
//
// Active records (waiting, in-progress) live under queue/patients, finished
// ones (completed, cancelled) under history/patients. queue/current holds the
// id of the patient in the room, or an empty string.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"clinic-queue/internal/eventlog"
	"clinic-queue/internal/models"
	"clinic-queue/internal/store"

	"github.com/google/uuid"
)

const (
	PathActive  = "queue/patients"
	PathHistory = "history/patients"
	PathCurrent = "queue/current"
)

// errSkipCandidate aborts a call transaction whose record was taken or removed
// by another station.
var errSkipCandidate = errors.New("candidate no longer waiting")

type Options struct {
	// AverageServiceTime is used for estimates until history has durations.
	AverageServiceTime time.Duration
	Events             eventlog.Recorder
	Now                func() time.Time
	NewID              func() string
}

type Service struct {
	store  store.Store
	avg    time.Duration
	events eventlog.Recorder
	now    func() time.Time
	newID  func() string
}

// PatientInput carries the editable fields of a record.
type PatientInput struct {
	Name    string   `json:"name"`
	HN      string   `json:"hn"`
	Doctors []string `json:"doctors"`
	Note    string   `json:"note"`
}

func NewService(st store.Store, opts Options) *Service {
	s := &Service{
		store:  st,
		avg:    opts.AverageServiceTime,
		events: opts.Events,
		now:    opts.Now,
		newID:  opts.NewID,
	}
	if s.avg <= 0 {
		s.avg = 15 * time.Minute
	}
	if s.events == nil {
		s.events = eventlog.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// AddPatient appends a waiting record stamped with the arrival time.
func (s *Service) AddPatient(ctx context.Context, in PatientInput) (models.PatientRecord, error) {
	in, err := cleanInput(in)
	if err != nil {
		return models.PatientRecord{}, err
	}
	record := models.PatientRecord{
		ID:        s.newID(),
		Name:      in.Name,
		HN:        in.HN,
		Doctors:   in.Doctors,
		Status:    models.StatusWaiting,
		Timestamp: s.now(),
		Note:      in.Note,
	}
	if err := s.put(ctx, PathActive, record); err != nil {
		return models.PatientRecord{}, fmt.Errorf("add patient: %w", err)
	}
	s.record(ctx, models.EventPatientAdded, record.ID, record.Name)
	return record, nil
}

// CallNextPatient moves the earliest-arrived waiting patient into the room.
// It reports false when nobody is waiting. A patient already in progress is
// not checked; the pointer is overwritten.
func (s *Service) CallNextPatient(ctx context.Context) (models.PatientRecord, bool, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return models.PatientRecord{}, false, err
	}

	now := s.now()
	for _, candidate := range active {
		if candidate.Status != models.StatusWaiting {
			continue
		}
		called, err := s.transactRecord(ctx, PathActive, candidate.ID, func(rec *models.PatientRecord) error {
			if !ValidTransition(actionCall, rec.Status) {
				return errSkipCandidate
			}
			rec.Status = models.StatusInProgress
			rec.StartTime = &now
			return nil
		})
		if errors.Is(err, errSkipCandidate) || errors.Is(err, ErrPatientNotFound) {
			continue
		}
		if err != nil {
			return models.PatientRecord{}, false, fmt.Errorf("call patient %s: %w", candidate.ID, err)
		}

		if previous, _ := s.currentID(ctx); previous != "" && previous != called.ID {
			log.Printf("[roster] replacing current patient %s with %s", previous, called.ID)
		}
		if err := s.setCurrent(ctx, called.ID); err != nil {
			return called, true, fmt.Errorf("set current patient: %w", err)
		}
		s.record(ctx, models.EventPatientCalled, called.ID, called.Name)
		return called, true, nil
	}
	return models.PatientRecord{}, false, nil
}

// CompleteCurrentPatient moves the current patient to history as completed.
// A record left completed in the active partition by a failed move is filed
// again rather than rejected.
func (s *Service) CompleteCurrentPatient(ctx context.Context) (models.PatientRecord, error) {
	id, err := s.requireCurrent(ctx)
	if err != nil {
		return models.PatientRecord{}, err
	}
	now := s.now()
	done, err := s.transactRecord(ctx, PathActive, id, func(rec *models.PatientRecord) error {
		if rec.Status == models.StatusCompleted && rec.EndTime != nil {
			// an earlier attempt finished the record but could not file it
			return nil
		}
		if !ValidTransition(actionComplete, rec.Status) {
			return fmt.Errorf("complete %s patient: %w", rec.Status, ErrInvalidTransition)
		}
		rec.Status = models.StatusCompleted
		rec.EndTime = &now
		return nil
	})
	if errors.Is(err, ErrPatientNotFound) {
		s.clearCurrent(ctx, id)
	}
	if err != nil {
		return models.PatientRecord{}, err
	}

	if err := s.moveToHistory(ctx, done); err != nil {
		return models.PatientRecord{}, err
	}
	s.clearCurrent(ctx, id)
	s.record(ctx, models.EventPatientCompleted, done.ID, done.Name)
	return done, nil
}

// SkipCurrentPatient sends the current patient back to waiting. The arrival
// stamp is kept, so the patient is first in line again.
func (s *Service) SkipCurrentPatient(ctx context.Context) (models.PatientRecord, error) {
	id, err := s.requireCurrent(ctx)
	if err != nil {
		return models.PatientRecord{}, err
	}
	skipped, err := s.transactRecord(ctx, PathActive, id, func(rec *models.PatientRecord) error {
		if !ValidTransition(actionSkip, rec.Status) {
			return fmt.Errorf("skip %s patient: %w", rec.Status, ErrInvalidTransition)
		}
		rec.Status = models.StatusWaiting
		rec.StartTime = nil
		return nil
	})
	if errors.Is(err, ErrPatientNotFound) {
		s.clearCurrent(ctx, id)
	}
	if err != nil {
		return models.PatientRecord{}, err
	}
	s.clearCurrent(ctx, id)
	s.record(ctx, models.EventPatientSkipped, skipped.ID, skipped.Name)
	return skipped, nil
}

// CancelPatient cancels a waiting or in-progress patient and files the record
// in history. Retrying after a failed move finishes the move.
func (s *Service) CancelPatient(ctx context.Context, id string) (models.PatientRecord, error) {
	now := s.now()
	cancelled, err := s.transactRecord(ctx, PathActive, id, func(rec *models.PatientRecord) error {
		if rec.Status == models.StatusCancelled && rec.EndTime != nil {
			return nil
		}
		if !ValidTransition(actionCancel, rec.Status) {
			return fmt.Errorf("cancel %s patient: %w", rec.Status, ErrInvalidTransition)
		}
		rec.Status = models.StatusCancelled
		rec.EndTime = &now
		return nil
	})
	if errors.Is(err, ErrPatientNotFound) {
		if _, lookupErr := s.get(ctx, PathHistory, id); lookupErr == nil {
			return models.PatientRecord{}, fmt.Errorf("cancel finished patient: %w", ErrInvalidTransition)
		}
	}
	if err != nil {
		return models.PatientRecord{}, err
	}

	if err := s.moveToHistory(ctx, cancelled); err != nil {
		return models.PatientRecord{}, err
	}
	s.clearCurrent(ctx, id)
	s.record(ctx, models.EventPatientCancelled, cancelled.ID, cancelled.Name)
	return cancelled, nil
}

// UpdatePatient overwrites the editable fields of an active or history
// record. Status and timestamps are untouched.
func (s *Service) UpdatePatient(ctx context.Context, id string, in PatientInput) (models.PatientRecord, error) {
	in, err := cleanInput(in)
	if err != nil {
		return models.PatientRecord{}, err
	}
	apply := func(rec *models.PatientRecord) error {
		rec.Name = in.Name
		rec.HN = in.HN
		rec.Doctors = in.Doctors
		rec.Note = in.Note
		return nil
	}

	updated, err := s.transactRecord(ctx, PathActive, id, apply)
	if errors.Is(err, ErrPatientNotFound) {
		updated, err = s.transactRecord(ctx, PathHistory, id, apply)
	}
	if err != nil {
		return models.PatientRecord{}, err
	}
	s.record(ctx, models.EventPatientUpdated, updated.ID, updated.Name)
	return updated, nil
}

// DeletePatient removes a record from both partitions. There is no undo.
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	if _, _, err := s.Lookup(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.Join(PathActive, id)); err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	if err := s.store.Delete(ctx, store.Join(PathHistory, id)); err != nil {
		return fmt.Errorf("delete patient %s history: %w", id, err)
	}
	s.clearCurrent(ctx, id)
	s.record(ctx, models.EventPatientDeleted, id, "")
	return nil
}

// Lookup finds a record in the active partition, falling back to history.
func (s *Service) Lookup(ctx context.Context, id string) (models.PatientRecord, models.Partition, error) {
	rec, err := s.get(ctx, PathActive, id)
	if err == nil {
		return rec, models.PartitionActive, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return models.PatientRecord{}, "", err
	}
	rec, err = s.get(ctx, PathHistory, id)
	if err != nil {
		return models.PatientRecord{}, "", err
	}
	return rec, models.PartitionHistory, nil
}

// Active lists waiting and in-progress records by arrival.
func (s *Service) Active(ctx context.Context) ([]models.PatientRecord, error) {
	records, err := s.list(ctx, PathActive)
	if err != nil {
		return nil, err
	}
	sortByArrival(records)
	return records, nil
}

// History lists finished records, most recently finished first.
func (s *Service) History(ctx context.Context) ([]models.PatientRecord, error) {
	records, err := s.list(ctx, PathHistory)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return finishedAt(records[i]).After(finishedAt(records[j]))
	})
	return records, nil
}

// Board is every record in display order.
func (s *Service) Board(ctx context.Context) ([]models.PatientRecord, error) {
	active, err := s.list(ctx, PathActive)
	if err != nil {
		return nil, err
	}
	history, err := s.list(ctx, PathHistory)
	if err != nil {
		return nil, err
	}
	board := append(active, history...)
	SortBoard(board)
	return board, nil
}

// Current returns the patient in the room, if any.
func (s *Service) Current(ctx context.Context) (models.PatientRecord, bool, error) {
	id, err := s.currentID(ctx)
	if err != nil || id == "" {
		return models.PatientRecord{}, false, err
	}
	rec, err := s.get(ctx, PathActive, id)
	if errors.Is(err, ErrPatientNotFound) {
		return models.PatientRecord{}, false, nil
	}
	if err != nil {
		return models.PatientRecord{}, false, err
	}
	return rec, true, nil
}

// StatusView builds the read model of a patient's status page.
func (s *Service) StatusView(ctx context.Context, id string) (models.PatientStatusView, error) {
	rec, partition, err := s.Lookup(ctx, id)
	if err != nil {
		return models.PatientStatusView{}, err
	}
	active, err := s.Active(ctx)
	if err != nil {
		return models.PatientStatusView{}, err
	}
	history, err := s.list(ctx, PathHistory)
	if err != nil {
		return models.PatientStatusView{}, err
	}

	view := models.PatientStatusView{
		Patient:      rec,
		Partition:    partition,
		Position:     Position(active, id),
		WaitingCount: WaitingCount(active),
	}
	if view.Position > 0 {
		avg := AverageServiceTime(history, s.avg)
		wait := time.Duration(view.Position-1) * avg
		at := s.now().Add(wait)
		view.EstimatedWaitSecs = int64(wait / time.Second)
		view.EstimatedCallAt = &at
	}
	return view, nil
}

// EstimatedServiceTime is the average used for roster estimates right now.
func (s *Service) EstimatedServiceTime(ctx context.Context) (time.Duration, error) {
	history, err := s.list(ctx, PathHistory)
	if err != nil {
		return 0, err
	}
	return AverageServiceTime(history, s.avg), nil
}

func (s *Service) transactRecord(ctx context.Context, collection, id string, mutate func(rec *models.PatientRecord) error) (models.PatientRecord, error) {
	if strings.TrimSpace(id) == "" {
		return models.PatientRecord{}, ErrPatientNotFound
	}
	var out models.PatientRecord
	_, err := s.store.Transact(ctx, store.Join(collection, id), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("patient %s: %w", id, ErrPatientNotFound)
		}
		rec, err := decodeRecord(id, current)
		if err != nil {
			return nil, err
		}
		if err := mutate(&rec); err != nil {
			return nil, err
		}
		out = rec
		return json.Marshal(rec)
	})
	if err != nil {
		return models.PatientRecord{}, err
	}
	return out, nil
}

func (s *Service) moveToHistory(ctx context.Context, rec models.PatientRecord) error {
	if err := s.put(ctx, PathHistory, rec); err != nil {
		return fmt.Errorf("file %s in history: %w", rec.ID, err)
	}
	if err := s.store.Delete(ctx, store.Join(PathActive, rec.ID)); err != nil {
		return fmt.Errorf("remove %s from active: %w", rec.ID, err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, collection, id string) (models.PatientRecord, error) {
	if strings.TrimSpace(id) == "" {
		return models.PatientRecord{}, ErrPatientNotFound
	}
	raw, err := s.store.Get(ctx, store.Join(collection, id))
	if errors.Is(err, store.ErrNotFound) {
		return models.PatientRecord{}, fmt.Errorf("patient %s: %w", id, ErrPatientNotFound)
	}
	if err != nil {
		return models.PatientRecord{}, err
	}
	return decodeRecord(id, raw)
}

func (s *Service) put(ctx context.Context, collection string, rec models.PatientRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, store.Join(collection, rec.ID), raw)
}

func (s *Service) list(ctx context.Context, collection string) ([]models.PatientRecord, error) {
	children, err := s.store.Children(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	records := make([]models.PatientRecord, 0, len(children))
	for id, raw := range children {
		rec, err := decodeRecord(id, raw)
		if err != nil {
			log.Printf("[roster] skip unreadable record %s/%s: %v", collection, id, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Service) currentID(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, PathCurrent)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("decode %s: %w", PathCurrent, err)
	}
	return id, nil
}

func (s *Service) requireCurrent(ctx context.Context) (string, error) {
	id, err := s.currentID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrNoCurrentPatient
	}
	return id, nil
}

func (s *Service) setCurrent(ctx context.Context, id string) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, PathCurrent, raw)
}

// clearCurrent empties the pointer only while it still names id.
func (s *Service) clearCurrent(ctx context.Context, id string) {
	_, err := s.store.Transact(ctx, PathCurrent, func(current []byte) ([]byte, error) {
		var pointed string
		if current != nil {
			_ = json.Unmarshal(current, &pointed)
		}
		if pointed != id {
			return nil, nil
		}
		return json.Marshal("")
	})
	if err != nil {
		log.Printf("[roster] clear current pointer %s: %v", id, err)
	}
}

func (s *Service) record(ctx context.Context, name, patientID, detail string) {
	s.events.Record(ctx, models.QueueEvent{
		Event:     name,
		PatientID: patientID,
		Detail:    detail,
		CreatedAt: s.now(),
	})
}

func decodeRecord(id string, raw []byte) (models.PatientRecord, error) {
	var rec models.PatientRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.PatientRecord{}, fmt.Errorf("decode patient %s: %w", id, err)
	}
	rec.ID = id
	if rec.Status == "" {
		rec.Status = models.StatusWaiting
	}
	return rec, nil
}

func cleanInput(in PatientInput) (PatientInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return PatientInput{}, ErrNameRequired
	}
	in.HN = strings.TrimSpace(in.HN)
	in.Note = strings.TrimSpace(in.Note)
	in.Doctors = uniqueNames(in.Doctors)
	return in, nil
}

// uniqueNames trims, drops blanks and keeps the first occurrence of each name.
func uniqueNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
