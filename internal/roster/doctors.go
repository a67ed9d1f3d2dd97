package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"clinic-queue/internal/store"
)

const PathDoctors = "doctors"

// Doctors returns the doctor roster in its stored order.
func (s *Service) Doctors(ctx context.Context) ([]string, error) {
	raw, err := s.store.Get(ctx, PathDoctors)
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	names, err := decodeDoctors(raw)
	if err != nil {
		return nil, err
	}
	return names, nil
}

// AddDoctor appends name unless it is already listed.
func (s *Service) AddDoctor(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrDoctorRequired
	}
	return s.updateDoctors(ctx, func(names []string) []string {
		for _, n := range names {
			if n == name {
				return nil
			}
		}
		return append(names, name)
	})
}

// RemoveDoctor drops name from the roster. Patients that reference it keep
// the name.
func (s *Service) RemoveDoctor(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	return s.updateDoctors(ctx, func(names []string) []string {
		out := make([]string, 0, len(names))
		for _, n := range names {
			if n != name {
				out = append(out, n)
			}
		}
		if len(out) == len(names) {
			return nil
		}
		return out
	})
}

// ReplaceDoctors stores names as the whole roster, deduplicated in order.
func (s *Service) ReplaceDoctors(ctx context.Context, names []string) ([]string, error) {
	cleaned := uniqueNames(names)
	if cleaned == nil {
		cleaned = []string{}
	}
	return s.updateDoctors(ctx, func([]string) []string { return cleaned })
}

// updateDoctors applies fn atomically. fn returns nil to leave the roster as is.
func (s *Service) updateDoctors(ctx context.Context, fn func(names []string) []string) ([]string, error) {
	raw, err := s.store.Transact(ctx, PathDoctors, func(current []byte) ([]byte, error) {
		names := []string{}
		if current != nil {
			decoded, err := decodeDoctors(current)
			if err != nil {
				return nil, err
			}
			names = decoded
		}
		next := fn(names)
		if next == nil {
			return nil, nil
		}
		return json.Marshal(next)
	})
	if err != nil {
		return nil, fmt.Errorf("update doctors: %w", err)
	}
	if raw == nil {
		return []string{}, nil
	}
	return decodeDoctors(raw)
}

func decodeDoctors(raw []byte) ([]string, error) {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode %s: %w", PathDoctors, err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
