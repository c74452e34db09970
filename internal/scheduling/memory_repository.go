package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps all aggregates in mutex-guarded maps. It backs tests and
// deployments without a POSTGRES_DSN.
type MemoryStore struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]Appointment
	entries      map[uuid.UUID]WaitlistEntry
	messages     []Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appointments: map[uuid.UUID]Appointment{},
		entries:      map[uuid.UUID]WaitlistEntry{},
	}
}

// Appointments

func (s *MemoryStore) Create(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments[appt.ID] = *appt
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (s *MemoryStore) Update(ctx context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[appt.ID]; !ok {
		return ErrAppointmentNotFound
	}
	s.appointments[appt.ID] = *appt
	return nil
}

func (s *MemoryStore) ListBookedByProvider(ctx context.Context, provider string, within Window) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.Provider == provider && a.Status == StatusBooked && a.Window.Overlaps(within) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) ListBookedBetween(ctx context.Context, within Window) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appointments {
		if a.Status == StatusBooked && a.Window.Overlaps(within) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) SearchByPatient(ctx context.Context, name, dob string) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(name)
	var out []Appointment
	for _, a := range s.appointments {
		if a.Status != StatusBooked {
			continue
		}
		if !strings.Contains(strings.ToLower(a.PatientName), needle) {
			continue
		}
		if dob != "" && a.PatientDOB != dob {
			continue
		}
		out = append(out, a)
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].Window.Start.Equal(appts[j].Window.Start) {
			return appts[i].Provider < appts[j].Provider
		}
		return appts[i].Window.Start.Before(appts[j].Window.Start)
	})
}

// Waitlist entries

func (s *MemoryStore) CreateEntry(ctx context.Context, entry *WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = *entry
	return nil
}

func (s *MemoryStore) GetEntryByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &entry, nil
}

func (s *MemoryStore) UpdateEntry(ctx context.Context, entry *WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; !ok {
		return ErrEntryNotFound
	}
	s.entries[entry.ID] = *entry
	return nil
}

func (s *MemoryStore) ListEntriesByStatus(ctx context.Context, status WaitlistStatus) ([]WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []WaitlistEntry
	for _, e := range s.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Messages

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Interface adapters: the memory store serves all three repositories through
// thin views so each component depends only on its own interface.

type memoryWaitlistRepo struct{ s *MemoryStore }

func (r memoryWaitlistRepo) Create(ctx context.Context, e *WaitlistEntry) error {
	return r.s.CreateEntry(ctx, e)
}
func (r memoryWaitlistRepo) GetByID(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	return r.s.GetEntryByID(ctx, id)
}
func (r memoryWaitlistRepo) Update(ctx context.Context, e *WaitlistEntry) error {
	return r.s.UpdateEntry(ctx, e)
}
func (r memoryWaitlistRepo) ListByStatus(ctx context.Context, st WaitlistStatus) ([]WaitlistEntry, error) {
	return r.s.ListEntriesByStatus(ctx, st)
}

type memoryMessageRepo struct{ s *MemoryStore }

func (r memoryMessageRepo) Create(ctx context.Context, m *Message) error {
	return r.s.CreateMessage(ctx, m)
}
func (r memoryMessageRepo) List(ctx context.Context, limit int) ([]Message, error) {
	return r.s.ListMessages(ctx, limit)
}

func (s *MemoryStore) Appointments() AppointmentRepo { return s }
func (s *MemoryStore) Waitlist() WaitlistRepo        { return memoryWaitlistRepo{s} }
func (s *MemoryStore) Messages() MessageRepo         { return memoryMessageRepo{s} }
