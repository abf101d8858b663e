package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu sync.Mutex

	patients   []Patient
	treatments []Treatment
	labs       []LabResult
	issues     []QualityIssue
	audits     []AuditEntry
	users      map[string]User

	integrations []Integration
	trends       []TrendPoint

	// failCreate fails CreatePatient for these patient identifiers.
	failCreate map[string]error
	auditErr   error
	countErr   error
}

func newMemStore() *memStore {
	return &memStore{users: map[string]User{}, failCreate: map[string]error{}}
}

var _ Store = (*memStore)(nil)

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) matches(p Patient, f PatientFilter) bool {
	if !f.IncludeInactive && !p.IsActive {
		return false
	}
	if f.TBStatus != "" && p.TBStatus != f.TBStatus {
		return false
	}
	if f.HIVStatus != "" && p.HIVStatus != f.HIVStatus {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hay := strings.ToLower(p.FirstName + " " + p.LastName + " " + p.PatientID)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

func (m *memStore) CountPatients(_ context.Context, f PatientFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	var n int64
	for _, p := range m.patients {
		if m.matches(p, f) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreatePatient(_ context.Context, rec PatientRecord) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failCreate[rec.PatientID]; ok {
		return nil, err
	}
	for _, p := range m.patients {
		if p.PatientID == rec.PatientID {
			return nil, ErrConflict
		}
	}
	p := Patient{
		ID:               uuid.New(),
		PatientRecord:    rec,
		RegistrationDate: NewDate(time.Now()),
		LastUpdated:      time.Now(),
		IsActive:         true,
	}
	m.patients = append(m.patients, p)
	return &p, nil
}

func (m *memStore) ListPatients(_ context.Context, f PatientFilter) ([]Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Patient{}
	for _, p := range m.patients {
		if m.matches(p, f) {
			out = append(out, p)
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Patient{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.ID == id && p.IsActive {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) UpdatePatient(_ context.Context, id uuid.UUID, rec PatientRecord) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients[i].PatientRecord = rec
			m.patients[i].LastUpdated = time.Now()
			p := m.patients[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) DeactivatePatient(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients[i].IsActive = false
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) CreateTreatment(_ context.Context, t Treatment) (*Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = time.Now()
	m.treatments = append(m.treatments, t)
	return &t, nil
}

func (m *memStore) ListTreatments(_ context.Context, patientID uuid.UUID) ([]Treatment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Treatment{}
	for _, t := range m.treatments {
		if t.PatientID == patientID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) CreateLabResult(_ context.Context, l LabResult) (*LabResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.CreatedAt = time.Now()
	m.labs = append(m.labs, l)
	return &l, nil
}

func (m *memStore) ListLabResults(_ context.Context, patientID uuid.UUID) ([]LabResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []LabResult{}
	for _, l := range m.labs {
		if l.PatientID == patientID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) ListIntegrations(context.Context) ([]Integration, error) {
	return m.integrations, nil
}

func (m *memStore) ListQualityIssues(_ context.Context, f QualityIssueFilter) ([]QualityIssue, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []QualityIssue{}
	for _, q := range m.issues {
		if f.Severity != "" && q.Severity != f.Severity {
			continue
		}
		if f.Resolved != nil && q.IsResolved != *f.Resolved {
			continue
		}
		out = append(out, q)
	}
	total := int64(len(out))
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = []QualityIssue{}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memStore) ResolveQualityIssue(_ context.Context, id uuid.UUID, userID string) (*QualityIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.issues {
		if m.issues[i].ID == id {
			now := time.Now()
			m.issues[i].IsResolved = true
			m.issues[i].ResolvedBy = userID
			m.issues[i].ResolvedAt = &now
			q := m.issues[i]
			return &q, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) CountCoInfections(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.patients {
		if p.IsActive && p.CoInfected() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountActiveTreatments(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.treatments {
		if t.Status == "active" {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountQualityIssues(context.Context) (IssueCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c IssueCounts
	for _, q := range m.issues {
		c.Total++
		if q.IsResolved {
			c.Resolved++
		}
	}
	return c, nil
}

func (m *memStore) CoInfectionTrends(context.Context, time.Time) ([]TrendPoint, error) {
	return m.trends, nil
}

func (m *memStore) ProvincialDistribution(context.Context) ([]ProvinceCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byProvince := map[string]*ProvinceCount{}
	for _, p := range m.patients {
		if !p.IsActive || p.Province == "" {
			continue
		}
		pc, ok := byProvince[p.Province]
		if !ok {
			pc = &ProvinceCount{Province: p.Province}
			byProvince[p.Province] = pc
		}
		if p.TBStatus == "confirmed" {
			pc.TBCases++
		}
		if p.HIVStatus == "positive" {
			pc.HIVCases++
		}
		if p.CoInfected() {
			pc.CoInfections++
		}
	}
	out := []ProvinceCount{}
	for _, pc := range byProvince {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Province < out[j].Province })
	return out, nil
}

func (m *memStore) Record(_ context.Context, ev AuditEvent) error {
	if m.auditErr != nil {
		return m.auditErr
	}
	oldValues, err := EncodeAuditValues(ev.OldValues)
	if err != nil {
		return err
	}
	newValues, err := EncodeAuditValues(ev.NewValues)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, AuditEntry{
		ID:           uuid.New(),
		UserID:       ev.UserID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		IPAddress:    ev.IPAddress,
		UserAgent:    ev.UserAgent,
		CreatedAt:    time.Now(),
	})
	return nil
}

func (m *memStore) ListAuditLogs(_ context.Context, f AuditFilter) ([]AuditEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []AuditEntry{}
	for _, a := range m.audits {
		if f.Action != "" && a.Action != f.Action {
			continue
		}
		if f.ResourceType != "" && a.ResourceType != f.ResourceType {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

func (m *memStore) PurgeAuditLogs(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.audits[:0]
	var purged int64
	for _, a := range m.audits {
		if a.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, a)
	}
	m.audits = kept
	return purged, nil
}

func (m *memStore) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memStore) UpsertUser(_ context.Context, u User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = time.Now()
	}
	m.users[u.ID] = u
	return &u, nil
}

// auditsFor returns recorded entries with the given action.
func (m *memStore) auditsFor(action AuditAction) []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEntry
	for _, a := range m.audits {
		if a.Action == action {
			out = append(out, a)
		}
	}
	return out
}

var errBoom = errors.New("boom")
