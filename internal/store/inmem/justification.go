package inmem

import (
	"context"
	"sort"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/justification"
)

type justificationRepository struct {
	db *DB
}

// NewJustificationRepository returns a justification.Store over db.
func NewJustificationRepository(db *DB) justification.Store {
	return &justificationRepository{db: db}
}

func (repo *justificationRepository) GetRecord(_ context.Context, id string) (attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.records[id]; ok {
		return r, nil
	}
	return attendance.Record{}, attendance.ErrNoRows
}

func (repo *justificationRepository) FindAbsences(_ context.Context, studentID, moduleID, date string) ([]attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var res []attendance.Record
	for _, r := range repo.db.records {
		if r.StudentID == studentID && r.ModuleID == moduleID && r.Date == date && r.Status == attendance.StatusAbsent {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].RecordedAt.Equal(res[j].RecordedAt) {
			return res[i].RecordedAt.Before(res[j].RecordedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (repo *justificationRepository) hasActive(attendanceID string) bool {
	for _, j := range repo.db.justifs {
		if j.AttendanceID == attendanceID && j.Status != justification.StatusRejected {
			return true
		}
	}
	return false
}

func (repo *justificationRepository) HasActive(_ context.Context, attendanceID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.hasActive(attendanceID), nil
}

func (repo *justificationRepository) Insert(_ context.Context, j justification.Justification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.justifs[j.ID]; ok {
		return attendance.ErrDuplicate
	}
	if j.Status != justification.StatusRejected && repo.hasActive(j.AttendanceID) {
		return attendance.ErrDuplicate
	}
	repo.db.justifs[j.ID] = j
	return nil
}

func (repo *justificationRepository) Resolve(_ context.Context, id string, status justification.Status, reviewerID string, at time.Time, note string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	j, ok := repo.db.justifs[id]
	if !ok || j.Status != justification.StatusPending {
		return false, nil
	}
	at = at.UTC()
	j.Status = status
	j.ReviewedBy = reviewerID
	j.ReviewedAt = &at
	j.ReviewNote = note
	repo.db.justifs[id] = j
	return true, nil
}

func (repo *justificationRepository) view(j justification.Justification) justification.View {
	v := justification.View{Justification: j}
	rec, ok := repo.db.records[j.AttendanceID]
	if !ok {
		return v
	}
	v.AbsenceDate = rec.Date
	v.ModuleID = rec.ModuleID
	v.SessionID = rec.SessionID
	if m, ok := repo.db.modules[rec.ModuleID]; ok {
		v.ModuleCode = m.Code
		v.ModuleName = m.Name
	}
	if s, ok := repo.db.sessions[rec.SessionID]; ok {
		v.SessionKind = string(s.Kind)
		v.Room = s.Room
		v.TeacherID = s.TeacherID
	}
	return v
}

func (repo *justificationRepository) Get(_ context.Context, id string) (justification.View, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	j, ok := repo.db.justifs[id]
	if !ok {
		return justification.View{}, attendance.ErrNoRows
	}
	return repo.view(j), nil
}

func (repo *justificationRepository) List(_ context.Context, f justification.Filter) ([]justification.View, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var res []justification.View
	for _, j := range repo.db.justifs {
		v := repo.view(j)
		if f.StudentID != "" && v.StudentID != f.StudentID {
			continue
		}
		if f.TeacherID != "" && v.TeacherID != f.TeacherID {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].SubmittedAt.Equal(res[j].SubmittedAt) {
			return res[i].SubmittedAt.After(res[j].SubmittedAt)
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}
