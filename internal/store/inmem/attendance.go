package inmem

import (
	"context"
	"sort"
	"time"

	"qrattend/internal/attendance"
)

type attendanceRepository struct {
	db *DB
}

// NewAttendanceRepository returns an attendance.Store over db.
func NewAttendanceRepository(db *DB) attendance.Store {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) CreateModule(_ context.Context, m attendance.Module) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.modules[m.ID]; ok {
		return attendance.ErrDuplicate
	}
	for _, existing := range repo.db.modules {
		if existing.Code == m.Code {
			return attendance.ErrDuplicate
		}
	}
	repo.db.modules[m.ID] = m
	return nil
}

func (repo *attendanceRepository) GetModule(_ context.Context, id string) (attendance.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.modules[id]; ok {
		return m, nil
	}
	return attendance.Module{}, attendance.ErrNoRows
}

func (repo *attendanceRepository) CreateSession(_ context.Context, s attendance.ScheduledSession) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.sessions[s.ID]; ok {
		return attendance.ErrDuplicate
	}
	repo.db.sessions[s.ID] = s
	return nil
}

func (repo *attendanceRepository) GetSession(_ context.Context, id string) (attendance.ScheduledSession, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return s, nil
	}
	return attendance.ScheduledSession{}, attendance.ErrNoRows
}

func (repo *attendanceRepository) ListSessions(_ context.Context, teacherID string) ([]attendance.ScheduledSession, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]attendance.ScheduledSession, 0, len(repo.db.sessions))
	for _, s := range repo.db.sessions {
		if teacherID == "" || s.TeacherID == teacherID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
	return res, nil
}

func (repo *attendanceRepository) InsertCode(_ context.Context, c attendance.AttendanceCode) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.codes[c.Token]; ok {
		return attendance.ErrDuplicate
	}
	repo.db.codes[c.Token] = c
	return nil
}

func (repo *attendanceRepository) GetCode(_ context.Context, token string) (attendance.AttendanceCode, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.codes[token]; ok {
		return c, nil
	}
	return attendance.AttendanceCode{}, attendance.ErrNoRows
}

func (repo *attendanceRepository) ListCodes(_ context.Context, teacherID string) ([]attendance.AttendanceCode, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var res []attendance.AttendanceCode
	for _, c := range repo.db.codes {
		if s, ok := repo.db.sessions[c.SessionID]; ok && s.TeacherID == teacherID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].IssuedAt.After(res[j].IssuedAt) })
	return res, nil
}

func (repo *attendanceRepository) DeleteCodesExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int64
	for token, c := range repo.db.codes {
		if c.ExpiresAt.Before(cutoff) {
			delete(repo.db.codes, token)
			n++
		}
	}
	return n, nil
}

func (repo *attendanceRepository) FindRecord(_ context.Context, studentID, sessionID, date string) (attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if id, ok := repo.db.recordIndex[recordKey{studentID, sessionID, date}]; ok {
		return repo.db.records[id], nil
	}
	return attendance.Record{}, attendance.ErrNoRows
}

func (repo *attendanceRepository) InsertRecord(_ context.Context, r attendance.Record) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := recordKey{r.StudentID, r.SessionID, r.Date}
	if _, ok := repo.db.recordIndex[key]; ok {
		return attendance.ErrDuplicate
	}
	if _, ok := repo.db.records[r.ID]; ok {
		return attendance.ErrDuplicate
	}
	repo.db.records[r.ID] = r
	repo.db.recordIndex[key] = r.ID
	return nil
}

func (repo *attendanceRepository) ListHistory(_ context.Context, studentID string) ([]attendance.HistoryEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var res []attendance.HistoryEntry
	for _, r := range repo.db.records {
		if r.StudentID != studentID {
			continue
		}
		e := attendance.HistoryEntry{Record: r, Module: attendance.Module{ID: r.ModuleID}}
		if m, ok := repo.db.modules[r.ModuleID]; ok {
			e.Module = m
		}
		sess, ok := repo.db.sessions[r.SessionID]
		if !ok {
			sess = attendance.ScheduledSession{ID: r.SessionID}
		}
		e.Session = attendance.SessionInfo{
			ID:        sess.ID,
			Kind:      sess.Kind,
			Room:      sess.Room,
			Time:      sess.TimeRange(),
			DayOfWeek: sess.DayOfWeek,
		}
		res = append(res, e)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date > res[j].Date
		}
		return res[i].RecordedAt.After(res[j].RecordedAt)
	})
	return res, nil
}
