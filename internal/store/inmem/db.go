// Package inmem is a map-backed store used by tests and the memory backend.
// It enforces the same uniqueness rules as the SQL schema.
package inmem

import (
	"sync"

	"qrattend/internal/attendance"
	"qrattend/internal/justification"
	"qrattend/internal/notify"
)

type recordKey struct {
	studentID, sessionID, date string
}

// DB holds every table behind one lock.
type DB struct {
	mutex sync.RWMutex

	modules       map[string]attendance.Module
	sessions      map[string]attendance.ScheduledSession
	codes         map[string]attendance.AttendanceCode
	records       map[string]attendance.Record
	recordIndex   map[recordKey]string
	justifs       map[string]justification.Justification
	notifications map[string]notify.Notification
}

// New returns an empty database.
func New() *DB {
	return &DB{
		modules:       make(map[string]attendance.Module),
		sessions:      make(map[string]attendance.ScheduledSession),
		codes:         make(map[string]attendance.AttendanceCode),
		records:       make(map[string]attendance.Record),
		recordIndex:   make(map[recordKey]string),
		justifs:       make(map[string]justification.Justification),
		notifications: make(map[string]notify.Notification),
	}
}
