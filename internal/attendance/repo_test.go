//go:build cgo

package attendance_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/store"
)

func openSQLite(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.NewDB(store.DriverSQLite, filepath.Join(t.TempDir(), "qrattend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))
	return db
}

func TestRepositorySQLite(t *testing.T) {
	db := openSQLite(t)
	repo := attendance.NewRepository(db.Client)
	ctx := context.Background()

	require.NoError(t, repo.CreateModule(ctx, attendance.Module{ID: "M1", Code: "ALG1", Name: "Algorithms"}))
	assert.ErrorIs(t, repo.CreateModule(ctx, attendance.Module{ID: "M2", Code: "ALG1", Name: "Dup"}), attendance.ErrDuplicate)

	require.NoError(t, repo.CreateSession(ctx, attendance.ScheduledSession{
		ID: "S1", ModuleID: "M1", TeacherID: "t1", Room: "A12", DayOfWeek: 1,
		StartTime: "08:30", EndTime: "10:00", Kind: attendance.KindLecture,
	}))

	code := attendance.AttendanceCode{Token: "QR-ABC", SessionID: "S1", IssuedBy: "t1", IssuedAt: t0, ExpiresAt: t0.Add(10 * time.Minute)}
	require.NoError(t, repo.InsertCode(ctx, code))
	got, err := repo.GetCode(ctx, "QR-ABC")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(code.ExpiresAt))
	_, err = repo.GetCode(ctx, "QR-NOPE")
	assert.ErrorIs(t, err, attendance.ErrNoRows)

	rec := attendance.Record{ID: "r1", StudentID: "stu1", SessionID: "S1", ModuleID: "M1", Date: "2024-03-04", Status: attendance.StatusPresent, RecordedAt: t0}
	require.NoError(t, repo.InsertRecord(ctx, rec))
	dup := rec
	dup.ID = "r2"
	assert.ErrorIs(t, repo.InsertRecord(ctx, dup), attendance.ErrDuplicate, "one record per student, session and date")

	next := rec
	next.ID, next.Date, next.RecordedAt = "r3", "2024-03-11", t0.Add(7*24*time.Hour)
	require.NoError(t, repo.InsertRecord(ctx, next))

	found, err := repo.FindRecord(ctx, "stu1", "S1", "2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, "r1", found.ID)

	history, err := repo.ListHistory(ctx, "stu1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "r3", history[0].ID)
	assert.Equal(t, "Algorithms", history[0].Module.Name)
	assert.Equal(t, "08:30 - 10:00", history[0].Session.Time)

	codes, err := repo.ListCodes(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, codes, 1)

	n, err := repo.DeleteCodesExpiredBefore(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestServiceOnSQLite(t *testing.T) {
	db := openSQLite(t)
	repo := attendance.NewRepository(db.Client)
	c := &clock{now: t0}
	svc := attendance.NewService(repo, attendance.Options{Now: c.Now})
	ctx := context.Background()

	_, err := svc.CreateModule(ctx, attendance.Module{ID: "M1", Code: "ALG1", Name: "Algorithms"})
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, attendance.ScheduledSession{
		ID: "S1", ModuleID: "M1", TeacherID: "t1", DayOfWeek: 1, StartTime: "08:30", EndTime: "10:00", Kind: attendance.KindLecture,
	})
	require.NoError(t, err)

	code, err := svc.Issue(ctx, attendance.IssueRequest{SessionID: "S1", IssuedBy: "t1"})
	require.NoError(t, err)

	c.Set(t0.Add(2 * time.Minute))
	first, err := svc.Submit(ctx, code.Token, "stu1")
	require.NoError(t, err)
	second, err := svc.Submit(ctx, code.Token, "stu1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyRegistered)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	c.Set(t0.Add(11 * time.Minute))
	_, err = svc.Submit(ctx, code.Token, "stu2")
	assert.ErrorIs(t, err, attendance.ErrExpiredCode)
}
