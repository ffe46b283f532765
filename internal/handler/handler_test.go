package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/evidence"
	"qrattend/internal/justification"
	"qrattend/internal/notify"
	"qrattend/internal/queue"
	"qrattend/internal/store/inmem"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type syncPublisher struct {
	notes *notify.Service
}

func (p syncPublisher) Publish(ctx context.Context, msg queue.Message) error {
	return p.notes.Handle(ctx, msg)
}

// countingStore records how many evidence files reached storage.
type countingStore struct {
	evidence.StubStore
	saves int
}

func (s *countingStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	s.saves++
	return s.StubStore.Save(ctx, name, data)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	signer *auth.Signer
	now    time.Time
	att    attendance.Store
	files  *countingStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{t: t, now: t0}
	clock := func() time.Time { return ts.now }

	db := inmem.New()
	ts.att = inmem.NewAttendanceRepository(db)
	notes := notify.NewService(inmem.NewNotificationRepository(db), clock)
	pub := syncPublisher{notes: notes}
	att := attendance.NewService(ts.att, attendance.Options{Now: clock, Publisher: pub})
	justs := justification.NewService(inmem.NewJustificationRepository(db), pub, clock)

	ctx := context.Background()
	_, err := att.CreateModule(ctx, attendance.Module{ID: "M1", Code: "ALG1", Name: "Algorithms"})
	require.NoError(t, err)
	for _, s := range []attendance.ScheduledSession{
		{ID: "S1", ModuleID: "M1", TeacherID: "t1", Room: "A12", DayOfWeek: 1, StartTime: "08:30", EndTime: "10:00", Kind: attendance.KindLecture},
		{ID: "S2", ModuleID: "M1", TeacherID: "t1", Room: "Lab 3", DayOfWeek: 2, StartTime: "10:00", EndTime: "11:30", Kind: attendance.KindPractical},
	} {
		_, err := att.CreateSession(ctx, s)
		require.NoError(t, err)
	}
	require.NoError(t, ts.att.InsertCode(ctx, attendance.AttendanceCode{
		Token: "QR-ABC", SessionID: "S1", IssuedBy: "t1", IssuedAt: t0, ExpiresAt: t0.Add(10 * time.Minute),
	}))

	ts.signer = auth.NewSigner("test-key", "qrattend", time.Hour)
	ts.signer.Now = clock
	ts.files = &countingStore{StubStore: evidence.StubStore{Now: clock}}
	ts.router = gin.New()
	New(att, justs, notes, ts.files).Register(ts.router, ts.signer, nil)
	return ts
}

func (ts *testServer) token(subject, role string) string {
	tok, err := ts.signer.Issue(subject, role)
	require.NoError(ts.t, err)
	return tok.AccessToken
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return ts.send(req, token)
}

func (ts *testServer) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSubmitAttendance(t *testing.T) {
	ts := newTestServer(t)
	stu1 := ts.token("stu1", auth.RoleStudent)

	ts.now = t0.Add(2 * time.Minute)
	rec := ts.do(http.MethodPost, "/v1/attendance", stu1, gin.H{"code": "QR-ABC", "student_id": "stu1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode(t, rec)
	assert.Equal(t, false, first["already_registered"])
	att := first["attendance"].(map[string]any)
	assert.Equal(t, "2024-03-04", att["date"])
	assert.Equal(t, "present", att["status"])
	assert.Equal(t, "Algorithms", first["module"].(map[string]any)["name"])
	assert.Equal(t, "08:30 - 10:00", first["session"].(map[string]any)["time"])

	rec = ts.do(http.MethodPost, "/v1/attendance", stu1, gin.H{"code": "QR-ABC"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode(t, rec)
	assert.Equal(t, true, second["already_registered"])
	assert.Equal(t, att["id"], second["attendance"].(map[string]any)["id"])
}

func TestSubmitAttendanceErrors(t *testing.T) {
	ts := newTestServer(t)
	stu1 := ts.token("stu1", auth.RoleStudent)

	tests := []struct {
		name   string
		at     time.Time
		token  string
		body   gin.H
		status int
		code   string
	}{
		{"expired", t0.Add(11 * time.Minute), stu1, gin.H{"code": "QR-ABC"}, http.StatusBadRequest, "expired_code"},
		{"expiry instant", t0.Add(10 * time.Minute), stu1, gin.H{"code": "QR-ABC"}, http.StatusBadRequest, "expired_code"},
		{"unknown code", t0, stu1, gin.H{"code": "QR-NOPE"}, http.StatusNotFound, "invalid_code"},
		{"missing code", t0, stu1, gin.H{}, http.StatusBadRequest, "invalid_input"},
		{"other student", t0, stu1, gin.H{"code": "QR-ABC", "student_id": "stu2"}, http.StatusForbidden, "forbidden"},
		{"teacher", t0, ts.token("t1", auth.RoleTeacher), gin.H{"code": "QR-ABC"}, http.StatusForbidden, "forbidden"},
		{"anonymous", t0, "", gin.H{"code": "QR-ABC"}, http.StatusUnauthorized, "unauthenticated"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts.now = tc.at
			rec := ts.do(http.MethodPost, "/v1/attendance", tc.token, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decode(t, rec)["code"])
		})
	}
}

func TestAttendanceHistory(t *testing.T) {
	ts := newTestServer(t)
	stu1 := ts.token("stu1", auth.RoleStudent)
	ts.now = t0.Add(time.Minute)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/attendance", stu1, gin.H{"code": "QR-ABC"}).Code)

	rec := ts.do(http.MethodGet, "/v1/attendance", stu1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["attendance"], 1)

	teacher := ts.token("t1", auth.RoleTeacher)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/v1/attendance", teacher, nil).Code)
	rec = ts.do(http.MethodGet, "/v1/attendance?student_id=stu1", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["attendance"], 1)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/v1/attendance?student_id=stu2", stu1, nil).Code)
}

func TestIssueCode(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/sessions/S1/codes", ts.token("t1", auth.RoleTeacher), gin.H{"ttl_seconds": 300})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var code attendance.AttendanceCode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))
	assert.Regexp(t, `^QR-[A-Z2-7]{16}$`, code.Token)
	assert.Equal(t, t0.Add(5*time.Minute), code.ExpiresAt.UTC())

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/v1/sessions/S1/codes", ts.token("t2", auth.RoleTeacher), nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/v1/sessions/S9/codes", ts.token("t1", auth.RoleTeacher), nil).Code)
	assert.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/v1/sessions/S1/codes", ts.token("root", auth.RoleAdmin), nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/v1/sessions/S1/codes", ts.token("t1", auth.RoleTeacher), gin.H{"ttl_seconds": -5}).Code)

	rec = ts.do(http.MethodGet, "/v1/codes", ts.token("t1", auth.RoleTeacher), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["codes"], 3)
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileName string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestJustificationLifecycle(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token("root", auth.RoleAdmin)

	rec := ts.do(http.MethodPost, "/v1/admin/absences", admin, gin.H{"session_id": "S2", "date": "2024-03-05", "student_ids": []string{"stu1"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["created"])

	// Tokens live for an hour, so they are minted on the filing day.
	ts.now = t0.Add(48 * time.Hour)
	stu1 := ts.token("stu1", auth.RoleStudent)
	teacher := ts.token("t1", auth.RoleTeacher)
	req := multipartRequest(t, "/v1/justifications", map[string]string{
		"module_id":    "M1",
		"absence_date": "2024-03-05",
		"reason":       "medical",
	}, "certificate.pdf", []byte("%PDF-1.4"))
	rec = ts.send(req, stu1)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	filed := decode(t, rec)
	assert.Equal(t, "pending", filed["status"])
	assert.Equal(t, "/uploads/justifications/1709715600000_certificate.pdf", filed["evidence_ref"])
	assert.Equal(t, 1, ts.files.saves)
	id := filed["id"].(string)

	req = multipartRequest(t, "/v1/justifications", map[string]string{
		"module_id":    "M1",
		"absence_date": "2024-03-05",
		"reason":       "again",
	}, "certificate.pdf", []byte("%PDF-1.4"))
	rec = ts.send(req, stu1)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, 1, ts.files.saves, "a duplicate filing stores no evidence")

	rec = ts.do(http.MethodGet, "/v1/notifications", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["notifications"], 1)

	rec = ts.do(http.MethodGet, "/v1/justifications", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["justifications"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "Algorithms", list[0].(map[string]any)["module_name"])
	assert.Equal(t, "2024-03-05", list[0].(map[string]any)["absence_date"])

	assert.Equal(t, http.StatusForbidden,
		ts.do(http.MethodPost, "/v1/justifications/"+id+"/review", ts.token("t2", auth.RoleTeacher), gin.H{"decision": "approved"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		ts.do(http.MethodPost, "/v1/justifications/"+id+"/review", teacher, gin.H{"decision": "maybe"}).Code)

	rec = ts.do(http.MethodPost, "/v1/justifications/"+id+"/review", teacher, gin.H{"decision": "approved", "note": "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decode(t, rec)["status"])

	rec = ts.do(http.MethodPost, "/v1/justifications/"+id+"/review", teacher, gin.H{"decision": "approved"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_resolved", decode(t, rec)["code"])

	rec = ts.do(http.MethodGet, "/v1/justifications/"+id, stu1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decode(t, rec)["status"])

	rec = ts.do(http.MethodGet, "/v1/notifications", stu1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode(t, rec)["notifications"].([]any)
	require.Len(t, notes, 1)
	noteID := notes[0].(map[string]any)["id"].(string)
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodPost, "/v1/notifications/"+noteID+"/read", stu1, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/v1/notifications/"+noteID+"/read", teacher, nil).Code)
}

func TestFileJustificationNoMatchingAbsence(t *testing.T) {
	ts := newTestServer(t)
	stu1 := ts.token("stu1", auth.RoleStudent)

	req := multipartRequest(t, "/v1/justifications", map[string]string{
		"module_id":    "M1",
		"absence_date": "2024-03-05",
		"reason":       "medical",
	}, "", nil)
	rec := ts.send(req, stu1)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_matching_absence", decode(t, rec)["code"])

	req = multipartRequest(t, "/v1/justifications", map[string]string{"reason": "medical"}, "", nil)
	assert.Equal(t, http.StatusBadRequest, ts.send(req, stu1).Code)
}

func TestRejectedFilingStoresNoEvidence(t *testing.T) {
	ts := newTestServer(t)
	stu1 := ts.token("stu1", auth.RoleStudent)

	ts.now = t0.Add(2 * time.Minute)
	rec := ts.do(http.MethodPost, "/v1/attendance", stu1, gin.H{"code": "QR-ABC"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	presentID := decode(t, rec)["attendance"].(map[string]any)["id"].(string)

	tests := []struct {
		name   string
		fields map[string]string
		status int
	}{
		{"present record", map[string]string{"attendance_id": presentID, "reason": "medical"}, http.StatusNotFound},
		{"unknown record", map[string]string{"attendance_id": "nope", "reason": "medical"}, http.StatusNotFound},
		{"missing reason", map[string]string{"attendance_id": presentID}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := multipartRequest(t, "/v1/justifications", tc.fields, "certificate.pdf", []byte("%PDF-1.4"))
			rec := ts.send(req, stu1)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
	assert.Zero(t, ts.files.saves)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/v1/admin/modules", ts.token("t1", auth.RoleTeacher), gin.H{"code": "NET", "name": "Networks"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/modules", ts.token("root", auth.RoleAdmin), gin.H{"code": "NET", "name": "Networks"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(http.MethodPost, "/v1/admin/modules", ts.token("root", auth.RoleAdmin), gin.H{"code": "NET", "name": "Networks again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/sessions", ts.token("root", auth.RoleAdmin), gin.H{
		"module_id": "M1", "teacher_id": "t3", "day_of_week": 3, "start_time": "14:00", "end_time": "13:00", "kind": "lecture",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/sessions?teacher_id=t1", ts.token("stu1", auth.RoleStudent), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["sessions"], 2)
}
