package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/store/inmem"
)

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func setup(t *testing.T) (*commandLine, *bytes.Buffer, attendance.Store) {
	t.Helper()
	repo := inmem.NewAttendanceRepository(inmem.New())
	ctx := context.Background()
	require.NoError(t, repo.CreateModule(ctx, attendance.Module{ID: "M1", Code: "ALG1", Name: "Algorithms"}))
	require.NoError(t, repo.CreateSession(ctx, attendance.ScheduledSession{
		ID: "S1", ModuleID: "M1", TeacherID: "t1", DayOfWeek: 1, StartTime: "08:30", EndTime: "10:00", Kind: attendance.KindLecture,
	}))

	out := &bytes.Buffer{}
	migrated := false
	cli := &commandLine{
		out:    out,
		signer: auth.NewSigner("secret", "qrattend", time.Hour),
		att:    attendance.NewService(repo, attendance.Options{}),
		migrate: func(context.Context) error {
			if migrated {
				return errors.New("already migrated")
			}
			migrated = true
			return nil
		},
	}
	return cli, out, repo
}

func Test_commandLine_run(t *testing.T) {
	cli, out, _ := setup(t)

	tests := []cliTest{
		{name: "no command", args: []string{}, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "token: missing role", args: []string{"token", "-sub", "t1"}, wantErr: errHelp},
		{name: "token: bad role", args: []string{"token", "-sub", "t1", "-role", "janitor"}, wantErrStr: "unknown role"},
		{name: "migrate", args: []string{"migrate"}, wantOut: "schema up to date"},
		{name: "migrate twice", args: []string{"migrate"}, wantErrStr: "already migrated"},
		{name: "issue: no session", args: []string{"issue"}, wantErr: errHelp},
		{name: "issue: unknown session", args: []string{"issue", "-session", "S9"}, wantErr: attendance.ErrSessionNotFound},
		{name: "issue", args: []string{"issue", "-session", "S1", "-ttl", "5m"}, wantOut: "QR-"},
		{name: "mark-absent: missing flags", args: []string{"mark-absent", "-session", "S1"}, wantErr: errHelp},
		{name: "mark-absent", args: []string{"mark-absent", "-session", "S1", "-date", "2024-03-04", "-students", "stu1,stu2"}, wantOut: "recorded 2 absences"},
		{name: "mark-absent again", args: []string{"mark-absent", "-session", "S1", "-date", "2024-03-04", "-students", "stu1,stu3"}, wantOut: "recorded 1 absences"},
		{name: "purge-codes", args: []string{"purge-codes", "-retention", "1h"}, wantOut: "purged 0 codes"},
		{name: "bad flag", args: []string{"purge-codes", "-retention", "soon"}, wantErrStr: "invalid value"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(context.Background(), append([]string{"admin"}, tc.args...))
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.wantErrStr != "":
				assert.ErrorContains(t, err, tc.wantErrStr)
			default:
				require.NoError(t, err)
				assert.Contains(t, out.String(), tc.wantOut)
			}
		})
	}
}

func Test_commandLine_token(t *testing.T) {
	cli, out, _ := setup(t)
	require.NoError(t, cli.run(context.Background(), []string{"admin", "token", "-sub", "stu1", "-role", "student"}))

	claims, err := cli.signer.Parse(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "stu1", claims.Subject)
	assert.Equal(t, auth.RoleStudent, claims.Role)
}

func Test_needsStore(t *testing.T) {
	assert.False(t, needsStore([]string{"admin"}))
	assert.False(t, needsStore([]string{"admin", "token"}))
	assert.True(t, needsStore([]string{"admin", "migrate"}))
	assert.True(t, needsStore([]string{"admin", "issue"}))
}
