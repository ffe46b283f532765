package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	out     io.Writer
	signer  *auth.Signer
	att     *attendance.Service
	migrate func(ctx context.Context) error
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  token -sub ID -role student|teacher|admin        - print a signed access token")
	fmt.Fprintln(cli.out, "  migrate                                         - create the database schema")
	fmt.Fprintln(cli.out, "  issue -session ID [-ttl 10m] [-by ID]           - issue an attendance code")
	fmt.Fprintln(cli.out, "  purge-codes [-retention 168h]                   - delete long-expired codes")
	fmt.Fprintln(cli.out, "  mark-absent -session ID -date YYYY-MM-DD -students a,b,c - record absences")
}

// needsStore reports whether the subcommand touches the database.
func needsStore(args []string) bool {
	return len(args) >= 2 && args[1] != "token" && args[1] != "help"
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "token":
		fs := cli.flagSet("token")
		sub := fs.String("sub", "", "user id the token is issued for")
		role := fs.String("role", "", "student, teacher or admin")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *sub == "" || *role == "" {
			fs.Usage()
			return errHelp
		}
		tok, err := cli.signer.Issue(*sub, *role)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, tok.AccessToken)
		return nil

	case "migrate":
		if err := cli.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "schema up to date")
		return nil

	case "issue":
		fs := cli.flagSet("issue")
		session := fs.String("session", "", "scheduled session id")
		ttl := fs.Duration("ttl", 0, "code lifetime, configured default when zero")
		by := fs.String("by", "admin", "issuer recorded on the code")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *session == "" {
			fs.Usage()
			return errHelp
		}
		code, err := cli.att.Issue(ctx, attendance.IssueRequest{SessionID: *session, TTL: *ttl, IssuedBy: *by, AnyScope: true})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s expires %s\n", code.Token, code.ExpiresAt.Format(time.RFC3339))
		return nil

	case "purge-codes":
		fs := cli.flagSet("purge-codes")
		retention := fs.Duration("retention", 7*24*time.Hour, "keep codes expired for less than this")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		n, err := cli.att.PurgeExpired(ctx, *retention)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "purged %d codes\n", n)
		return nil

	case "mark-absent":
		fs := cli.flagSet("mark-absent")
		session := fs.String("session", "", "scheduled session id")
		date := fs.String("date", "", "calendar date, YYYY-MM-DD")
		students := fs.String("students", "", "comma separated student ids")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *session == "" || *date == "" || *students == "" {
			fs.Usage()
			return errHelp
		}
		n, err := cli.att.RecordAbsences(ctx, *session, *date, strings.Split(*students, ","))
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "recorded %d absences\n", n)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}
