package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/masomo-portal/apps/portal"
	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/navigation"
	"github.com/trezcool/masomo-portal/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	p       *portal.Portal
	out     io.Writer
	migrate func(ctx context.Context, command string, args ...string) error
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  login -email EMAIL [-role ROLE] [-school ID]   - sign in; the password is prompted next")
	fmt.Fprintln(cli.out, "  register -name NAME -email EMAIL -role ROLE     - create an account; the password is prompted next")
	fmt.Fprintln(cli.out, "  logout                                         - end the session")
	fmt.Fprintln(cli.out, "  whoami                                         - print the current session")
	fmt.Fprintln(cli.out, "  role ROLE | school ID                          - select the role or the school")
	fmt.Fprintln(cli.out, "  menu                                           - print the navigation of the current role")
	fmt.Fprintln(cli.out, "  list|create|update|delete RESOURCE [-id ID] [-data JSON]")
	fmt.Fprintln(cli.out, "  dashboard                                      - print the dashboard figures")
	fmt.Fprintln(cli.out, "  import -file FILE.xlsx [-class ID]             - import students")
	fmt.Fprintln(cli.out, "  export RESOURCE -file FILE.xlsx                - export a resource")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                         - run a goose command on the postgres session store")
}

func (cli *commandLine) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	switch cmd, rest := args[1], args[2:]; cmd {
	case "login":
		fs := cli.flags(cmd)
		email := fs.String("email", "", "The account email. The password will be prompted next.")
		role := fs.String("role", "", "The role to sign in as.")
		schoolID := fs.String("school", "", "The school to sign in to.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *email == "" {
			fs.Usage()
			return errHelp
		}
		pwd, err := cli.password("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			fs.Usage()
			return errHelp
		}
		creds := user.Credentials{Email: *email, Password: pwd, Role: *role, School: core.ID(*schoolID)}
		if err := cli.p.Session.Login(ctx, creds); err != nil {
			return err
		}
		return cli.whoami()

	case "register":
		fs := cli.flags(cmd)
		name := fs.String("name", "", "The full name.")
		email := fs.String("email", "", "The account email. The password will be prompted next.")
		role := fs.String("role", "", "One of admin, teacher, student.")
		schoolID := fs.String("school", "", "The school to register with.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *email == "" || *name == "" {
			fs.Usage()
			return errHelp
		}
		pwd, err := cli.password("Enter password:")
		if err != nil {
			return err
		}
		confirm, err := cli.password("Confirm password:")
		if err != nil {
			return err
		}
		cand := user.Candidate{
			Name: *name, Email: *email, Role: *role, School: core.ID(*schoolID),
			Password: pwd, PasswordConfirm: confirm,
		}
		if err := cli.p.Session.Register(ctx, cand); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "registered; you may now log in")
		return nil

	case "logout":
		return cli.p.Session.Logout(ctx)

	case "whoami":
		return cli.whoami()

	case "role", "school":
		if len(rest) != 1 {
			cli.printUsage()
			return errHelp
		}
		if cmd == "role" {
			return cli.p.Session.SelectRole(ctx, rest[0])
		}
		return cli.p.Session.SelectSchool(ctx, core.ID(rest[0]))

	case "menu":
		st := cli.p.Session.Snapshot()
		role := st.Role
		if st.Identity != nil && user.IsRole(st.Identity.Role) {
			role = st.Identity.Role
		}
		fmt.Fprintf(cli.out, "start: %s\n", navigation.InitialRoute(st))
		for _, item := range navigation.Menu(role) {
			fmt.Fprintf(cli.out, "  %-16s %s\n", item.Label, item.Route)
		}
		return nil

	case "list", "create", "update", "delete":
		return cli.resource(ctx, cmd, rest)

	case "dashboard":
		d, err := cli.p.Dashboard(ctx)
		if err != nil {
			return err
		}
		return cli.print(d)

	case "import":
		fs := cli.flags(cmd)
		file := fs.String("file", "", "The xlsx workbook to import.")
		class := fs.String("class", "", "The class of the imported students.")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *file == "" {
			fs.Usage()
			return errHelp
		}
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		rep, err := cli.p.ImportStudents(ctx, f, core.ID(*class))
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "imported: %d, skipped: %d, failed: %d\n", rep.Imported, rep.Skipped, len(rep.Errors))
		for _, rowErr := range rep.Errors {
			fmt.Fprintf(cli.out, "  %s\n", rowErr.Error())
		}
		return nil

	case "export":
		if len(rest) == 0 {
			cli.printUsage()
			return errHelp
		}
		fs := cli.flags(cmd)
		file := fs.String("file", "", "The xlsx workbook to write.")
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		if *file == "" {
			fs.Usage()
			return errHelp
		}
		m, ok := cli.p.Manager(rest[0])
		if !ok {
			return fmt.Errorf("unknown resource %q", rest[0])
		}
		if _, err := m.ListAny(ctx); err != nil {
			return err
		}
		f, err := os.Create(*file)
		if err != nil {
			return err
		}
		if err := cli.p.Export(f, rest[0]); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()

	case "migrate":
		if len(rest) == 0 || cli.migrate == nil {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, rest[0], rest[1:]...)

	default:
		cli.printUsage()
		return errHelp
	}
}

// resource runs one collection operation: list|create|update|delete RESOURCE [-id ID] [-data JSON].
func (cli *commandLine) resource(ctx context.Context, cmd string, args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}
	m, ok := cli.p.Manager(args[0])
	if !ok {
		return fmt.Errorf("unknown resource %q", args[0])
	}

	fs := cli.flags(cmd)
	id := fs.String("id", "", "The record id.")
	data := fs.String("data", "", "The record, as a JSON object.")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	needID := cmd == "update" || cmd == "delete"
	needData := cmd == "create" || cmd == "update"
	if (needID && *id == "") || (needData && *data == "") {
		fs.Usage()
		return errHelp
	}

	var payload json.RawMessage
	if needData {
		if !json.Valid([]byte(*data)) {
			return fmt.Errorf("-data: invalid JSON")
		}
		payload = json.RawMessage(*data)
	}

	switch cmd {
	case "list":
		items, err := m.ListAny(ctx)
		if err != nil {
			return err
		}
		return cli.print(items)
	case "create":
		rec, err := m.CreateAny(ctx, payload)
		if err != nil {
			return err
		}
		return cli.print(rec)
	case "update":
		rec, err := m.UpdateAny(ctx, core.ID(*id), payload)
		if err != nil {
			return err
		}
		return cli.print(rec)
	default:
		return m.Delete(ctx, core.ID(*id))
	}
}

func (cli *commandLine) whoami() error {
	st := cli.p.Session.Snapshot()
	if st.Anonymous() || st.Identity == nil {
		fmt.Fprintf(cli.out, "anonymous (role: %q, school: %q)\n", st.Role, st.SchoolID)
		return nil
	}
	fmt.Fprintf(cli.out, "%s <%s> (role: %q, school: %q)\n", st.Identity.DisplayName(), st.Identity.Email, st.Role, st.SchoolID)
	return nil
}

func (cli *commandLine) password(prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) print(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
