// Command rt is a CLI client for the Rootine service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	grpcserver "github.com/and161185/rootine/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "rootine")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "rootine")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tokenFile{AccessToken: tok, ExpiresAt: exp}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(addr, caPath string, skipVerify, plaintext bool) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if !plaintext {
		var err error
		if creds, err = loadTLS(caPath, skipVerify); err != nil {
			return nil, err
		}
	}
	return grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
}

// ---- commands ----

// command maps CLI arguments onto one RPC.
type command struct {
	method string
	usage  string
	public bool
	build  func(args []string) (map[string]any, error)
}

var commands = map[string]command{
	"register": {method: "Register", usage: "-email E -name N -p PASSWORD", public: true, build: credentialsArgs(true)},
	"login":    {method: "Login", usage: "-email E -p PASSWORD (saves token)", public: true, build: credentialsArgs(false)},
	"me":       {method: "Me", build: noArgs},
	"routines": {method: "ListRoutines", usage: "[-user ID]", build: listRoutinesArgs},
	"routine-add": {method: "CreateRoutine", usage: "-title T [-theme X] [-detail low|medium|high] [-active]",
		build: routineArgs(false)},
	"routine-edit": {method: "UpdateRoutine", usage: "-id ID [-title T] [-theme X] [-detail L] [-active=true|false]",
		build: routineArgs(true)},
	"routine-gen": {method: "GenerateRoutine", usage: "PROMPT... (prints a draft for routine-add)", build: promptArgs},
	"activate":    {method: "ActivateRoutine", usage: "ID", build: idArg("id")},
	"routine-rm": {method: "DeleteRoutine", usage: "ID", build: idArg("id")},
	"tasks":      {method: "ListTasks", usage: "ROUTINE_ID", build: idArg("routineId")},
	"task-add": {method: "CreateTask", usage: "-routine ID -title T [-type T] [-priority P] [-start HH:MM] [-duration MIN] [-pos N]",
		build: taskArgs(false)},
	"task-edit": {method: "UpdateTask", usage: "-id ID [-title T] [-type T] [-priority P] [-start HH:MM] [-duration MIN]",
		build: taskArgs(true)},
	"task-done": {method: "UpdateTask", usage: "ID [-undo]", build: taskDoneArgs},
	"task-rm":   {method: "DeleteTask", usage: "ID", build: idArg("id")},
	"reorder":   {method: "ReorderTasks", usage: "ROUTINE_ID TASK_ID...", build: reorderArgs},
}

func noArgs([]string) (map[string]any, error) { return map[string]any{}, nil }

func promptArgs(args []string) (map[string]any, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return nil, errors.New("need a prompt")
	}
	return map[string]any{"prompt": prompt}, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", s)
	}
	return id, nil
}

func idArg(key string) func([]string) (map[string]any, error) {
	return func(args []string) (map[string]any, error) {
		if len(args) != 1 {
			return nil, errors.New("need exactly one id")
		}
		id, err := parseID(args[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{key: id}, nil
	}
}

func credentialsArgs(withName bool) func([]string) (map[string]any, error) {
	return func(args []string) (map[string]any, error) {
		fs := flag.NewFlagSet("credentials", flag.ContinueOnError)
		email := fs.String("email", "", "e-mail")
		name := fs.String("name", "", "display name")
		p := fs.String("p", "", "password")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if *email == "" || *p == "" {
			return nil, errors.New("need -email and -p")
		}
		req := map[string]any{"email": *email, "password": *p}
		if withName && *name != "" {
			req["name"] = *name
		}
		return req, nil
	}
}

func listRoutinesArgs(args []string) (map[string]any, error) {
	fs := flag.NewFlagSet("routines", flag.ContinueOnError)
	user := fs.Int64("user", 0, "owner id (admin)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	req := map[string]any{}
	if *user > 0 {
		req["userId"] = *user
	}
	return req, nil
}

// setFlags records which flags were given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	seen := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	return seen
}

func routineArgs(edit bool) func([]string) (map[string]any, error) {
	return func(args []string) (map[string]any, error) {
		fs := flag.NewFlagSet("routine", flag.ContinueOnError)
		id := fs.Int64("id", 0, "routine id")
		title := fs.String("title", "", "title")
		theme := fs.String("theme", "", "theme")
		detail := fs.String("detail", "", "detail level")
		active := fs.Bool("active", false, "make active")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		seen := setFlags(fs)
		req := map[string]any{}
		if edit {
			if *id <= 0 {
				return nil, errors.New("need -id")
			}
			req["id"] = *id
		} else if *title == "" {
			return nil, errors.New("need -title")
		}
		if seen["title"] {
			req["title"] = *title
		}
		if seen["theme"] {
			req["theme"] = *theme
		}
		if seen["detail"] {
			req["detailLevel"] = *detail
		}
		if seen["active"] {
			req["isActive"] = *active
		}
		return req, nil
	}
}

func taskArgs(edit bool) func([]string) (map[string]any, error) {
	return func(args []string) (map[string]any, error) {
		fs := flag.NewFlagSet("task", flag.ContinueOnError)
		id := fs.Int64("id", 0, "task id")
		routine := fs.Int64("routine", 0, "routine id")
		title := fs.String("title", "", "title")
		fs.String("desc", "", "description")
		fs.String("type", "", "one_time|routine|habit|event")
		fs.String("priority", "", "low|medium|high")
		fs.String("start", "", "start time HH:MM")
		dur := fs.Int("duration", 0, "duration in minutes")
		pos := fs.Int("pos", 0, "insert position")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		seen := setFlags(fs)
		req := map[string]any{}
		if edit {
			if *id <= 0 {
				return nil, errors.New("need -id")
			}
			req["id"] = *id
		} else {
			if *routine <= 0 || *title == "" {
				return nil, errors.New("need -routine and -title")
			}
			req["routineId"] = *routine
			if seen["pos"] {
				req["position"] = *pos
			}
		}
		for flagName, key := range map[string]string{
			"title": "title", "desc": "description", "type": "type", "priority": "priority", "start": "startTime",
		} {
			if seen[flagName] {
				req[key] = fs.Lookup(flagName).Value.String()
			}
		}
		if seen["duration"] {
			req["durationMinutes"] = *dur
		}
		return req, nil
	}
}

func taskDoneArgs(args []string) (map[string]any, error) {
	fs := flag.NewFlagSet("task-done", flag.ContinueOnError)
	undo := fs.Bool("undo", false, "mark as not completed")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	req, err := idArg("id")(fs.Args())
	if err != nil {
		return nil, err
	}
	req["isCompleted"] = !*undo
	return req, nil
}

func reorderArgs(args []string) (map[string]any, error) {
	if len(args) < 2 {
		return nil, errors.New("need routine id and the full task order")
	}
	rid, err := parseID(args[0])
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return map[string]any{"routineId": rid, "taskIds": ids}, nil
}

// run executes one command against cl and writes the response to out.
func run(ctx context.Context, cl *grpcserver.Client, name string, args []string, out io.Writer) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	req, err := cmd.build(args)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !cmd.public {
		tok, err := loadToken()
		if err != nil {
			return err
		}
		cl = cl.WithToken(tok)
	}
	resp, err := cl.Call(ctx, cmd.method, req)
	if err != nil {
		return err
	}
	if name == "login" {
		f := resp.GetFields()
		exp, err := time.Parse(time.RFC3339, f["expiresAt"].GetStringValue())
		if err != nil {
			exp = time.Now().Add(15 * time.Minute)
		}
		if err := saveToken(f["accessToken"].GetStringValue(), exp); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, "ok")
		return err
	}
	return printJSON(out, resp.AsMap())
}

// ---- utils ----

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage() {
	var b strings.Builder
	b.WriteString(`rt CLI
Usage:
  rt -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [args]

Commands:
  version
`)
	for _, name := range commandNames() {
		fmt.Fprintf(&b, "  %-13s %s\n", name, commands[name].usage)
	}
	fmt.Fprint(os.Stderr, b.String())
	os.Exit(2)
}

func commandNames() []string {
	return []string{"register", "login", "me", "routines", "routine-add", "routine-edit", "routine-gen", "activate",
		"routine-rm", "tasks", "task-add", "task-edit", "task-done", "task-rm", "reorder"}
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS for RPC calls.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "no TLS (server started with -insecure)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	name := flag.Arg(0)
	if name == "version" {
		fmt.Printf("rt %s (%s)\n", version, buildDate)
		return
	}
	if _, ok := commands[name]; !ok {
		usage()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cc, err := dial(*addr, *caPath, *skipVerify, *plaintext)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	if err := run(ctx, grpcserver.NewClient(cc), name, flag.Args()[1:], os.Stdout); err != nil {
		fail(err)
	}
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
