package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ha1tch/postmind"
	"github.com/ha1tch/postmind/pkg/render"
)

const (
	promptMain = "postmind> "
	promptCont = "      ... "
	historyMax = 1000
)

// lineReader is the part of readline the loop needs.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// scanReader reads lines from a non-terminal input.
type scanReader struct {
	scanner *bufio.Scanner
}

func (s *scanReader) Readline() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scanReader) SetPrompt(string) {}
func (s *scanReader) Close() error    { return nil }

func newReplCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive SQL session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			s := &repl{
				db:     db,
				out:    cmd.OutOrStdout(),
				format: printer(cfg, cmd.OutOrStdout()),
				limit:  cfg.Limit,
			}
			rl, err := s.reader(opts.Stdin)
			if err != nil {
				return err
			}
			defer rl.Close()
			return s.run(cmd.Context(), rl)
		},
	}
}

type repl struct {
	db     *postmind.Context
	out    io.Writer
	format render.Printer
	limit  int
	timing bool
}

// reader uses readline on a terminal and a plain scanner otherwise.
func (s *repl) reader(in io.Reader) (lineReader, error) {
	if in == nil {
		in = os.Stdin
	}
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return &scanReader{scanner: bufio.NewScanner(in)}, nil
	}
	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".postmind_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            promptMain,
		HistoryFile:       history,
		HistoryLimit:      historyMax,
		InterruptPrompt:   "^C",
		EOFPrompt:         `\q`,
		AutoComplete:      &completer{db: s.db},
		HistorySearchFold: true,
		Stdout:            s.out,
	})
	if err != nil {
		return nil, err
	}
	return rl, nil
}

func (s *repl) run(ctx context.Context, rl lineReader) error {
	fmt.Fprintf(s.out, "connected to %s (%s). \\? for help.\n", s.db, s.db.Family())

	var buf strings.Builder
	for {
		if buf.Len() > 0 {
			rl.SetPrompt(promptCont)
		} else {
			rl.SetPrompt(promptMain)
		}
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buf.Reset()
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		input := strings.TrimSpace(line)
		if buf.Len() == 0 {
			if input == "" {
				continue
			}
			if isCommand(input) {
				if quit := s.command(ctx, input); quit {
					return nil
				}
				continue
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)
		if strings.HasSuffix(input, ";") {
			stmt := strings.TrimSpace(buf.String())
			buf.Reset()
			s.execute(ctx, stmt)
		}
	}
}

func isCommand(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit", "help":
		return true
	}
	return strings.HasPrefix(input, `\`)
}

// command runs a backslash command and reports whether to quit.
func (s *repl) command(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case `\q`, "exit", "quit":
		return true
	case `\?`, "help":
		printReplHelp(s.out)
	case `\dt`:
		tables := s.db.Tables()
		if len(args) > 0 {
			var err error
			if tables, err = s.db.FindTable(args[0]); err != nil {
				s.fail(err)
				return false
			}
		}
		fmt.Fprint(s.out, tables.Describe())
	case `\d`:
		if len(args) == 0 {
			fmt.Fprint(s.out, s.db.Tables().Describe())
			return false
		}
		if err := describe(s.db, s.out, args[0]); err != nil {
			s.fail(err)
		}
	case `\dc`:
		if len(args) == 0 {
			fmt.Fprintln(s.out, `usage: \dc <glob> [type...]`)
			return false
		}
		cols, err := s.db.FindColumn(args[0], args[1:]...)
		if err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprint(s.out, cols.Describe())
	case `\df`:
		rows := [][]string{}
		for _, e := range s.db.Library().List() {
			fn := e.Function.WithDefaults()
			rows = append(rows, []string{fn.Name, "(" + strings.Join(fn.Params, ", ") + ")", fn.Returns})
		}
		fmt.Fprint(s.out, render.Grid([]string{"Name", "Params", "Returns"}, rows))
	case `\format`:
		if len(args) == 0 {
			fmt.Fprintf(s.out, "format: %s\n", s.format.Format)
			return false
		}
		f, err := render.ParseFormat(args[0])
		if err != nil {
			s.fail(err)
			return false
		}
		s.format.Format = f
		fmt.Fprintf(s.out, "format set to %s\n", f)
	case `\limit`:
		if len(args) == 0 {
			fmt.Fprintf(s.out, "limit: %d\n", s.limit)
			return false
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			fmt.Fprintf(s.out, "invalid limit %q\n", args[0])
			return false
		}
		s.limit = n
		fmt.Fprintf(s.out, "limit set to %d\n", n)
	case `\timing`:
		s.timing = !s.timing
		fmt.Fprintf(s.out, "timing %s\n", onOff(s.timing))
	case `\r`, `\refresh`:
		if err := s.db.RefreshSchema(ctx); err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprintf(s.out, "%d tables\n", len(s.db.Tables()))
	case `\i`:
		if len(args) == 0 {
			fmt.Fprintln(s.out, `usage: \i <file>`)
			return false
		}
		start := time.Now()
		rs, err := s.db.QueryFile(ctx, args[0], 0)
		if err != nil {
			s.fail(err)
			return false
		}
		s.format.Print(s.out, rs)
		s.elapsed(start)
	default:
		fmt.Fprintf(s.out, "unknown command %s, \\? for help\n", fields[0])
	}
	return false
}

func (s *repl) execute(ctx context.Context, stmt string) {
	start := time.Now()
	rs, err := s.db.Query(ctx, stmt, s.limit)
	if err != nil {
		s.fail(err)
		return
	}
	if err := s.format.Print(s.out, rs); err != nil {
		s.fail(err)
	}
	s.elapsed(start)
}

func (s *repl) elapsed(start time.Time) {
	if s.timing {
		fmt.Fprintf(s.out, "Time: %.3f ms\n", float64(time.Since(start).Microseconds())/1000)
	}
}

func (s *repl) fail(err error) {
	fmt.Fprintln(s.out, "error:", err)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printReplHelp(w io.Writer) {
	fmt.Fprint(w, `Commands:
  <SQL>;            Run a statement (end with ;)
  \dt [glob]        List tables
  \d [table]        Describe a table
  \dc glob [type]   Find columns
  \df               List library functions
  \i file           Run a statement from a file
  \format [name]    Show or set the output format (ascii|unicode|csv|json)
  \limit [n]        Show or set the row limit (0 for none)
  \timing           Toggle query timing
  \r, \refresh      Reload the schema
  \q                Quit
`)
}

// completer offers backslash commands, table names and column names.
type completer struct {
	db *postmind.Context
}

var replCommands = []string{
	`\dt`, `\d`, `\dc`, `\df`, `\i`, `\format`, `\limit`, `\timing`, `\refresh`, `\q`, `\?`,
}

func (c *completer) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])
	var prefix string
	if i := strings.LastIndexAny(text, " \t(,"); i >= 0 {
		prefix = text[i+1:]
	} else {
		prefix = text
	}

	seen := make(map[string]bool)
	var out [][]rune
	add := func(s string) {
		if seen[s] || !strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix)) {
			return
		}
		seen[s] = true
		out = append(out, []rune(s[len(prefix):]))
	}

	if prefix == text && strings.HasPrefix(prefix, `\`) {
		for _, cmd := range replCommands {
			add(cmd)
		}
		return out, len(prefix)
	}
	for _, t := range c.db.Tables() {
		add(t.Name())
		if dot := strings.IndexByte(prefix, '.'); dot > 0 && prefix[:dot] == t.Name() {
			for _, col := range t.ColumnNames() {
				add(t.Name() + "." + col)
			}
		}
	}
	return out, len(prefix)
}

var _ readline.AutoCompleter = (*completer)(nil)
