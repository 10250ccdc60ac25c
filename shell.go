package main

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/btree-query-bench/slotindex/dbms/heap"
	"github.com/btree-query-bench/slotindex/dbms/index"
	"github.com/btree-query-bench/slotindex/dbms/index/btpage"
	"github.com/btree-query-bench/slotindex/dbms/index/btree"
	"github.com/btree-query-bench/slotindex/dbms/pager"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
)

var errExit = errors.New("exit")

type shellCommand struct {
	Name        string
	Usage       string
	Description string
	Callback    func(s *Shell, args []string) error
}

var commandRegistry map[string]shellCommand

func init() {
	commandRegistry = map[string]shellCommand{
		"insert": {
			Name:        "insert",
			Usage:       "insert <key> <addr>",
			Description: "Index key with the given address",
			Callback:    commandInsert,
		},
		"search": {
			Name:        "search",
			Usage:       "search <key>",
			Description: "Print the address stored for key",
			Callback:    commandSearch,
		},
		"delete": {
			Name:        "delete",
			Usage:       "delete <key>",
			Description: "Remove key from the index",
			Callback:    commandDelete,
		},
		"display": {
			Name:        "display",
			Usage:       "display",
			Description: "Print every record of the index file",
			Callback:    commandDisplay,
		},
		"check": {
			Name:        "check",
			Usage:       "check",
			Description: "Verify the whole tree and free list",
			Callback:    commandCheck,
		},
		"stats": {
			Name:        "stats",
			Usage:       "stats",
			Description: "Show tree shape and I/O counters",
			Callback:    commandStats,
		},
		"dot": {
			Name:        "dot",
			Usage:       "dot <file.dot|file.png>",
			Description: "Export the tree for Graphviz (png needs the dot binary)",
			Callback:    commandDot,
		},
		"put": {
			Name:        "put",
			Usage:       "put <key> <value...>",
			Description: "Store value in the heap and index its address under key",
			Callback:    commandPut,
		},
		"get": {
			Name:        "get",
			Usage:       "get <key>",
			Description: "Resolve key through the index and print the heap value",
			Callback:    commandGet,
		},
		"seed": {
			Name:        "seed",
			Usage:       "seed <n>",
			Description: "Insert n random keys (faker values when a heap is open)",
			Callback:    commandSeed,
		},
		"help": {
			Name:        "help",
			Usage:       "help",
			Description: "Show all available commands",
			Callback:    commandHelp,
		},
		"exit": {
			Name:        "exit",
			Usage:       "exit",
			Description: "Leave the shell",
			Callback:    func(*Shell, []string) error { return errExit },
		},
	}
}

// Shell is the interactive command surface over one index file and an
// optional value heap.
type Shell struct {
	scanner *bufio.Scanner
	out     io.Writer
	tree    *btree.BTree
	heap    *heap.Heap
	metrics *pager.Metrics
	rng     *rand.Rand

	warn  *color.Color
	fail  *color.Color
	okay  *color.Color
	title *color.Color
}

func NewShell(in io.Reader, out io.Writer, tree *btree.BTree, h *heap.Heap, m *pager.Metrics) *Shell {
	return &Shell{
		scanner: bufio.NewScanner(in),
		out:     out,
		tree:    tree,
		heap:    h,
		metrics: m,
		rng:     rand.New(rand.NewSource(1)),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed),
		okay:    color.New(color.FgGreen),
		title:   color.New(color.Bold),
	}
}

// Start reads commands until exit or end of input.
func (s *Shell) Start() error {
	s.printPrompt()
	for s.scanner.Scan() {
		if err := s.Exec(s.scanner.Text()); errors.Is(err, errExit) {
			return nil
		}
		s.printPrompt()
	}
	return s.scanner.Err()
}

func (s *Shell) printPrompt() {
	fmt.Fprint(s.out, "> ")
}

// Exec runs one command line. Command failures are reported to the user;
// only errExit is returned.
func (s *Shell) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commandRegistry[strings.ToLower(fields[0])]
	if !ok {
		s.warn.Fprintf(s.out, "Unknown command %q, try help\n", fields[0])
		return nil
	}
	err := cmd.Callback(s, fields[1:])
	switch {
	case err == nil:
	case errors.Is(err, errExit):
		return err
	case errors.Is(err, index.ErrNotFound), errors.Is(err, heap.ErrNotFound):
		s.warn.Fprintln(s.out, "Key not found.")
	case errors.Is(err, errUsage):
		s.warn.Fprintf(s.out, "Usage: %s\n", cmd.Usage)
	default:
		s.fail.Fprintf(s.out, "error: %v\n", err)
	}
	return nil
}

var errUsage = errors.New("usage")

func parseInts(args []string, n int) ([]int64, error) {
	if len(args) != n {
		return nil, errUsage
	}
	out := make([]int64, n)
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "argument %q", a), errUsage)
		}
		out[i] = v
	}
	return out, nil
}

func commandInsert(s *Shell, args []string) error {
	v, err := parseInts(args, 2)
	if err != nil {
		return err
	}
	if err := s.tree.Insert(v[0], v[1]); err != nil {
		return err
	}
	s.okay.Fprintf(s.out, "Inserted %d -> %d\n", v[0], v[1])
	return nil
}

func commandSearch(s *Shell, args []string) error {
	v, err := parseInts(args, 1)
	if err != nil {
		return err
	}
	addr, err := s.tree.Search(v[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d -> %d\n", v[0], addr)
	return nil
}

func commandDelete(s *Shell, args []string) error {
	v, err := parseInts(args, 1)
	if err != nil {
		return err
	}
	if err := s.tree.Delete(v[0]); err != nil {
		return err
	}
	s.okay.Fprintf(s.out, "Deleted %d\n", v[0])
	return nil
}

func commandDisplay(s *Shell, args []string) error {
	rows, err := s.tree.Pager().Dump()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 1, ' ', tabwriter.AlignRight)
	header := []string{"rec", "tag"}
	for i := 0; i < s.tree.Order(); i++ {
		header = append(header, fmt.Sprintf("k%d", i), fmt.Sprintf("a%d", i))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for rec, row := range rows {
		cells := []string{strconv.Itoa(rec), btpage.Tag(row[0]).String()}
		if rec == pager.SentinelRecord {
			cells[1] = "head"
		}
		for _, v := range row[1:] {
			cells = append(cells, strconv.FormatInt(v, 10))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	return tw.Flush()
}

func commandCheck(s *Shell, args []string) error {
	st, err := s.tree.Check()
	if err != nil {
		return err
	}
	s.okay.Fprintf(s.out, "OK: %v\n", st)
	return nil
}

func commandStats(s *Shell, args []string) error {
	st, err := s.tree.Check()
	if err != nil {
		return err
	}
	s.title.Fprintln(s.out, "Tree")
	fmt.Fprintf(s.out, "  order %d, minimum %d\n  %v\n", s.tree.Order(), s.tree.MinKeys(), st)
	if s.metrics != nil {
		c := s.metrics.Snapshot()
		s.title.Fprintln(s.out, "I/O")
		fmt.Fprintf(s.out, "  reads %.0f, writes %.0f, allocations %.0f, frees %.0f\n", c.Reads, c.Writes, c.Allocs, c.Frees)
	}
	if s.heap != nil {
		n, err := s.heap.Count()
		if err != nil {
			return err
		}
		s.title.Fprintln(s.out, "Heap")
		fmt.Fprintf(s.out, "  values %d, next address %d\n", n, s.heap.NextAddr())
	}
	return nil
}

func commandDot(s *Shell, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	path := args[0]
	if strings.HasSuffix(path, ".png") {
		dotPath := strings.TrimSuffix(path, ".png") + ".dot"
		if err := s.tree.RenderPNG(dotPath, path); err != nil {
			return err
		}
	} else {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := s.tree.ExportDOT(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	s.okay.Fprintf(s.out, "Tree written to %s\n", path)
	return nil
}

func (s *Shell) needHeap() error {
	if s.heap == nil {
		return errors.New("no heap open, start with -heap <dir>")
	}
	return nil
}

func commandPut(s *Shell, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	if err := s.needHeap(); err != nil {
		return err
	}
	v, err := parseInts(args[:1], 1)
	if err != nil {
		return err
	}
	addr, err := s.heap.Put([]byte(strings.Join(args[1:], " ")))
	if err != nil {
		return err
	}
	if err := s.tree.Insert(v[0], addr); err != nil {
		_ = s.heap.Delete(addr)
		return err
	}
	s.okay.Fprintf(s.out, "Stored %d at address %d\n", v[0], addr)
	return nil
}

func commandGet(s *Shell, args []string) error {
	if err := s.needHeap(); err != nil {
		return err
	}
	v, err := parseInts(args, 1)
	if err != nil {
		return err
	}
	addr, err := s.tree.Search(v[0])
	if err != nil {
		return err
	}
	val, err := s.heap.Get(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s\n", val)
	return nil
}

func commandSeed(s *Shell, args []string) error {
	v, err := parseInts(args, 1)
	if err != nil {
		return err
	}
	maxKey := int64(1) << 30
	n, err := Seed(s.tree, s.heap, int(v[0]), maxKey, s.rng)
	if err != nil {
		s.warn.Fprintf(s.out, "Seeded %d of %d keys\n", n, v[0])
		return err
	}
	s.okay.Fprintf(s.out, "Seeded %d keys\n", n)
	return nil
}

func commandHelp(s *Shell, args []string) error {
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	sort.Strings(names)

	s.title.Fprintln(s.out, "Available commands:")
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		cmd := commandRegistry[name]
		fmt.Fprintf(tw, "  %s\t%s\n", cmd.Usage, cmd.Description)
	}
	return tw.Flush()
}
