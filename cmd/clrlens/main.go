// ABOUTME: CLI for inspecting clrlens snapshot files
// ABOUTME: tree/segments/roots/modules subcommands over one snapshot

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/xlab/treeprint"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/clrlens/clrlens"
	"github.com/clrlens/clrlens/gcroot"
	"github.com/clrlens/clrlens/objgraph"
)

var cfg struct {
	verbose  bool
	snapshot string
	filter   string
	tree     struct {
		hex  bool
		json bool
	}
}

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Inspect the managed heap of a captured .NET target.").UsageWriter(os.Stdout)
	app.Version(clrlens.Version)
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable debug logging.").Short('v').Default("false").BoolVar(&cfg.verbose)
	app.Flag("filter", "YAML filter configuration overriding the built-in exclusion lists.").StringVar(&cfg.filter)

	treeCmd := app.Command("tree", "Collect and print the tree of live objects reachable from the GC roots.")
	treeCmd.Arg("snapshot", "Snapshot file.").Required().ExistingFileVar(&cfg.snapshot)
	treeCmd.Flag("hex", "Format integer values in hex.").Default("false").BoolVar(&cfg.tree.hex)
	treeCmd.Flag("json", "Emit JSON instead of a rendered tree.").Default("false").BoolVar(&cfg.tree.json)

	segmentsCmd := app.Command("segments", "List heap segments with generation boundaries.")
	segmentsCmd.Arg("snapshot", "Snapshot file.").Required().ExistingFileVar(&cfg.snapshot)

	rootsCmd := app.Command("roots", "List GC roots.")
	rootsCmd.Arg("snapshot", "Snapshot file.").Required().ExistingFileVar(&cfg.snapshot)

	modulesCmd := app.Command("modules", "List the target's loaded modules.")
	modulesCmd.Arg("snapshot", "Snapshot file.").Required().ExistingFileVar(&cfg.snapshot)

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := log.NewLogfmtLogger(os.Stderr)
	if cfg.verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	session, err := openSession(logger)
	if err != nil {
		fatal(err)
	}

	switch command {
	case treeCmd.FullCommand():
		err = printTree(session)
	case segmentsCmd.FullCommand():
		err = printSegments(session)
	case rootsCmd.FullCommand():
		err = printRoots(session)
	case modulesCmd.FullCommand():
		err = printModules(session)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
	os.Exit(1)
}

func openSession(logger log.Logger) (*clrlens.Session, error) {
	var filter *objgraph.FilterConfig
	if cfg.filter != "" {
		f, err := os.Open(cfg.filter)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		filter, err = objgraph.LoadFilterConfig(f)
		if err != nil {
			return nil, err
		}
	}
	return clrlens.OpenFile(cfg.snapshot, logger, filter)
}

func printTree(session *clrlens.Session) error {
	collector, err := session.NewCollector()
	if err != nil {
		return err
	}
	roots, err := collector.EnumerateObjects()
	if err != nil {
		return err
	}

	if cfg.tree.json {
		if err := objgraph.WriteJSON(os.Stdout, roots, cfg.tree.hex); err != nil {
			return err
		}
	} else {
		tree := treeprint.New()
		for _, n := range roots {
			addBranch(tree, n)
		}
		fmt.Print(tree.String())
	}

	if warn := collector.Warnings(); warn != nil {
		fmt.Fprintln(os.Stderr, color.YellowString("warnings:"), warn)
	}
	return nil
}

func addBranch(parent treeprint.Tree, n *objgraph.Node) {
	label := n.Name
	if n.Type != nil {
		label += " [" + n.Type.SimpleName() + "]"
	}
	if v, err := n.FormattedValue(cfg.tree.hex); err == nil {
		label += " = " + v
	}
	branch := parent.AddBranch(label)
	for _, c := range n.Children {
		addBranch(branch, c)
	}
}

func printSegments(session *clrlens.Session) error {
	heap, err := session.Heap()
	if err != nil {
		return err
	}
	segments, err := heap.Segments()
	if err != nil {
		return err
	}
	size, err := heap.Size()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Start", "End", "Size", "Kind", "Gen0", "Gen1", "Gen2", "Heap"})
	for _, s := range segments {
		kind := "normal"
		if s.Ephemeral {
			kind = "ephemeral"
		} else if s.Large {
			kind = "large"
		}
		table.Append([]string{
			fmt.Sprintf("0x%X", s.Start),
			fmt.Sprintf("0x%X", s.End),
			humanize.IBytes(s.Length()),
			kind,
			humanize.IBytes(s.Gen0.Length()),
			humanize.IBytes(s.Gen1.Length()),
			humanize.IBytes(s.Gen2.Length()),
			fmt.Sprintf("%d", s.HeapIndex),
		})
	}
	table.Render()
	fmt.Printf("total committed: %s across %d segments\n", humanize.IBytes(size), len(segments))
	return nil
}

func printRoots(session *clrlens.Session) error {
	heap, err := session.Heap()
	if err != nil {
		return err
	}
	enum := gcroot.NewEnumerator(session.Provider(), heap)
	roots, err := enum.EnumerateRoots()
	if err != nil {
		return err
	}

	kindColor := map[gcroot.Kind]*color.Color{
		gcroot.KindStatic:       color.New(color.FgGreen),
		gcroot.KindThreadStatic: color.New(color.FgGreen),
		gcroot.KindLocal:        color.New(color.FgCyan),
		gcroot.KindFinalizer:    color.New(color.FgMagenta),
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Kind", "Name", "Object", "Type", "Flags"})
	for _, r := range roots {
		kind := r.Kind.String()
		if c, ok := kindColor[r.Kind]; ok {
			kind = c.Sprint(kind)
		}
		typeName := ""
		if r.Type != nil {
			typeName = r.Type.Name
		}
		var flags string
		if r.Pinned() {
			flags += "pinned "
		}
		if r.Interior() {
			flags += "interior "
		}
		if r.PossibleFalsePositive() {
			flags += "maybe-false-positive"
		}
		table.Append([]string{kind, r.Name, fmt.Sprintf("0x%X", r.Object), typeName, flags})
	}
	table.Render()
	return nil
}

func printModules(session *clrlens.Session) error {
	modules, err := session.Reader().EnumerateModules()
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Path", "Base", "Size"})
	for _, m := range modules {
		table.Append([]string{m.Path, fmt.Sprintf("0x%X", m.Base), humanize.IBytes(m.Size)})
	}
	table.Render()
	return nil
}
