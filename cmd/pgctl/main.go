// pgctl is an interactive demo harness for the patchgraph stack: it wires a
// patchgraph.Graph to a blockdev.Device (optionally wrapped in a
// pkg/journal write-ahead log) and lets an operator create patches, add
// dependencies, and step writeback by hand from a REPL.
//
// Usage:
//
//	pgctl [options]
//
// Options:
//
//	-f, --file          Back storage with a file at this path (default: in-memory)
//	-b, --blocks        Number of blocks (default: 16)
//	-s, --block-size    Block size in bytes (default: 512)
//	-j, --journal       Wrap the device in a write-ahead journal at this path
//	-c, --config        Load patchgraph tunables from a hujson file
//
// Commands (in REPL):
//
//	byte <block> <offset> <text> [before...]   Create a BYTE patch
//	bit <block> <word> <xor> <or> [before...]  Create a BIT patch (hex masks)
//	empty [before...]                          Create an EMPTY join patch
//	depend <after> <before>                    Add a dependency edge
//	inflight <id>                              Mark a patch in-flight
//	satisfy <id>                               Mark a patch written
//	destroy <id>                               Destroy a written patch
//	rollback <id> / apply <id>                 Toggle a BYTE patch's buffer (not BIT or NRB)
//	writeback <block>                          Commit the block's ready patches to the device
//	patches [block]                            List live patches
//	ready <block>                              List ready patches
//	block <number>                             Show a block's buffer (hex)
//	stats                                      Show accounting counters
//	help                                       Show this help
//	exit / quit / q                            Exit
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/fscorego/patchgraph/pkg/blockdev"
	"github.com/fscorego/patchgraph/pkg/journal"
	"github.com/fscorego/patchgraph/pkg/patchgraph"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("pgctl", flag.ContinueOnError)

	filePath := fs.StringP("file", "f", "", "back storage with a file at this path (default: in-memory)")
	numBlocks := fs.Uint32P("blocks", "b", 16, "number of blocks")
	blockSize := fs.Uint32P("block-size", "s", 512, "block size in bytes")
	journalPath := fs.StringP("journal", "j", "", "wrap the device in a write-ahead journal at this path")
	configPath := fs.StringP("config", "c", "", "load patchgraph tunables from a hujson file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgctl [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := patchgraph.DefaultConfig()

	if *configPath != "" {
		loaded, err := patchgraph.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg = loaded
	}

	dev, err := openDevice(*filePath, *numBlocks, *blockSize)
	if err != nil {
		return err
	}
	defer dev.Close()

	sess := &session{
		graph:  patchgraph.New(cfg),
		dev:    dev,
		blocks: make(map[uint32]*patchgraph.Block),
		byID:   make(map[uint64]*patchgraph.Patch),
	}

	if *journalPath != "" {
		j, err := journal.Open(dev, *journalPath)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()

		sess.journal = j
	}

	repl := &REPL{sess: sess}

	return repl.Run()
}

func openDevice(path string, numBlocks, blockSize uint32) (blockdev.Device, error) {
	if path == "" {
		return blockdev.NewMemDevice(0, 0, blockSize, numBlocks), nil
	}

	return blockdev.OpenFile(path, 0, 0, blockSize, numBlocks)
}

// session holds the live graph, device, and the demo's bookkeeping: one
// patchgraph.Block per device block number (loaded lazily on first
// reference) and an ID-indexed lookup of every patch the operator has
// created, since patchgraph.Patch itself is never looked up by ID outside
// diagnostics.
type session struct {
	graph   *patchgraph.Graph
	dev     blockdev.Device
	journal *journal.Journal

	blocks map[uint32]*patchgraph.Block
	byID   map[uint64]*patchgraph.Patch
}

func (s *session) block(number uint32) (*patchgraph.Block, error) {
	if b, ok := s.blocks[number]; ok {
		return b, nil
	}

	if number >= s.dev.NumBlocks() {
		return nil, fmt.Errorf("block %d out of range (device has %d blocks)", number, s.dev.NumBlocks())
	}

	data, err := s.dev.ReadBlock(number)
	if err != nil {
		return nil, fmt.Errorf("reading block %d: %w", number, err)
	}

	b := s.graph.NewBlockFromBytes(number, data)
	s.blocks[number] = b

	return b, nil
}

func (s *session) patch(id uint64) (*patchgraph.Patch, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("no such patch: %d", id)
	}

	return p, nil
}

func (s *session) register(p *patchgraph.Patch) {
	s.byID[p.ID()] = p
}

// writeback marks every currently-ready patch on block's ready list
// in-flight, writes the block's buffer through (via the journal if one is
// configured), and satisfies those patches -- the demo's stand-in for a
// filesystem's writeback pass over spec.md's ready list.
func (s *session) writeback(number uint32) (int, error) {
	b, err := s.block(number)
	if err != nil {
		return 0, err
	}

	ready := b.ReadyPatches()
	if len(ready) == 0 {
		return 0, nil
	}

	for _, p := range ready {
		if err := s.graph.SetInflight(p); err != nil {
			return 0, fmt.Errorf("patch %d: %w", p.ID(), err)
		}
	}

	if s.journal != nil {
		if _, err := s.journal.Commit([]journal.Record{{Block: number, Data: b.Data}}); err != nil {
			return 0, fmt.Errorf("committing block %d: %w", number, err)
		}
	} else {
		if err := s.dev.WriteBlock(number, b.Data); err != nil {
			return 0, fmt.Errorf("writing block %d: %w", number, err)
		}

		if err := s.dev.Sync(); err != nil {
			return 0, fmt.Errorf("syncing block %d: %w", number, err)
		}
	}

	for _, p := range ready {
		if err := s.graph.Satisfy(p); err != nil {
			return 0, fmt.Errorf("patch %d: %w", p.ID(), err)
		}
	}

	return len(ready), nil
}

// REPL is the interactive command loop.
type REPL struct {
	sess  *session
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".pgctl_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("pgctl - patchgraph CLI (blocks=%d, block_size=%d)\n", r.sess.dev.NumBlocks(), r.sess.dev.BlockSize())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("pgctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "byte":
			r.cmdByte(args)

		case "bit":
			r.cmdBit(args)

		case "empty":
			r.cmdEmpty(args)

		case "depend":
			r.cmdDepend(args)

		case "inflight":
			r.cmdInflight(args)

		case "satisfy":
			r.cmdSatisfy(args)

		case "destroy":
			r.cmdDestroy(args)

		case "rollback":
			r.cmdRollback(args)

		case "apply":
			r.cmdApply(args)

		case "writeback":
			r.cmdWriteback(args)

		case "patches":
			r.cmdPatches(args)

		case "ready":
			r.cmdReady(args)

		case "block":
			r.cmdBlock(args)

		case "stats":
			r.cmdStats()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"byte", "bit", "empty", "depend",
		"inflight", "satisfy", "destroy",
		"rollback", "apply", "writeback",
		"patches", "ready", "block", "stats",
		"clear", "cls", "help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  byte <block> <offset> <text> [before...]   Create a BYTE patch")
	fmt.Println("  bit <block> <word> <xor> <or> [before...]  Create a BIT patch (hex masks)")
	fmt.Println("  empty [before...]                          Create an EMPTY join patch")
	fmt.Println("  depend <after> <before>                     Add a dependency edge")
	fmt.Println("  inflight <id>                               Mark a patch in-flight")
	fmt.Println("  satisfy <id>                                Mark a patch written")
	fmt.Println("  destroy <id>                                Destroy a written patch")
	fmt.Println("  rollback <id> / apply <id>                  Toggle a BYTE patch's buffer (not BIT or NRB)")
	fmt.Println("  writeback <block>                           Commit ready patches to the device")
	fmt.Println("  patches [block]                             List live patches")
	fmt.Println("  ready <block>                               List ready patches")
	fmt.Println("  block <number>                              Show a block's buffer (hex)")
	fmt.Println("  stats                                       Show accounting counters")
	fmt.Println("  help                                        Show this help")
	fmt.Println("  exit / quit / q                             Exit")
}

// owner is the demo's single synthetic device level: every patch the
// operator creates through this REPL belongs to one device at level 0.
// Patch.Ready only counts befores at levels below a patch's own, so every
// pending patch here is ready whether or not its befores have been written.
type owner struct{}

func (owner) Level() int      { return 0 }
func (owner) GraphIndex() int { return 0 }

var replOwner owner

func (r *REPL) resolveBefores(args []string) ([]*patchgraph.Patch, []string, error) {
	var befores []*patchgraph.Patch

	var rest []string

	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			rest = append(rest, a)
			continue
		}

		p, err := r.sess.patch(id)
		if err != nil {
			return nil, nil, err
		}

		befores = append(befores, p)
	}

	return befores, rest, nil
}

func (r *REPL) cmdByte(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: byte <block> <offset> <text> [before...]")

		return
	}

	blockNum, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing block: %v\n", err)

		return
	}

	offset, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing offset: %v\n", err)

		return
	}

	data := []byte(args[2])

	befores, _, err := r.resolveBefores(args[3:])
	if err != nil {
		fmt.Printf("Error resolving befores: %v\n", err)

		return
	}

	b, err := r.sess.block(uint32(blockNum))
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	p, err := r.sess.graph.CreateByte(replOwner, b, uint32(offset), uint32(len(data)), data, befores)
	if err != nil {
		fmt.Printf("Error creating patch: %v\n", err)

		return
	}

	r.sess.register(p)
	fmt.Printf("OK: patch %d (BYTE, block=%d, offset=%d, length=%d, nrb=%v)\n", p.ID(), b.Number, p.Offset(), p.Length(), p.IsNRB())
}

func (r *REPL) cmdBit(args []string) {
	if len(args) < 4 {
		fmt.Println("Usage: bit <block> <word> <xor-hex> <or-hex> [before...]")

		return
	}

	blockNum, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing block: %v\n", err)

		return
	}

	word, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing word offset: %v\n", err)

		return
	}

	xor, err := strconv.ParseUint(strings.TrimPrefix(args[2], "0x"), 16, 32)
	if err != nil {
		fmt.Printf("Error parsing xor mask: %v\n", err)

		return
	}

	or, err := strconv.ParseUint(strings.TrimPrefix(args[3], "0x"), 16, 32)
	if err != nil {
		fmt.Printf("Error parsing or mask: %v\n", err)

		return
	}

	befores, _, err := r.resolveBefores(args[4:])
	if err != nil {
		fmt.Printf("Error resolving befores: %v\n", err)

		return
	}

	b, err := r.sess.block(uint32(blockNum))
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	p, err := r.sess.graph.CreateBit(replOwner, b, uint32(word), uint32(xor), uint32(or), befores)
	if err != nil {
		fmt.Printf("Error creating patch: %v\n", err)

		return
	}

	r.sess.register(p)
	fmt.Printf("OK: patch %d (BIT, block=%d, word=%d, xor=%#x, or=%#x)\n", p.ID(), b.Number, word, p.XOR(), p.OR())
}

func (r *REPL) cmdEmpty(args []string) {
	befores, _, err := r.resolveBefores(args)
	if err != nil {
		fmt.Printf("Error resolving befores: %v\n", err)

		return
	}

	p, err := r.sess.graph.CreateEmptyList(replOwner, befores...)
	if err != nil {
		fmt.Printf("Error creating patch: %v\n", err)

		return
	}

	r.sess.register(p)
	fmt.Printf("OK: patch %d (EMPTY, %d befores)\n", p.ID(), len(befores))
}

func (r *REPL) parseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fmt.Printf("Error parsing patch ID: %v\n", err)

		return 0, false
	}

	return id, true
}

func (r *REPL) cmdDepend(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: depend <after> <before>")

		return
	}

	afterID, ok := r.parseID(args[0])
	if !ok {
		return
	}

	beforeID, ok := r.parseID(args[1])
	if !ok {
		return
	}

	after, err := r.sess.patch(afterID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	before, err := r.sess.patch(beforeID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if err := r.sess.graph.AddDependChecked(after, before); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: %d depends on %d\n", afterID, beforeID)
}

func (r *REPL) withPatch(args []string, usage string, fn func(p *patchgraph.Patch) error) {
	if len(args) < 1 {
		fmt.Println(usage)

		return
	}

	id, ok := r.parseID(args[0])
	if !ok {
		return
	}

	p, err := r.sess.patch(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if err := fn(p); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: patch %d\n", id)
}

func (r *REPL) cmdInflight(args []string) {
	r.withPatch(args, "Usage: inflight <id>", r.sess.graph.SetInflight)
}

func (r *REPL) cmdSatisfy(args []string) {
	r.withPatch(args, "Usage: satisfy <id>", r.sess.graph.Satisfy)
}

func (r *REPL) cmdDestroy(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: destroy <id>")

		return
	}

	id, ok := r.parseID(args[0])
	if !ok {
		return
	}

	p, err := r.sess.patch(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if err := r.sess.graph.Destroy(&p); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	delete(r.sess.byID, id)
	fmt.Printf("OK: destroyed patch %d\n", id)
}

func (r *REPL) cmdRollback(args []string) {
	r.withPatch(args, "Usage: rollback <id>", r.sess.graph.Rollback)
}

func (r *REPL) cmdApply(args []string) {
	r.withPatch(args, "Usage: apply <id>", r.sess.graph.Apply)
}

func (r *REPL) cmdWriteback(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: writeback <block>")

		return
	}

	blockNum, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing block: %v\n", err)

		return
	}

	n, err := r.sess.writeback(uint32(blockNum))
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if n == 0 {
		fmt.Println("(nothing ready)")

		return
	}

	fmt.Printf("OK: wrote back %d patch(es) on block %d\n", n, blockNum)
}

func (r *REPL) cmdPatches(args []string) {
	var list []*patchgraph.Patch

	if len(args) >= 1 {
		blockNum, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			fmt.Printf("Error parsing block: %v\n", err)

			return
		}

		b, err := r.sess.block(uint32(blockNum))
		if err != nil {
			fmt.Printf("Error: %v\n", err)

			return
		}

		list = b.AllPatches()
	} else {
		for _, p := range r.sess.byID {
			list = append(list, p)
		}
	}

	if len(list) == 0 {
		fmt.Println("(none)")

		return
	}

	for _, p := range list {
		printPatch(p)
	}
}

func (r *REPL) cmdReady(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: ready <block>")

		return
	}

	blockNum, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing block: %v\n", err)

		return
	}

	b, err := r.sess.block(uint32(blockNum))
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	ready := b.ReadyPatches()
	if len(ready) == 0 {
		fmt.Println("(none ready)")

		return
	}

	for _, p := range ready {
		printPatch(p)
	}
}

func printPatch(p *patchgraph.Patch) {
	status := "pending"

	switch {
	case p.IsWritten():
		status = "written"
	case p.IsInFlight():
		status = "in-flight"
	}

	fmt.Printf("  #%-4d %-5s level=%-3d %-9s befores=%d afters=%d\n",
		p.ID(), p.Type(), p.Level(), status, len(p.Befores()), len(p.Afters()))
}

func (r *REPL) cmdBlock(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: block <number>")

		return
	}

	blockNum, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Error parsing block: %v\n", err)

		return
	}

	b, err := r.sess.block(uint32(blockNum))
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("Block %d (%d bytes, extern_afters=%d, nrb=%v):\n", b.Number, b.Length(), b.ExternAfterCount(), b.NRB() != nil)
	fmt.Println(hex.Dump(b.Data))
}

func (r *REPL) cmdStats() {
	st := r.sess.graph.Stats()
	cfg := r.sess.graph.Config()

	fmt.Printf("Accounting: %v\n", cfg.Account)
	fmt.Printf("Live patches: empty=%d byte=%d bit=%d\n", st.LivePatches[patchgraph.TypeEmpty], st.LivePatches[patchgraph.TypeByte], st.LivePatches[patchgraph.TypeBit])
	fmt.Printf("Live edges:   %d\n", st.LiveEdges)
	fmt.Printf("Total patches created: %d\n", st.NPatchesTotal)
	fmt.Printf("Total edges created:   %d\n", st.NEdgesTotal)
	fmt.Printf("Merges:       %d\n", st.NMerges)
	fmt.Printf("NRB conversions: %d\n", st.NConversions)
}
