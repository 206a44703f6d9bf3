// Command rtosctl is a read-only introspection console over a running
// *rtos.Kernel: ps lists threads, locks lists mutex ownership and waiters,
// mem summarizes the arena free list. It boots a small fixed scenario (the
// same priority-inversion setup rtosdemo runs) purely so there is
// something worth inspecting, then hands the terminal to the REPL.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/sync/errgroup"

	"github.com/wellrun/micro-os-plus-iii/internal/buildinfo"
	"github.com/wellrun/micro-os-plus-iii/rtmem"
	"github.com/wellrun/micro-os-plus-iii/rtos"
)

type command struct {
	usage string
	desc  string
	run   func(w io.Writer, k *rtos.Kernel, arena *rtmem.Arena, args []string) error
}

var registry map[string]command

func init() {
	registry = map[string]command{
		"ps":    {"ps", "list threads and their scheduling state", cmdPS},
		"locks": {"locks", "list mutexes, owners and waiters", cmdLocks},
		"mem":   {"mem", "summarize the arena allocator's free list", cmdMem},
		"help":  {"help", "list available commands", cmdHelp},
	}
}

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Print build version and exit.")
	flag.Parse()
	if showVersion {
		fmt.Println("rtosctl", buildinfo.Short())
		return
	}

	k, arena := bootScenario()

	fmt.Println("rtosctl — type `help` for commands, Ctrl-D to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "rtosctl:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		cmd, ok := registry[args[0]]
		if !ok {
			fmt.Fprintf(os.Stderr, "rtosctl: unknown command %q (try `help`)\n", args[0])
			continue
		}
		if err := cmd.run(os.Stdout, k, arena, args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "rtosctl:", err)
		}
	}
}

func cmdHelp(w io.Writer, _ *rtos.Kernel, _ *rtmem.Arena, _ []string) error {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-8s %s\n", name, registry[name].desc)
	}
	return nil
}

func cmdPS(w io.Writer, k *rtos.Kernel, _ *rtmem.Arena, _ []string) error {
	threads := k.Sched.Threads()
	fmt.Fprintf(w, "%-12s %-10s %8s %8s\n", "NAME", "STATE", "BASE", "EFF")
	for _, th := range threads {
		fmt.Fprintf(w, "%-12s %-10s %8d %8d\n", th.Name(), th.State(), th.BasePriority(), th.Priority())
	}
	return nil
}

func cmdLocks(w io.Writer, k *rtos.Kernel, _ *rtmem.Arena, _ []string) error {
	mutexes := k.Sched.Mutexes()
	fmt.Fprintf(w, "%-16s %-12s %8s\n", "NAME", "OWNER", "WAITERS")
	for _, m := range mutexes {
		owner := "<none>"
		if o := m.Owner(); o != nil {
			owner = o.Name()
		}
		fmt.Fprintf(w, "%-16s %-12s %8d\n", m.Name(), owner, m.WaiterCount())
	}
	return nil
}

func cmdMem(w io.Writer, _ *rtos.Kernel, arena *rtmem.Arena, _ []string) error {
	if arena == nil {
		fmt.Fprintln(w, "no arena attached to this scenario")
		return nil
	}
	fmt.Fprintf(w, "size=%d largest_free=%d\n", arena.Size(), arena.MaxSize())
	return nil
}

// bootScenario wires the same low/mid/high priority-inversion setup
// rtosdemo runs, started and left running in the background so ps/locks/mem
// have something to show.
func bootScenario() (*rtos.Kernel, *rtmem.Arena) {
	k := rtos.NewKernel(rtos.DefaultConfig())
	arena := rtmem.New(64 * 1024)

	m, err := k.Sched.NewMutex(rtos.MutexAttributes{Name: "shared-resource", Protocol: rtos.ProtocolInherit})
	if err != nil {
		panic(err)
	}

	locked := make(chan struct{})

	low, err := k.NewThread(rtos.Attributes{Name: "low", Priority: 40, StackMem: arena}, func(ctx context.Context, th *rtos.Thread) {
		_ = m.Lock(th)
		close(locked)
		k.Sched.SleepFor(500)
		_ = m.Unlock(th)
	})
	if err != nil {
		panic(err)
	}

	mid, err := k.NewThread(rtos.Attributes{Name: "mid", Priority: 120, StackMem: arena}, func(ctx context.Context, th *rtos.Thread) {
		<-locked
	})
	if err != nil {
		panic(err)
	}

	high, err := k.NewThread(rtos.Attributes{Name: "high", Priority: 220, StackMem: arena}, func(ctx context.Context, th *rtos.Thread) {
		<-locked
		_ = m.Lock(th)
		defer m.Unlock(th)
	})
	if err != nil {
		panic(err)
	}

	k.Start(low)
	k.Start(mid)
	k.Start(high)

	g, ctx := errgroup.WithContext(context.Background())
	k.RunTicker(ctx, g, time.Millisecond)

	return k, arena
}
