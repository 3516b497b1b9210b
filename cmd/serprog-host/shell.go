package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"golang.org/x/text/message"
	"zappem.net/pub/debug/xcrc32"
	"zappem.net/pub/debug/xxd"

	"vserprog/host/programmer"
)

type shell struct {
	c   *programmer.Client
	out io.Writer
	p   *message.Printer
}

type shellCmd struct {
	usage string
	help  string
	run   func(sh *shell, args []string) error
}

var shellCmds map[string]shellCmd

func init() {
	shellCmds = map[string]shellCmd{
		"help":   {"help", "Show this help message", (*shell).help},
		"probe":  {"probe", "Query programmer identity and limits", (*shell).probe},
		"sync":   {"sync", "Resynchronize the link", (*shell).sync},
		"freq":   {"freq HZ", "Set the SPI clock", (*shell).freq},
		"pins":   {"pins on|off", "Drive or release the SPI pins", (*shell).pins},
		"id":     {"id", "Read the flash JEDEC ID", (*shell).id},
		"status": {"status", "Read the flash status register", (*shell).status},
		"read":   {"read ADDR LEN [FILE]", "Read flash, hex dump or save to FILE", (*shell).read},
		"erase":  {"erase ADDR|chip", "Erase the 4 KiB sector at ADDR or the whole chip", (*shell).erase},
		"write":  {"write ADDR FILE", "Program FILE at ADDR (erase first)", (*shell).write},
		"bench":  {"bench N", "Time N status reads and show a latency histogram", (*shell).bench},
	}
}

func (sh *shell) run(args []string) error {
	cmd, ok := shellCmds[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", args[0])
	}
	return cmd.run(sh, args[1:])
}

func (sh *shell) help([]string) error {
	names := make([]string, 0, len(shellCmds))
	for name := range shellCmds {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(sh.out, "\nAvailable commands:")
	for _, name := range names {
		cmd := shellCmds[name]
		fmt.Fprintf(sh.out, "  %-22s - %s\n", cmd.usage, cmd.help)
	}
	fmt.Fprintf(sh.out, "  %-22s - %s\n\n", "quit/exit/q", "Exit the program")
	return nil
}

func (sh *shell) probe([]string) error {
	info, err := sh.c.Probe()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Programmer:  %s (interface v%d)\n", info.Name, info.Version)
	fmt.Fprintf(sh.out, "Buses:       %v\n", info.Bus)
	sh.p.Fprintf(sh.out, "Buffers:     serial %d bytes, op %d bytes, max write %d bytes\n", info.SerBuf, info.OpBuf, info.WrnMaxLen)
	return nil
}

func (sh *shell) sync([]string) error {
	if err := sh.c.Sync(); err != nil {
		return err
	}
	fmt.Fprintln(sh.out, "In sync")
	return nil
}

func (sh *shell) freq(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: freq HZ")
	}
	hz, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return err
	}
	got, err := sh.c.SetFrequency(uint32(hz))
	if err != nil {
		return err
	}
	sh.p.Fprintf(sh.out, "SPI clock %d Hz\n", got)
	return nil
}

func (sh *shell) pins(args []string) error {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return fmt.Errorf("usage: pins on|off")
	}
	return sh.c.SetPins(args[0] == "on")
}

func (sh *shell) id([]string) error {
	id, err := sh.c.ReadID()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "JEDEC ID %02X %02X %02X", id[0], id[1], id[2])
	if size := id.Size(); size > 0 {
		sh.p.Fprintf(sh.out, " (%d bytes)", size)
	}
	fmt.Fprintln(sh.out)
	return nil
}

func (sh *shell) status([]string) error {
	st, err := sh.c.ReadStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Status 0x%02X\n", st)
	return nil
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 24)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return uint32(v), nil
}

func (sh *shell) read(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: read ADDR LEN [FILE]")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(args[1], 0, 24)
	if err != nil {
		return err
	}

	start := time.Now()
	d, err := sh.c.Read(addr, int(n))
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if len(args) == 3 {
		if err := os.WriteFile(args[2], d, 0o644); err != nil {
			return err
		}
	} else {
		xxd.Print(int(addr), d)
	}
	_, crc := xcrc32.NewCRC32(d)
	sh.p.Fprintf(sh.out, "%d bytes in %v (%d B/s), crc32 0x%08x\n", len(d), elapsed.Round(time.Millisecond), rate(len(d), elapsed), crc)
	return nil
}

func (sh *shell) erase(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: erase ADDR|chip")
	}
	if args[0] == "chip" {
		return sh.c.EraseChip()
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	return sh.c.EraseSector(addr)
}

func (sh *shell) write(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write ADDR FILE")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	d, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	start := time.Now()
	if err := sh.c.Program(addr, d); err != nil {
		return err
	}
	elapsed := time.Since(start)

	back, err := sh.c.Read(addr, len(d))
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	_, want := xcrc32.NewCRC32(d)
	_, got := xcrc32.NewCRC32(back)
	if got != want {
		return fmt.Errorf("verify failed: crc32 got=0x%08x want=0x%08x", got, want)
	}
	sh.p.Fprintf(sh.out, "%d bytes programmed in %v (%d B/s), verified crc32 0x%08x\n", len(d), elapsed.Round(time.Millisecond), rate(len(d), elapsed), want)
	return nil
}

func (sh *shell) bench(args []string) error {
	n := 100
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("usage: bench N")
		}
		n = v
	}
	times := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		if _, err := sh.c.ReadStatus(); err != nil {
			return err
		}
		times = append(times, float64(time.Since(start)))
	}
	hist := histogram.Hist(10, times)
	return histogram.Fprintf(sh.out, hist, histogram.Linear(40), func(v float64) string {
		return sh.p.Sprintf("% 11dns", time.Duration(v).Nanoseconds())
	})
}

func rate(n int, d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(float64(n) / d.Seconds())
}
