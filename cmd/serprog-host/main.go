// Command serprog-host is an interactive client for serprog programmers.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"vserprog/core"
	"vserprog/host/programmer"
	"vserprog/host/serial"
)

var (
	device  = flag.String("device", "auto", "Serial device path, or auto to find the programmer by USB ID")
	tcpAddr = flag.String("tcp", "", "Connect to a serprogd TCP listener instead of a serial device")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
	timeout = flag.Duration("timeout", 2*time.Second, "Reply timeout")
	verbose = flag.Bool("verbose", false, "Enable verbose output")
)

func main() {
	flag.Parse()

	fmt.Println("serprog host")
	fmt.Println("============")
	fmt.Println()

	port, name, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Connected to %s\n", name)

	cfg := programmer.Config{Timeout: *timeout}
	if *verbose {
		cfg.Logger = core.NewLogger(os.Stderr, core.LevelTrace)
	}
	c := programmer.New(port, cfg)
	defer c.Close()

	sh := &shell{c: c, out: os.Stdout, p: message.NewPrinter(language.AmericanEnglish)}
	if err := sh.probe(nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
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
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			fmt.Println("Goodbye!")
			return
		}
		if err := sh.run(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// connect opens the TCP or serial link selected by the flags.
func connect() (io.ReadWriteCloser, string, error) {
	if *tcpAddr != "" {
		conn, err := net.DialTimeout("tcp", *tcpAddr, *timeout)
		return conn, *tcpAddr, err
	}
	path := *device
	if path == "auto" {
		var err error
		path, err = serial.FindUSB(serial.DefaultVID, serial.DefaultPID)
		if err != nil {
			return nil, "", err
		}
	}
	cfg := serial.DefaultConfig(path)
	cfg.Baud = *baud
	port, err := serial.Open(cfg)
	return port, path, err
}
