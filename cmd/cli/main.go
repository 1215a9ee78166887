// Command animctl drives an OLED animation device over its HTTP command
// port and inspects frame directories before they are embedded.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/image/bmp"
	"golang.org/x/term"

	"oledanim/animation"
	"oledanim/version"
)

const (
	defaultPort    = "80"
	defaultTimeout = 10 * time.Second
	readTimeout    = 5 * time.Second
	envHost        = "OLEDANIM_HOST"
)

var errUsage = errors.New("usage")

func main() {
	// Load .env file before parsing flags
	loadEnvFile()

	host := flag.String("host", os.Getenv(envHost), "Device IP address (or "+envHost+")")
	port := flag.String("port", defaultPort, "Device HTTP port")
	cmd := flag.String("cmd", "", "Single command to execute (interactive mode if empty)")
	flag.Parse()

	args := flag.Args()

	// Commands that don't need a device
	if len(args) > 0 {
		switch args[0] {
		case "frames":
			if len(args) < 2 {
				fmt.Println("Usage: animctl frames <dir>")
				os.Exit(1)
			}
			if err := inspectFrames(os.Stdout, args[1]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "version":
			fmt.Println("animctl", version.String())
			return
		}
	}

	if *host == "" {
		if len(args) == 0 {
			printUsage()
			os.Exit(1)
		}
		*host, args = args[0], args[1:]
	}
	if *cmd == "" && len(args) > 0 {
		*cmd = strings.Join(args, " ")
	}

	addr := net.JoinHostPort(*host, *port)

	if *cmd != "" {
		// Single command mode
		out, err := runCommand(addr, *cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(out)
		return
	}

	if err := interactive(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("OLED Animation CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  animctl <ip> [command]")
	fmt.Println("  animctl -host <ip> [-port <port>] [-cmd <command>]")
	fmt.Println("  animctl frames <dir>")
	fmt.Println("  animctl version")
	fmt.Println()
	fmt.Println("Device Commands:")
	fmt.Println("  1..4, play <n>       Switch to animation n")
	fmt.Println("  value <n>            Send n through /command?value= (any byte)")
	fmt.Println("  status               Show the device counters")
	fmt.Println("  raw <path>           GET an arbitrary path")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  animctl 192.168.1.99                  # Interactive mode")
	fmt.Println("  animctl 192.168.1.99 3                # Play animation 3")
	fmt.Println("  OLEDANIM_HOST=192.168.1.99 animctl status")
	fmt.Println("  animctl frames animation/frames/nooo  # Inspect frames")
}

// requestPath maps a CLI command to the device path it requests.
func requestPath(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", errUsage
	}
	switch fields[0] {
	case "1", "2", "3", "4":
		if len(fields) != 1 {
			return "", errUsage
		}
		return "/" + fields[0], nil
	case "play":
		if len(fields) != 2 {
			return "", fmt.Errorf("%w: play <n>", errUsage)
		}
		return "/" + fields[1], nil
	case "value":
		if len(fields) != 2 {
			return "", fmt.Errorf("%w: value <n>", errUsage)
		}
		return "/command?value=" + fields[1], nil
	case "status":
		return "/", nil
	case "raw":
		if len(fields) != 2 || !strings.HasPrefix(fields[1], "/") {
			return "", fmt.Errorf("%w: raw </path>", errUsage)
		}
		return fields[1], nil
	}
	return "", fmt.Errorf("unknown command %q", fields[0])
}

// runCommand executes a single command line and returns the output to print.
func runCommand(addr, line string) (string, error) {
	fields, err := shlex.Split(line)
	if err != nil {
		return "", fmt.Errorf("parse command: %w", err)
	}
	path, err := requestPath(fields)
	if err != nil {
		return "", err
	}
	status, body, err := get(addr, path)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(status, "HTTP/1.1 200") && !strings.HasPrefix(status, "HTTP/1.0 200") {
		return "", fmt.Errorf("device replied %q", status)
	}
	if fields[0] == "status" || strings.Contains(body, "<h1>") {
		return controlCounters(body), nil
	}
	return strings.TrimSpace(body), nil
}

// get sends one request and reads the reply until the device closes.
func get(addr, path string) (status, body string, err error) {
	conn, err := net.DialTimeout("tcp", addr, defaultTimeout)
	if err != nil {
		return "", "", fmt.Errorf("connect failed: %w", err)
	}
	defer conn.Close()

	// The device reads the request in a single read.
	req := "GET " + path + " HTTP/1.1\r\nHost: " + addr + "\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		return "", "", fmt.Errorf("send failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	raw, err := io.ReadAll(conn)
	if err != nil && len(raw) == 0 {
		return "", "", fmt.Errorf("read failed: %w", err)
	}
	return splitResponse(raw)
}

// splitResponse separates the status line and the body of a raw reply.
func splitResponse(raw []byte) (status, body string, err error) {
	head, rest, ok := bytes.Cut(raw, []byte("\r\n\r\n"))
	if !ok {
		return "", "", fmt.Errorf("malformed response (%d bytes)", len(raw))
	}
	line, _, _ := bytes.Cut(head, []byte("\r\n"))
	return string(line), string(rest), nil
}

// controlCounters extracts the counter block from the control page.
func controlCounters(page string) string {
	_, rest, ok := strings.Cut(page, "<pre>")
	if !ok {
		return "(no counters)"
	}
	counters, _, _ := strings.Cut(rest, "</pre>")
	counters = strings.TrimSpace(counters)
	if counters == "" {
		return "(no counters)"
	}
	return counters
}

// interactive runs a command prompt against the device. Each command is a
// separate connection, as the device serves one request per connection.
func interactive(addr string) error {
	fmt.Printf("Device %s. Type 'help', 'quit' or Ctrl+D to exit.\n", addr)

	readLine := func() (string, error) { return "", io.EOF }
	out := io.Writer(os.Stdout)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		old, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return err
		}
		defer term.Restore(int(os.Stdin.Fd()), old)
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "> ")
		readLine, out = t.ReadLine, t
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		readLine = func() (string, error) {
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return scanner.Text(), nil
		}
	}

	for {
		line, err := readLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue // Just show prompt again
		case "quit", "exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "help":
			fmt.Fprintln(out, "1..4, play <n>, value <n>, status, raw <path>, quit")
			continue
		}

		result, err := runCommand(addr, line)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, strings.ReplaceAll(result, "\n", "\r\n"))
	}
}

// inspectFrames loads a frame directory the way the firmware build does
// and prints each frame's geometry and lit pixel count.
func inspectFrames(w io.Writer, dir string) error {
	dir = filepath.Clean(dir)
	set, err := animation.LoadFrameSet(os.DirFS(filepath.Dir(dir)), filepath.Base(dir))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Animation: %s\n", set.Name)
	fmt.Fprintf(w, "Frames:    %d\n", set.Len())
	fmt.Fprintln(w)

	var failed int
	for i, data := range set.Frames {
		img, err := bmp.Decode(bytes.NewReader(data))
		if err != nil {
			failed++
			fmt.Fprintf(w, "  %2d  %6d bytes  INVALID: %v\n", i, len(data), err)
			continue
		}
		b := img.Bounds()
		fmt.Fprintf(w, "  %2d  %6d bytes  %dx%d  %4d lit\n", i, len(data), b.Dx(), b.Dy(), litPixels(img))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d frames failed to decode", failed, set.Len())
	}
	return nil
}

// litPixels counts pixels the panel would turn on.
func litPixels(img image.Image) int {
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y >= 0x80 {
				n++
			}
		}
	}
	return n
}

// loadEnvFile loads KEY=VALUE pairs from .env without overriding the
// environment.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist or can't be read, that's fine
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
