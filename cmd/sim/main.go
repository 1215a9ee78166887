// Command sim runs the animation pipeline on a host: the panel is drawn in
// the terminal, keys 1-4 act as the buttons and the command server listens
// on a local TCP port.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"time"

	"golang.org/x/term"

	"oledanim/command"
	"oledanim/config"
	"oledanim/display"
	"oledanim/input"
	"oledanim/mqttcmd"
	"oledanim/pipeline"
	"oledanim/telemetry"
	"oledanim/version"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:8080", "Command server address")
	interval := flag.Duration("interval", config.FrameInterval(), "Frame period")
	policy := flag.String("policy", config.ButtonPolicy(), "Button policy when the mailbox is full (drop or block)")
	broker := flag.String("broker", "", "MQTT broker host:port (disabled if empty)")
	topic := flag.String("topic", config.MQTTTopic(), "MQTT command topic")
	logPath := flag.String("log", "oledanim-sim.log", "Log file (the terminal shows the panel)")
	flag.Parse()

	if err := run(*listen, *interval, *policy, *broker, *topic, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(listen string, interval time.Duration, policyName, broker, topic, logPath string) error {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := slog.New(telemetry.NewSlogHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	logger.Info("sim:start", slog.String("version", version.String()))

	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fmt.Errorf("listen port: %w", err)
	}
	var addr netip.Addr
	if host != "" {
		if addr, err = netip.ParseAddr(host); err != nil {
			return fmt.Errorf("listen host: %w", err)
		}
	}

	policy, err := input.ParsePolicy(policyName)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	keys := newKeypad(input.MaxButtons)
	fb := display.NewFramebuffer(display.Width, display.Height)
	fb.Out = os.Stdout

	cfg := pipeline.Config{
		Display:       display.NewPanel(fb),
		FrameInterval: interval,
		FrameCounter:  true,
		Buttons:       keys.buttons(),
		Policy:        policy,
		Debounce:      config.Debounce(),
		Server: &command.Config{
			Listen: func(netip.Addr, uint16) (command.Listener, error) {
				return command.ListenTCP(addr, uint16(port))
			},
			Port:          uint16(port),
			AcceptTimeout: config.AcceptTimeout(),
			ReadTimeout:   config.ReadTimeout(),
		},
		Logger: logger,
	}
	if broker != "" {
		cfg.MQTT = &mqttcmd.Config{
			Dial:     dialBroker(broker),
			ClientID: config.ClientID() + "-sim",
			Topic:    topic,
		}
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		old, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return err
		}
		defer term.Restore(int(os.Stdin.Fd()), old)
	}
	fmt.Print("\x1b[2J")
	go keys.dispatch(ctx, os.Stdin, cancel)

	err = p.Run(ctx)
	fmt.Print("\x1b[2J\x1b[H")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// dialBroker returns a DialFunc using the host network.
func dialBroker(addr string) mqttcmd.DialFunc {
	return func(ctx context.Context) (mqttcmd.Conn, error) {
		var d net.Dialer
		dctx, cancel := context.WithTimeout(ctx, mqttcmd.DefaultTimeout)
		defer cancel()
		return d.DialContext(dctx, "tcp", addr)
	}
}

// keypad turns key presses on a terminal into button presses.
type keypad struct {
	keys []*keyButton
}

func newKeypad(n int) *keypad {
	k := &keypad{keys: make([]*keyButton, n)}
	for i := range k.keys {
		k.keys[i] = &keyButton{press: make(chan struct{}, 1)}
	}
	return k
}

func (k *keypad) buttons() []input.Button {
	b := make([]input.Button, len(k.keys))
	for i, key := range k.keys {
		b[i] = key
	}
	return b
}

// dispatch reads keys from r until ctx is done or r ends. Keys '1'.. press
// the matching button; 'q', Ctrl-C and Ctrl-D call quit.
func (k *keypad) dispatch(ctx context.Context, r io.Reader, quit func()) {
	var buf [16]byte
	for ctx.Err() == nil {
		n, err := r.Read(buf[:])
		for _, c := range buf[:n] {
			switch {
			case c == 'q' || c == 0x03 || c == 0x04:
				quit()
				return
			case c >= '1' && int(c-'1') < len(k.keys):
				k.keys[c-'1'].tap()
			}
		}
		if err != nil {
			return
		}
	}
}

// keyButton is a momentary button: a key press is a press and an
// immediate release.
type keyButton struct {
	press chan struct{}
}

// tap records a press. Presses while one is pending are merged, like
// repeated bounces of a contact.
func (b *keyButton) tap() {
	select {
	case b.press <- struct{}{}:
	default:
	}
}

func (b *keyButton) WaitForPress(ctx context.Context) error {
	select {
	case <-b.press:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *keyButton) WaitForRelease(ctx context.Context) error {
	return ctx.Err()
}
