//go:build tinygo

package main

// WARNING: default -scheduler=cores unsupported, compile with -scheduler=tasks set!

import (
	"context"
	"errors"
	"log/slog"
	"machine"
	"time"

	"oledanim/command"
	"oledanim/config"
	"oledanim/credentials"
	"oledanim/display"
	"oledanim/input"
	"oledanim/mqttcmd"
	"oledanim/pipeline"
	"oledanim/render"
	"oledanim/telemetry"
	"oledanim/version"

	"github.com/soypat/lneto/x/xnet"
)

// Render watchdog: the device resets when no frame has been drawn for
// watchdogChecks consecutive checks.
const (
	watchdogTimeout = 8000 // ms
	watchdogEvery   = 2 * time.Second
	watchdogChecks  = 3
)

func main() {
	time.Sleep(2 * time.Second) // Give time to connect to USB and monitor output.
	println("========================================")
	println("  OLED Animation")
	println("  Version:", version.String())
	println("========================================")

	// Application logger, also queued for the telemetry collector
	logger := slog.New(telemetry.NewSlogHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Network stack logger (error+4 level to suppress all network noise)
	// The cywnet library logs "packet dropped" at ERROR level which is normal for WiFi
	netLogger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{
		Level: slog.Level(12),
	}))

	ctx := context.Background()
	led := initStatusLED()
	go led.Run(ctx)

	err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       pinI2CSDA,
		SCL:       pinI2CSCL,
	})
	if err != nil {
		logger.Error("init:i2c-failed", slog.String("err", err.Error()))
	}

	var panel *display.Panel
	pipeline.WaitForDevice(ctx, logger, "display", time.Second, func() error {
		dev, err := display.NewSSD1306(machine.I2C0, display.Address)
		if err != nil {
			return err
		}
		panel = display.NewPanel(dev)
		return nil
	})

	policy, err := input.ParsePolicy(config.ButtonPolicy())
	if err != nil {
		logger.Warn("config:button-policy", slog.String("err", err.Error()))
	}
	var buttons []input.Button
	for _, pin := range initButtons() {
		buttons = append(buttons, &input.PinButton{Pin: pin})
	}

	cfg := pipeline.Config{
		Display:       panel,
		Decoder:       render.BMPDecoder{},
		FrameInterval: config.FrameInterval(),
		FrameCounter:  true,
		Buttons:       buttons,
		Policy:        policy,
		Debounce:      config.Debounce(),
		Ack:           led.Ack,
		Logger:        logger,
	}

	if credentials.Configured() {
		link := &wifiLink{
			logger:    logger,
			netLogger: netLogger,
			hostname:  config.Hostname(),
			requested: config.RequestedIP(),
		}
		link.onAddress = func(stack *xnet.StackAsync) {
			led.SetSteady(true)
			if collector, err := config.TelemetryCollectorAddr(); err == nil {
				telemetry.Init(stack, logger, collector)
			}
		}
		cfg.Server = &command.Config{
			Link:          link,
			Listen:        link.listen,
			Port:          config.HTTPPort(),
			AcceptTimeout: config.AcceptTimeout(),
			ReadTimeout:   config.ReadTimeout(),
			Backoff:       config.JoinBackoff(),
		}

		if broker, err := config.BrokerAddr(); err == nil {
			cfg.MQTT = &mqttcmd.Config{
				Dial:     link.dialBroker(broker),
				ClientID: clientID(),
				Topic:    config.MQTTTopic(),
				Rand:     link.prand,
				Backoff:  config.JoinBackoff(),
			}
			logger.Info("config:broker", slog.String("addr", broker.String()))
		} else if !errors.Is(err, config.ErrDisabled) {
			logger.Error("config:broker-invalid", slog.String("err", err.Error()))
		}
	} else {
		logger.Warn("wifi:no-credentials")
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		logger.Error("init:pipeline-failed", slog.String("err", err.Error()))
		for {
			time.Sleep(time.Second)
		}
	}
	if p.Server != nil {
		p.Server.OnState = func(s command.State) {
			if s == command.Connecting {
				led.SetSteady(false)
			}
		}
	}

	machine.Watchdog.Configure(machine.WatchdogConfig{
		TimeoutMillis: watchdogTimeout,
	})
	machine.Watchdog.Start()
	go feedWatchdog()
	logger.Info("init:complete")

	p.Run(ctx)
}

// feedWatchdog keeps the watchdog fed while frames are being drawn.
func feedWatchdog() {
	d := stallDetector{limit: watchdogChecks}
	for {
		machine.Watchdog.Update()
		time.Sleep(watchdogEvery)
		if !d.healthy(telemetry.Count(telemetry.CounterFrames)) {
			println("watchdog: render loop stalled, waiting for reset")
			return
		}
	}
}

// clientID appends a random suffix so parallel units do not collide.
func clientID() string {
	id := make([]byte, 0, 32)
	id = append(id, config.ClientID()...)
	id = append(id, '-')
	r, _ := machine.GetRNG()
	return string(appendHex(id, uint16(r)))
}
