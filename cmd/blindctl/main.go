//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/google/uuid"

	"github.com/user/motionblinds-ble/blinds"
	"github.com/user/motionblinds-ble/cipher"
	"github.com/user/motionblinds-ble/config"
	"github.com/user/motionblinds-ble/logger"
	"github.com/user/motionblinds-ble/tracer"
	"github.com/user/motionblinds-ble/transport/blegatt"
	"github.com/user/motionblinds-ble/wire/codec"
	"github.com/user/motionblinds-ble/wire/debug"
)

type printer struct{ prefix string }

func (p printer) OnNotify(payload string) { logger.Info(p.prefix, "notification %s", payload) }
func (p printer) OnDisconnected()         { logger.Info(p.prefix, "device logic reset") }

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred shutdowns flush before exiting
func run() int {
	configPath := flag.String("config", config.DefaultPath(), "Path to config.yaml")
	address := flag.String("address", "", "Blind MAC address (overrides config)")
	level := flag.String("log", "", "Log level (overrides config)")
	once := flag.Bool("once", false, "Connect once instead of supervising the link")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	if *address != "" {
		cfg.Device.Address = *address
	}
	if *level != "" {
		cfg.Logger.Level = *level
	}
	if cfg.Device.Address == "" {
		fmt.Println("Usage: blindctl --address <mac> [--config path] [--once]")
		return 1
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logger.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		log.Printf("Failed to set up tracing: %v", err)
		return 1
	}
	defer shutdown(context.Background())

	c, err := cipher.New(cfg.Device.Cipher, cfg.Device.Key)
	if err != nil {
		log.Printf("Failed to create cipher: %v", err)
		return 1
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Printf("Bad timezone: %v", err)
		return 1
	}

	dev, err := linux.NewDevice()
	if err != nil {
		log.Printf("Can't open HCI device: %v", err)
		return 1
	}
	ble.SetDefaultDevice(dev)

	opts := blinds.DefaultOptions(cfg.Device.Address)
	opts.ServiceUUID = uuid.MustParse(cfg.Device.ServiceUUID)
	opts.NotifyUUID = uuid.MustParse(cfg.Device.NotifyUUID)
	opts.WriteUUID = uuid.MustParse(cfg.Device.WriteUUID)
	opts.MTU = cfg.Handshake.MTU
	opts.StateTimeout = cfg.Handshake.StateTimeout
	opts.MaxRetries = cfg.Handshake.MaxRetries
	opts.Debug = debug.NewDebugLogger(cfg.Device.Address, cfg.Debug.Enabled)

	dispatcher := blinds.NewDispatcher(blinds.DefaultQueueDepth)
	transport := blegatt.New(dispatcher, blegatt.Options{
		Address:        cfg.Device.Address,
		ConnectTimeout: cfg.Reconnect.HandshakeTimeout,
	})
	handshake := blinds.NewHandshake(transport, c, codec.SystemClock{Location: loc},
		printer{prefix: cfg.Device.Address}, dispatcher, opts)
	manager := blinds.NewManager(transport, dispatcher)

	go dispatcher.Run(ctx, handshake)

	if *once || !cfg.Reconnect.Enabled {
		changes, cancel := handshake.Watch()
		defer cancel()
		manager.Connect()
		for {
			select {
			case <-ctx.Done():
				manager.Disconnect()
				return 0
			case ch := <-changes:
				if ch.To == blinds.StateIdle {
					log.Printf("Handshake aborted in %s", ch.From)
					return 1
				}
			}
		}
	}

	supervisor := blinds.NewSupervisor(manager, handshake, blinds.SupervisorConfig{
		MinInterval:      cfg.Reconnect.MinInterval,
		Burst:            cfg.Reconnect.Burst,
		MaxFailures:      cfg.Reconnect.MaxFailures,
		OpenTimeout:      cfg.Reconnect.OpenTimeout,
		HandshakeTimeout: cfg.Reconnect.HandshakeTimeout,
	})
	if err := supervisor.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Supervisor stopped: %v", err)
		return 1
	}
	return 0
}
