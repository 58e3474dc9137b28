package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/user/motionblinds-ble/blinds"
	"github.com/user/motionblinds-ble/cipher"
	"github.com/user/motionblinds-ble/config"
	"github.com/user/motionblinds-ble/logger"
	"github.com/user/motionblinds-ble/transport/sim"
	"github.com/user/motionblinds-ble/wire/codec"
	"github.com/user/motionblinds-ble/wire/debug"
)

type printer struct{}

func (printer) OnNotify(payload string) { fmt.Printf("  device <- %s\n", payload) }
func (printer) OnDisconnected()         { fmt.Println("  device reset") }

func main() {
	key := flag.String("key", "", "AES key (32 hex digits); plain hex when empty")
	level := flag.String("log", "info", "Log level")
	silent := flag.Bool("silent", false, "Blind never answers the user query")
	dropAcks := flag.Bool("drop-acks", false, "Blind never acknowledges writes")
	mtu := flag.Int("mtu", blinds.WantedMTU, "Largest MTU the blind accepts")
	timeout := flag.Duration("state-timeout", 200*time.Millisecond, "Per-state watchdog timeout")
	retries := flag.Int("retries", blinds.DefaultMaxRetries, "Watchdog retries per state")
	record := flag.Bool("record", false, "Write JSONL debug records to the data dir")
	flag.Parse()

	logger.SetLevel(logger.ParseLevel(*level))

	kind := "plain"
	if *key != "" {
		kind = "aes"
	}
	cfg := config.Defaults()
	cfg.Device.Cipher, cfg.Device.Key = kind, *key
	cfg.Handshake.MTU = *mtu
	cfg.Handshake.StateTimeout = *timeout
	cfg.Handshake.MaxRetries = *retries
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("%v", err)
	}

	c, err := cipher.New(cfg.Device.Cipher, cfg.Device.Key)
	if err != nil {
		log.Fatalf("Failed to create cipher: %v", err)
	}

	dispatcher := blinds.NewDispatcher(blinds.DefaultQueueDepth)
	blind := sim.New(dispatcher, sim.Options{
		Name:          "blind",
		MTU:           cfg.Handshake.MTU,
		DropAcks:      *dropAcks,
		SilentOnQuery: *silent,
		Cipher:        c,
	})

	opts := blinds.DefaultOptions("sim")
	opts.StateTimeout = cfg.Handshake.StateTimeout
	opts.MaxRetries = cfg.Handshake.MaxRetries
	opts.Debug = debug.NewDebugLogger("sim", *record)

	handshake := blinds.NewHandshake(blind, c, codec.SystemClock{}, printer{}, dispatcher, opts)
	manager := blinds.NewManager(blind, dispatcher)
	changes, unwatch := handshake.Watch()
	defer unwatch()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go dispatcher.Run(ctx, handshake)

	fmt.Println("=== Motion blind handshake (simulated) ===")
	manager.Connect()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("❌ Timed out")
			os.Exit(1)
		case ch := <-changes:
			fmt.Printf("%-16s -> %-16s (%s)\n", ch.From, ch.To, ch.Cause)
			switch ch.To {
			case blinds.StateEstablished:
				fmt.Println("\nCommands received by the blind:")
				for _, raw := range blind.RawCommands() {
					fmt.Printf("  %s\n", strings.ToUpper(raw))
				}
				blind.Notify("0cc0080102")
				time.Sleep(50 * time.Millisecond)
				if dir := opts.Debug.Dir(); dir != "" {
					fmt.Printf("\nDebug records in %s\n", dir)
				}
				fmt.Println("✓ Session established")
				return
			case blinds.StateIdle:
				fmt.Println("❌ Handshake aborted")
				os.Exit(1)
			}
		}
	}
}
