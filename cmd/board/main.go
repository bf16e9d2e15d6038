// Board tails a running odds feed over its fanout WebSocket and prints
// every match change and session transition. Useful for eyeballing a
// feed without attaching a real consumer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/calebward/oddsfeed/internal/config"
	"github.com/calebward/oddsfeed/internal/events"
	"github.com/calebward/oddsfeed/internal/fanout"
	"github.com/calebward/oddsfeed/internal/telemetry"
)

func main() {
	operator := flag.String("operator", "", "only show one operator's events")
	addr := flag.String("addr", "", "fanout address host:port (defaults to FANOUT_ADDR)")
	flag.Parse()

	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	target := *addr
	if target == "" {
		target = strings.TrimPrefix(cfg.FanoutAddr, ":")
		if !strings.Contains(target, ":") {
			target = "localhost:" + target
		}
	}

	bus := events.NewBus()
	bus.Subscribe(events.EventMatchChange, func(e events.Event) error {
		mc := e.Payload.(events.MatchChangeEvent)
		ts := e.Timestamp.Local().Format(time.TimeOnly)
		switch mc.Kind {
		case events.ChangeCreated:
			fmt.Printf("%s  [%s] + %s\n", ts, mc.Operator, mc.MatchID)
		case events.ChangeRemoved:
			fmt.Printf("%s  [%s] - %s\n", ts, mc.Operator, mc.MatchID)
		default:
			fmt.Printf("%s  [%s] ~ %s  %s\n", ts, mc.Operator, mc.MatchID,
				strings.Join(mc.ChangedFields, ","))
		}
		return nil
	})
	bus.Subscribe(events.EventSessionStatus, func(e events.Event) error {
		ss := e.Payload.(events.SessionStatusEvent)
		ts := e.Timestamp.Local().Format(time.TimeOnly)
		if ss.Reason != "" {
			fmt.Printf("%s  [%s] session %s (%s)\n", ts, ss.Operator, ss.State, ss.Reason)
		} else {
			fmt.Printf("%s  [%s] session %s\n", ts, ss.Operator, ss.State)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := fanout.NewClient(target, *operator, bus)
	go client.ConnectWithRetry(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
