// Command station is one queue device: a patient phone, a waiting-room
// display or the nurse desk. It keeps its held ticket and staff flag in a
// local TOML file and talks to the shared store directly.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-queue/internal/config"
	"clinic-queue/internal/device"
	"clinic-queue/internal/helper"
	"clinic-queue/internal/models"
	"clinic-queue/internal/queue"
	"clinic-queue/internal/station"
	"clinic-queue/internal/telemetry"

	"github.com/spf13/pflag"
)

const usage = `usage: station <command> [flags]

commands:
  take        take a ticket for this device
  drop        cancel the held ticket
  status      print the queue as this device sees it
  watch       follow the queue and print alerts until interrupted
  login       enable staff mode (--pin)
  logout      leave staff mode
  call-next   serve the next ticket (staff)
  step-back   go back one ticket (staff)
  reset       rewind the queue to a fresh day (staff, --confirm)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(out, usage)
		return nil
	}
	command := args[0]

	var (
		statePath string
		pin       string
		confirm   bool
		asJSON    bool
	)
	flagSet := pflag.NewFlagSet("station "+command, pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&statePath, "state", device.DefaultPath(), "device state file")
	flagSet.StringVar(&pin, "pin", "", "staff PIN (login)")
	flagSet.BoolVar(&confirm, "confirm", false, "confirm a queue reset")
	flagSet.BoolVar(&asJSON, "json", false, "print views as JSON")
	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	config.LoadEnv()
	cfg := config.Load()

	shutdownTracing := telemetry.Setup(ctx, "clinic-queue-station", cfg.OTelEndpoint, cfg.OTelInsecure)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	st, err := config.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	checker, err := config.NewPINChecker(cfg.StaffPIN, cfg.StaffPINHash)
	if err != nil {
		return err
	}

	q := queue.NewService(st, queue.Options{
		AverageServiceTime: cfg.AverageServiceTime,
		Learned:            cfg.LearnedServiceTime,
		IsOpen:             helper.OpenHours(cfg.ClinicOpen, cfg.ClinicClose, cfg.Location()),
	})
	s, err := station.New(st, q, station.Options{
		StatePath:         statePath,
		NearTurnThreshold: cfg.NearTurnThreshold,
		PIN:               checker,
	})
	if err != nil {
		return err
	}

	printView := func(view models.QueueView) {
		if asJSON {
			raw, _ := json.Marshal(view)
			fmt.Fprintln(out, string(raw))
			return
		}
		fmt.Fprintln(out, formatView(view))
	}

	switch command {
	case "take":
		ticket, err := s.Take(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "your ticket: %d\n", ticket.Number)
	case "drop":
		reclaimed, err := s.Drop(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ticket dropped (number reused: %v)\n", reclaimed)
	case "status":
		view, err := s.Status(ctx)
		if err != nil {
			return err
		}
		printView(view)
	case "watch":
		return s.Run(ctx, printView, func(alert station.Alert) {
			fmt.Fprintln(out, "!", alert)
		})
	case "login":
		if err := s.Login(pin); err != nil {
			return err
		}
		fmt.Fprintln(out, "staff mode enabled")
	case "logout":
		if err := s.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(out, "staff mode disabled")
	case "call-next":
		result, err := s.CallNext(ctx)
		if err != nil {
			return err
		}
		if !result.Advanced {
			fmt.Fprintln(out, "no waiting ticket")
			return nil
		}
		fmt.Fprintf(out, "now serving %d\n", result.Serving)
		for _, n := range result.Skipped {
			fmt.Fprintf(out, "skipped cancelled ticket %d\n", n)
		}
	case "step-back":
		state, err := s.StepBack(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "now serving %d\n", state.CurrentNumber)
	case "reset":
		if _, err := s.Reset(ctx, confirm); err != nil {
			return err
		}
		fmt.Fprintln(out, "queue reset")
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func formatView(view models.QueueView) string {
	line := fmt.Sprintf("serving %d, next %d, waiting %d", view.CurrentNumber, view.NextNumber, view.QueueLength)
	if view.CurrentExamSeconds > 0 {
		line += fmt.Sprintf(", in room %s", time.Duration(view.CurrentExamSeconds)*time.Second)
	}
	if view.Ticket > 0 {
		switch {
		case view.IsMyTurn:
			line += fmt.Sprintf(" | ticket %d: your turn", view.Ticket)
		case view.MyWaiting == 0:
			line += fmt.Sprintf(" | ticket %d: already called", view.Ticket)
		default:
			line += fmt.Sprintf(" | ticket %d: %d ahead, about %s", view.Ticket, view.MyWaiting,
				time.Duration(view.EstimatedWaitSecs)*time.Second)
		}
	}
	if !view.Connected {
		line += " (offline)"
	}
	return line
}
