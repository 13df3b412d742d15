package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rileyhilliard/upsmon/internal/alarm"
	"github.com/rileyhilliard/upsmon/internal/config"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/rileyhilliard/upsmon/internal/session"
	"github.com/rileyhilliard/upsmon/internal/status"
	"github.com/rileyhilliard/upsmon/internal/ui"
	"github.com/spf13/afero"
)

// checkCommand connects once, runs the status command and prints the record.
func checkCommand(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig(overrideHost(checkHostFlag))
	if err != nil {
		return err
	}
	level := "warn"
	if verbose {
		level = cfg.LogLevel
	}
	if err := configureConsoleLogging(level); err != nil {
		return err
	}
	if err := promptPassword(cfg, os.Stdin, os.Stderr); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	held, err := acquireLock(ctx, afero.NewOsFs(), cfg, "check")
	if err != nil {
		return err
	}
	defer releaseLock(held)

	sopts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	sopts.MaxAttempts = 1
	mgr := session.NewManager(newDialer(cfg), sopts, logger.Named("session"))

	// Progress goes to stderr so --json output stays clean.
	spinner := ui.NewSpinner(os.Stderr, "Connecting to "+cfg.UPS.Host)
	spinner.Start()
	sess, err := mgr.Connect(ctx)
	if err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()
	defer sess.Close()

	spinner = ui.NewSpinner(os.Stderr, "Running '"+cfg.UPS.Command+"'")
	spinner.Start()
	reply, err := sess.Execute(cfg.UPS.Command, cfg.Monitor.ExpectTimeout)
	if err != nil {
		spinner.Fail()
		return err
	}
	spinner.Success()

	rec := status.Parse(reply)
	if checkJSON {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrExec, "Couldn't encode the record", "")
		}
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprintln(out)
		if table := recordTable(rec); table != "" {
			fmt.Fprintln(out, table)
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, ui.RenderChecks(cfg.UPS.Host, checkRows(cfg, rec)))
	}

	if len(rec.Fields()) == 0 {
		return errors.NewExitError(1)
	}
	return nil
}

// recordTable renders every field the reply contained.
func recordTable(rec *status.Record) string {
	fields := rec.Fields()
	rows := make([][]string, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, []string{f.Label(), f.Display()})
	}
	return ui.RenderSimpleTable([]ui.TableColumn{{Title: "FIELD"}, {Title: "VALUE"}}, rows)
}

// checkRows summarizes what the monitor would make of this reading.
func checkRows(cfg *config.Config, rec *status.Record) []ui.CheckRow {
	rows := []ui.CheckRow{{Status: "pass", Message: "SSH console reachable, prompt matched"}}

	if len(rec.Fields()) == 0 {
		return append(rows, ui.CheckRow{
			Status:     "fail",
			Message:    "The reply had no recognised status fields",
			Suggestion: fmt.Sprintf("Check that ups.command (%q) prints the detailed status", cfg.UPS.Command),
		})
	}

	next, _ := alarm.Step(alarm.New(cfg.Monitor.AlarmThreshold), rec)
	if next.Active() {
		rows = append(rows, ui.CheckRow{
			Status:  "warn",
			Message: fmt.Sprintf("No AC input power (alarm counter would start at %d/%d)", next.Counter, next.Threshold),
			Suggestion: fmt.Sprintf("Input voltage reads %s VAC; ramp-down triggers after %d polls like this",
				status.OrZero(rec.InputVoltage), next.Threshold),
		})
	} else {
		rows = append(rows, ui.CheckRow{
			Status:  "pass",
			Message: fmt.Sprintf("AC input present (%s VAC)", status.OrZero(rec.InputVoltage)),
		})
	}

	if rec.Online != nil && !*rec.Online {
		rows = append(rows, ui.CheckRow{
			Status:     "warn",
			Message:    "UPS does not report itself online",
			Suggestion: "Check the UPS front panel or the card's event log",
		})
	}
	return rows
}
