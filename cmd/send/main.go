// Command send runs one dispatch pass from a job file and flags, printing
// progress once a second and the final tally.
//
//	send -job job.yaml
//	DAILYSEND_SECRET=... send -sender me@gmail.com -subject Hi -body @body.txt \
//	    -recipients list.xlsx -limit 200 -at 09:30 -wait
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dailysend/internal/app"
	"github.com/dailysend/internal/dispatch"
	"github.com/dailysend/internal/jobfile"
	"github.com/dailysend/internal/mailer"
	"github.com/dailysend/internal/model"
	"github.com/dailysend/internal/recipients"
)

const (
	exitOK      = 0
	exitError   = 1
	exitInvalid = 2
)

const progressInterval = time.Second

// env holds what run takes from the process, so tests can replace it.
type env struct {
	stdout    io.Writer
	stderr    io.Writer
	getenv    func(string) string
	deliverer func(logger *slog.Logger) dispatch.Deliverer
	clock     dispatch.Clock
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	os.Exit(run(ctx, os.Args[1:], env{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		deliverer: func(logger *slog.Logger) dispatch.Deliverer {
			return mailer.New(mailer.WithLogger(logger))
		},
	}))
}

func run(ctx context.Context, args []string, e env) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(e.stderr)

	var (
		jobPath string
		pace    time.Duration
		wait    bool
		debug   bool
		flagReq model.JobRequest
	)
	fs.StringVar(&jobPath, "job", "", "YAML job file")
	fs.StringVar(&flagReq.Sender, "sender", "", "Sender address")
	fs.StringVar(&flagReq.Subject, "subject", "", "Subject line")
	fs.StringVar(&flagReq.Body, "body", "", "Plain-text body, or @file to read it from a file")
	fs.StringVar(&flagReq.Attachment, "attachment", "", "Path of a file to attach")
	fs.StringVar(&flagReq.RecipientsFile, "recipients", "", "Recipient spreadsheet (.xlsx or .csv)")
	fs.StringVar(&flagReq.DailyLimit, "limit", "", "Daily limit")
	fs.StringVar(&flagReq.SendTime, "at", "", "Send time, HH:mm")
	fs.DurationVar(&pace, "pace", dispatch.DefaultPace, "Pause after each successful send")
	fs.BoolVar(&wait, "wait", false, "Wait for the send time before starting the pass")
	fs.BoolVar(&debug, "debug", false, "Debug logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitInvalid
	}

	logger := app.NewLogger(e.stderr, debug)

	var req model.JobRequest
	if jobPath != "" {
		var err error
		if req, err = jobfile.Load(jobPath); err != nil {
			logger.Error("failed to load job file", "err", err)
			return exitInvalid
		}
	}

	// flags given on the command line win over the job file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sender":
			req.Sender = flagReq.Sender
		case "subject":
			req.Subject = flagReq.Subject
		case "body":
			req.Body = flagReq.Body
		case "attachment":
			req.Attachment = flagReq.Attachment
		case "recipients":
			req.RecipientsFile = flagReq.RecipientsFile
		case "limit":
			req.DailyLimit = flagReq.DailyLimit
		case "at":
			req.SendTime = flagReq.SendTime
		}
	})

	if strings.HasPrefix(req.Body, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(req.Body, "@"))
		if err != nil {
			logger.Error("failed to read body file", "err", err)
			return exitInvalid
		}
		req.Body = string(data)
	}

	if req.Secret == "" {
		req.Secret = e.getenv("DAILYSEND_SECRET")
	}

	if err := req.Validate(); err != nil {
		fmt.Fprintf(e.stderr, "invalid job: %v\n", err)
		return exitInvalid
	}

	list, err := recipients.Load(req.RecipientsFile)
	if err != nil {
		fmt.Fprintf(e.stderr, "%v\n", err)
		return exitInvalid
	}

	job, err := req.Job(list)
	if err != nil {
		fmt.Fprintf(e.stderr, "invalid job: %v\n", err)
		return exitInvalid
	}

	loop := dispatch.NewLoop(e.deliverer(logger)).
		WithPace(pace).
		WithLogger(logger)
	now := time.Now
	if e.clock != nil {
		loop = loop.WithClock(e.clock)
		now = e.clock.Now
	}

	if wait {
		d := untilSendTime(now(), job.TargetTime)
		fmt.Fprintf(e.stdout, "waiting %s for %s\n", d.Round(time.Second), job.TargetTime)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return exitError
		}
	}

	fmt.Fprintf(e.stdout, "sending to %d recipients, at most %d\n", len(job.Recipients), job.DailyLimit)

	pass := dispatch.Start(ctx, loop, job)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return printProgress(gctx, e.stdout, pass)
	})
	g.Go(func() error {
		_, err := pass.Wait(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("pass interrupted", "err", err)
	}

	// the pass stops between recipients once ctx is done
	<-pass.Done()
	result, _ := pass.Result()
	fmt.Fprintln(e.stdout, result.Summary())
	return exitOK
}

// printProgress prints the sent count whenever it changes, at most once per
// progress interval, until the pass ends.
func printProgress(ctx context.Context, w io.Writer, pass *dispatch.Pass) error {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	last := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pass.Done():
			return nil
		case <-ticker.C:
			if sent := pass.Sent(); sent != last {
				last = sent
				fmt.Fprintf(w, "progress: %d/%d\n", sent, pass.Limit())
			}
		}
	}
}

// untilSendTime returns how long from now until the clock next reads t.
// It is zero during the matching minute.
func untilSendTime(now time.Time, t model.TimeOfDay) time.Duration {
	if t.Matches(now) {
		return 0
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
