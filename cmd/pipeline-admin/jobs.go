package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-pipeline/internal/adapters/reconciler"
	"github.com/target/mmk-pipeline/internal/data"
	"github.com/target/mmk-pipeline/internal/domain/model"
	"github.com/target/mmk-pipeline/internal/service"
)

type listJobsOptions struct {
	Status model.JobStatus
	Limit  int
}

func parseListJobsFlags(args []string) (listJobsOptions, error) {
	fs := flag.NewFlagSet("list-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var status string
	opts := listJobsOptions{}
	fs.StringVar(&status, "status", string(model.JobStatusFailed), "Job status: pending, processing, completed or failed")
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum number of jobs to list (1-500)")
	if err := fs.Parse(args); err != nil {
		return listJobsOptions{}, err
	}

	opts.Status = model.JobStatus(status)
	if !opts.Status.Valid() {
		return listJobsOptions{}, fmt.Errorf("--status %q is not a job status", status)
	}
	if opts.Limit < 1 || opts.Limit > 500 {
		return listJobsOptions{}, errors.New("--limit must be between 1 and 500")
	}
	return opts, nil
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobsFlags(args)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		jobs, err := newJobService(cmdCtx, db)
		if err != nil {
			return err
		}
		list, err := jobs.List(ctx, opts.Status, opts.Limit)
		if err != nil {
			return err
		}
		return renderJobs(cmdCtx.Out, list)
	})
}

func runRetryJob(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: pipeline-admin retry-job <job-id>")
	}
	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		jobs, err := newJobService(cmdCtx, db)
		if err != nil {
			return err
		}
		job, err := jobs.Retry(ctx, args[0])
		if err != nil {
			return err
		}
		return writef(cmdCtx.Out, "job %s reset to %s\n", job.ID, job.Status)
	})
}

func newJobService(cmdCtx *commandContext, db *sql.DB) (*service.JobService, error) {
	repo := data.NewJobRepo(db, data.RepoConfig{
		DefaultMaxRetries: cmdCtx.Config.Dispatcher.MaxRetries,
		Logger:            cmdCtx.Logger,
	})
	return service.NewJobService(service.JobServiceOptions{Repo: repo, Admin: repo, Logger: cmdCtx.Logger})
}

func renderJobs(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writef(w, "no jobs found\n")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tTARGET\tTYPE\tSTATUS\tATTEMPTS\tUPDATED\tRESULT\n"); err != nil {
		return err
	}
	for _, j := range jobs {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Target, j.TaskType, j.Status, j.Attempts, j.MaxRetries,
			formatTimestamp(j.UpdatedAt), truncate(string(j.Result), 60),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type dueOptions struct {
	At time.Time
}

func parseDueFlags(args []string, now time.Time) (dueOptions, error) {
	fs := flag.NewFlagSet("list-due-reminders", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var at string
	fs.StringVar(&at, "at", "", "RFC 3339 instant to evaluate (default now)")
	if err := fs.Parse(args); err != nil {
		return dueOptions{}, err
	}
	if at == "" {
		return dueOptions{At: now}, nil
	}
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return dueOptions{}, fmt.Errorf("--at: %w", err)
	}
	return dueOptions{At: ts}, nil
}

func runListDueReminders(cmdCtx *commandContext, args []string) error {
	opts, err := parseDueFlags(args, time.Now())
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		reminders, err := service.NewReminderService(service.ReminderServiceOptions{
			Repo:   data.NewReminderRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}),
			Logger: cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		due, err := reminders.DueAt(ctx, opts.At)
		if err != nil {
			return err
		}
		return renderReminders(cmdCtx.Out, due)
	})
}

func renderReminders(w io.Writer, reminders []*model.Reminder) error {
	if len(reminders) == 0 {
		return writef(w, "no reminders due\n")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tCUSTOMER\tTYPE\tSCHEDULED\tMESSAGE\n"); err != nil {
		return err
	}
	for _, r := range reminders {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CustomerID, r.Type, formatTimestamp(r.ScheduledFor), truncate(r.Message, 60),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runReconcileOnce(cmdCtx *commandContext, _ []string) error {
	return withDatabase(cmdCtx, defaultMigrationTimeout, func(ctx context.Context, db *sql.DB) error {
		runner, err := reconciler.NewRunner(reconciler.RunnerOptions{
			DB:                db,
			Config:            cmdCtx.Config.Reconciler,
			ProcessingTimeout: cmdCtx.Config.Dispatcher.ProcessingTimeout,
			Logger:            cmdCtx.Logger,
		})
		if err != nil {
			return err
		}
		if err := runner.RunOnce(ctx); err != nil {
			return err
		}
		return writef(cmdCtx.Out, "reconcile pass completed\n")
	})
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
