package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/zeptools/gw-certs/jobs"
	"github.com/zeptools/gw-certs/uds"
)

// Admin is the operator surface of orchestrator.Orchestrator
type Admin interface {
	Progress(ctx context.Context, jobID string) (jobs.Progress, error)
	Requeue(ctx context.Context, jobID string) (int, error)
	Reconcile(ctx context.Context) (int, error)
	MarkFailed(ctx context.Context, jobID string, cause string) error
}

// AdminCommands are the unix socket commands for operators
func AdminCommands(a Admin) map[string]uds.CmdHnd {
	return map[string]uds.CmdHnd{
		"job": {
			Desc:  "print job progress",
			Usage: "job <job_id>",
			Fn: func(ctx context.Context, args []string, w io.Writer) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: job <job_id>")
				}
				p, err := a.Progress(ctx, args[0])
				if err != nil {
					return err
				}
				if err = json.MarshalWrite(w, p, jsontext.WithIndent("  ")); err != nil {
					return err
				}
				_, err = fmt.Fprintln(w)
				return err
			},
		},
		"requeue": {
			Desc:  "enqueue the missing tasks of a job now",
			Usage: "requeue <job_id>",
			Fn: func(ctx context.Context, args []string, w io.Writer) error {
				if len(args) != 1 {
					return fmt.Errorf("usage: requeue <job_id>")
				}
				n, err := a.Requeue(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "%d tasks enqueued\n", n)
				return err
			},
		},
		"reconcile": {
			Desc:  "run the stalled job sweep",
			Usage: "reconcile",
			Fn: func(ctx context.Context, args []string, w io.Writer) error {
				n, err := a.Reconcile(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "%d tasks enqueued\n", n)
				return err
			},
		},
		"fail": {
			Desc:  "mark a job failed",
			Usage: "fail <job_id> <cause...>",
			Fn: func(ctx context.Context, args []string, w io.Writer) error {
				if len(args) < 2 {
					return fmt.Errorf("usage: fail <job_id> <cause...>")
				}
				if err := a.MarkFailed(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
					return err
				}
				_, err := fmt.Fprintf(w, "job %s failed\n", args[0])
				return err
			},
		},
	}
}
