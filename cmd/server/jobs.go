package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/service"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage generation jobs",
	}
	cmd.AddCommand(jobsListCmd(), jobsCreateCmd(), jobsLogsCmd(), jobsRetryCmd(), jobsDeleteCmd(), followCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobs(cmd.Context(), func(svc *service.JobService) error {
				jobs, err := svc.List(cmd.Context(), domain.ListFilter{Status: domain.JobStatus(status), Limit: limit})
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(jobs))
				for _, j := range jobs {
					at := j.ScheduledAt
					rows = append(rows, []string{
						j.ID, string(j.Type), truncate(j.Subject, 40), statusText(j.Status),
						fmt.Sprint(j.Priority), formatTime(&at), outcome(j.ResultURL, j.ResultMsg, j.ErrorMessage),
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"ID", "TYPE", "SUBJECT", "STATUS", "PRI", "SCHEDULED", "OUTCOME"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs")
	return cmd
}

func jobsCreateCmd() *cobra.Command {
	var (
		in       service.CreateJobInput
		typ      string
		payload  string
		schedule string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Type = domain.JobType(typ)
			if payload != "" {
				in.Payload = json.RawMessage(payload)
			}
			if schedule != "" {
				at, err := time.Parse(time.RFC3339, schedule)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				in.ScheduledAt = &at
			}
			return withJobs(cmd.Context(), func(svc *service.JobService) error {
				job, err := svc.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s job %s\n", job.Type, job.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(domain.JobTypeBlogPost), "job type (BLOG_POST, GENERATE_TOPIC)")
	cmd.Flags().StringVar(&in.Subject, "subject", "", "subject, used as the keyword when the payload has none")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON object passed to the processor")
	cmd.Flags().IntVar(&in.Priority, "priority", 0, "higher runs first")
	cmd.Flags().StringVar(&schedule, "at", "", "RFC3339 time to run at (default now)")
	return cmd
}

func jobsLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <id>",
		Short: "Show the log trail of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd.Context(), func(svc *service.JobService) error {
				entries, err := svc.Logs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printLogs(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
}

func jobsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a failed job to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd.Context(), func(svc *service.JobService) error {
				if err := svc.Retry(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %s is pending again\n", args[0])
				return nil
			})
		},
	}
}

func jobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job and its logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobs(cmd.Context(), func(svc *service.JobService) error {
				if err := svc.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted job %s\n", args[0])
				return nil
			})
		},
	}
}

// followCmd streams live log entries of a job or post from the Redis feed.
func followCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "follow <id>",
		Short: "Stream live progress of a running job or post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			past, err := a.logs.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range past {
				fmt.Fprintf(out, "%s  %-5s  %s\n", e.CreatedAt.Local().Format(time.TimeOnly), levelText(e.Level), e.Message)
			}
			if status.Terminal() {
				fmt.Fprintf(out, "%s is %s\n", args[0], statusText(status))
				return nil
			}
			if a.feed == nil {
				return fmt.Errorf("REDIS_URL is not configured")
			}
			return a.feed.Follow(cmd.Context(), args[0], func(e domain.LogEntry) {
				fmt.Fprintf(out, "%s  %-5s  %s\n", e.CreatedAt.Local().Format(time.TimeOnly), levelText(e.Level), e.Message)
			})
		},
	}
}

// status looks id up as a job first, then as a post job.
func (a *app) status(ctx context.Context, id string) (domain.JobStatus, error) {
	job, err := a.jobs.Get(ctx, id)
	if err == nil {
		return job.Status, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	post, err := a.posts.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return post.Status, nil
}

func withJobs(ctx context.Context, fn func(*service.JobService) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(service.NewJobService(a.jobs, a.logs))
}
