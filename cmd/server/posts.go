package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sumire/autopost/internal/domain"
	"github.com/sumire/autopost/internal/importer"
	"github.com/sumire/autopost/internal/service"
)

func postsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Inspect and manage forum post jobs",
	}
	cmd.AddCommand(postsListCmd(), postsImportCmd(), postsLogsCmd(), postsRetryCmd(), postsDeleteCmd())
	return cmd
}

func postsListCmd() *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List post jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPosts(cmd.Context(), func(svc *service.PostService, _ *app) error {
				posts, err := svc.List(cmd.Context(), domain.ListFilter{Status: domain.JobStatus(status), Limit: limit})
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(posts))
				for _, p := range posts {
					at := p.ScheduledAt
					rows = append(rows, []string{
						p.ID, p.Destination, truncate(p.Title, 40), statusText(p.Status),
						fmt.Sprint(p.Priority), formatTime(&at), outcome(p.ResultURL, p.ResultMsg, p.ErrorMessage),
					})
				}
				renderTable(cmd.OutOrStdout(), []string{"ID", "DEST", "TITLE", "STATUS", "PRI", "SCHEDULED", "OUTCOME"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of posts")
	return cmd
}

func postsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Schedule every valid row of a workbook as a post job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPosts(cmd.Context(), func(svc *service.PostService, a *app) error {
				im := importer.New(svc, a.cfg.ImportLocation, slog.Default())
				report, err := im.ImportFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "imported %d posts\n", len(report.Created))
				if len(report.Errors) > 0 {
					rows := make([][]string, 0, len(report.Errors))
					for _, re := range report.Errors {
						rows = append(rows, []string{fmt.Sprint(re.Row), re.Message})
					}
					renderTable(out, []string{"ROW", "ERROR"}, rows)
				}
				return nil
			})
		},
	}
}

func postsLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <id>",
		Short: "Show the log trail of a post job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPosts(cmd.Context(), func(svc *service.PostService, _ *app) error {
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

func postsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a failed post job to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPosts(cmd.Context(), func(svc *service.PostService, _ *app) error {
				if err := svc.Retry(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "post %s is pending again\n", args[0])
				return nil
			})
		},
	}
}

func postsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a post job and its logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPosts(cmd.Context(), func(svc *service.PostService, _ *app) error {
				if err := svc.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted post %s\n", args[0])
				return nil
			})
		},
	}
}

// withPosts builds a PostService without a queue; commands here never poll.
func withPosts(ctx context.Context, fn func(*service.PostService, *app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	svc := service.NewPostService(a.posts, a.logs, nil, service.PostServiceConfig{Headless: a.cfg.BrowserHeadless}, slog.Default())
	return fn(svc, a)
}
