package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avanlaar/glimmer/internal/models"
)

var jobsUser string

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect image render jobs",
	Long: `List a user's render jobs or inspect a specific job by ID.

Examples:
  glimmer jobs --user u1      # List all of u1's jobs
  glimmer jobs abc123         # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsUser, "user", "", "user ID (required for listing)")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	if jobsUser == "" {
		return fmt.Errorf("--user is required when listing jobs")
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := dbClient.ListImageJobs(ctx, jobsUser)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-38s %-6s %-12s %-6s %s\n", "ID", "RES", "STATUS", "COST", "CREATED")
	for _, job := range jobs {
		fmt.Printf("%-38s %-6s %-12s %-6d %s\n",
			models.MustRecordIDString(job.ID),
			job.Resolution,
			job.Status,
			job.Cost,
			job.CreatedAt.Format("15:04:05"))
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := dbClient.GetImageJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", models.MustRecordIDString(job.ID))
	fmt.Printf("  User: %s\n", models.MustRecordIDString(job.User))
	fmt.Printf("  Prompt: %s\n", job.Prompt)
	fmt.Printf("  Resolution: %s\n", job.Resolution)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Cost: %d\n", job.Cost)
	if job.AssetRef != nil {
		fmt.Printf("  Asset: %s\n", *job.AssetRef)
	}
	if job.Error != nil {
		fmt.Printf("  Error: %s\n", *job.Error)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	return nil
}
