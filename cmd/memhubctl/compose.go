package main

import (
	"net/url"

	"github.com/spf13/cobra"
)

func newComposeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose memory-informed tickets, handoffs and prompts",
	}

	cmd.AddCommand(newComposeArtifactCommand("ticket", "Compose a ticket spec with injected lessons", "/api/compose/ticket"))
	cmd.AddCommand(newComposeArtifactCommand("handoff", "Compose a handoff document with injected lessons", "/api/compose/handoff"))
	cmd.AddCommand(newComposeArtifactCommand("reference-prompt", "Compose a reference prompt with injected lessons", "/api/compose/reference-prompt"))
	return cmd
}

func newComposeArtifactCommand(kind, short, path string) *cobra.Command {
	var (
		projectID    string
		ticketID     string
		title        string
		summary      string
		featureScope string
		taskType     string
		priority     string
		labels       []string
		search       string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   kind,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"projectId": projectID,
			}
			if ticketID != "" {
				payload["ticketId"] = ticketID
			}
			if title != "" {
				payload["title"] = title
			}
			if summary != "" {
				payload["summary"] = summary
			}
			if featureScope != "" {
				payload["featureScope"] = featureScope
			}
			if taskType != "" {
				payload["taskType"] = taskType
			}
			if priority != "" {
				payload["priority"] = priority
			}
			if len(labels) > 0 {
				payload["labels"] = labels
			}
			if search != "" {
				payload["searchQuery"] = search
			}
			if limit > 0 {
				payload["limit"] = limit
			}

			body, err := newClient().post(path, payload)
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project scope")
	cmd.Flags().StringVar(&ticketID, "ticket", "", "Ticket id")
	cmd.Flags().StringVar(&title, "title", "", "Artifact title")
	cmd.Flags().StringVar(&summary, "summary", "", "Work summary")
	cmd.Flags().StringVar(&featureScope, "feature", "", "Feature scope signal")
	cmd.Flags().StringVar(&taskType, "task", "", "Task type signal")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority signal")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "Label signal (repeatable)")
	cmd.Flags().StringVar(&search, "search", "", "Search query signal")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum lessons to inject")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newInsightsCommand() *cobra.Command {
	var (
		projectID    string
		featureScope string
		taskType     string
	)

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Aggregate stored lessons into recurring themes",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			params.Set("projectId", projectID)
			if featureScope != "" {
				params.Set("featureScope", featureScope)
			}
			if taskType != "" {
				params.Set("taskType", taskType)
			}

			body, err := newClient().get("/api/insights", params)
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project scope")
	cmd.Flags().StringVar(&featureScope, "feature", "", "Filter by feature scope")
	cmd.Flags().StringVar(&taskType, "task", "", "Filter by task type")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newProjectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List registered project scopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := newClient().get("/api/projects", nil)
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}
}
