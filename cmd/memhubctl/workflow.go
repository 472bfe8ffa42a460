package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Record ticket completions and inspect the audit trail",
	}

	cmd.AddCommand(newWorkflowFinishCommand())
	cmd.AddCommand(newWorkflowAuditCommand())
	return cmd
}

func newWorkflowFinishCommand() *cobra.Command {
	var (
		projectID      string
		ticketID       string
		fromStatus     string
		toStatus       string
		agentID        string
		featureScope   string
		taskType       string
		lessonCategory string
		content        string
		sourceRefs     []string
		labels         []string
	)

	cmd := &cobra.Command{
		Use:   "finish",
		Short: "Finish a ticket and push its lesson in one call",
		RunE: func(cmd *cobra.Command, args []string) error {
			memoryPayload := map[string]interface{}{
				"featureScope":   featureScope,
				"taskType":       taskType,
				"lessonCategory": lessonCategory,
				"content":        content,
				"sourceRefs":     sourceRefs,
			}
			if len(labels) > 0 {
				memoryPayload["labels"] = labels
			}

			body, err := newClient().post("/api/workflow/ticket-finish", map[string]interface{}{
				"projectId":  projectID,
				"ticketId":   ticketID,
				"fromStatus": fromStatus,
				"toStatus":   toStatus,
				"agentId":    agentID,
				"memory":     memoryPayload,
			})
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project scope")
	cmd.Flags().StringVar(&ticketID, "ticket", "", "Ticket id")
	cmd.Flags().StringVar(&fromStatus, "from", "in-progress", "Status the ticket left")
	cmd.Flags().StringVar(&toStatus, "to", "done", "Status the ticket entered: in-review or done")
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	cmd.Flags().StringVar(&featureScope, "feature", "", "Feature scope of the lesson")
	cmd.Flags().StringVar(&taskType, "task", "dev", "Task type of the lesson")
	cmd.Flags().StringVar(&lessonCategory, "category", "", "Lesson category")
	cmd.Flags().StringVar(&content, "content", "", "Lesson content")
	cmd.Flags().StringSliceVar(&sourceRefs, "ref", nil, "Source reference (repeatable)")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "Label (repeatable)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("ticket")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("feature")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("content")
	return cmd
}

func newWorkflowAuditCommand() *cobra.Command {
	var (
		projectID string
		ticketID  string
		agentID   string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded ticket transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			params.Set("projectId", projectID)
			if ticketID != "" {
				params.Set("ticketId", ticketID)
			}
			if agentID != "" {
				params.Set("agentId", agentID)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}

			body, err := newClient().get("/api/workflow/audit", params)
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project scope")
	cmd.Flags().StringVar(&ticketID, "ticket", "", "Filter by ticket id")
	cmd.Flags().StringVar(&agentID, "agent", "", "Filter by agent id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum audits to return")
	cmd.MarkFlagRequired("project")
	return cmd
}
