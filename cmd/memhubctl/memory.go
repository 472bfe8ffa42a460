package main

import (
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

func newMemoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Push, list and retrieve memory entries",
	}

	cmd.AddCommand(newMemoryAddCommand())
	cmd.AddCommand(newMemoryListCommand())
	cmd.AddCommand(newMemoryRetrieveCommand())
	return cmd
}

func newMemoryAddCommand() *cobra.Command {
	var (
		id             string
		projectID      string
		featureScope   string
		taskType       string
		agentID        string
		lessonCategory string
		content        string
		sourceRefs     []string
		labels         []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Push a memory entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"projectId":      projectID,
				"featureScope":   featureScope,
				"taskType":       taskType,
				"agentId":        agentID,
				"lessonCategory": lessonCategory,
				"content":        content,
				"sourceRefs":     sourceRefs,
			}
			if id != "" {
				payload["id"] = id
			}
			if len(labels) > 0 {
				payload["labels"] = labels
			}

			body, err := newClient().post("/api/memory", payload)
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Entry id (generated when empty)")
	cmd.Flags().StringVar(&projectID, "project", "", "Project scope")
	cmd.Flags().StringVar(&featureScope, "feature", "", "Feature scope")
	cmd.Flags().StringVar(&taskType, "task", "dev", "Task type: dev, design, qa, pm, other")
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	cmd.Flags().StringVar(&lessonCategory, "category", "", "Lesson category: success, error, decision, constraint")
	cmd.Flags().StringVar(&content, "content", "", "Lesson content")
	cmd.Flags().StringSliceVar(&sourceRefs, "ref", nil, "Source reference (repeatable)")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "Label (repeatable)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("feature")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("content")
	cmd.MarkFlagRequired("ref")
	return cmd
}

func newMemoryListCommand() *cobra.Command {
	var (
		projectID      string
		featureScope   string
		taskType       string
		agentID        string
		lessonCategory string
		label          string
		search         string
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memory entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := url.Values{}
			params.Set("projectId", projectID)
			if featureScope != "" {
				params.Set("featureScope", featureScope)
			}
			if taskType != "" {
				params.Set("taskType", taskType)
			}
			if agentID != "" {
				params.Set("agentId", agentID)
			}
			if lessonCategory != "" {
				params.Set("lessonCategory", lessonCategory)
			}
			if label != "" {
				params.Set("label", label)
			}
			if search != "" {
				params.Set("searchQuery", search)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}

			body, err := newClient().get("/api/memory", params)
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project scope, or all for cross-project")
	cmd.Flags().StringVar(&featureScope, "feature", "", "Filter by feature scope")
	cmd.Flags().StringVar(&taskType, "task", "", "Filter by task type")
	cmd.Flags().StringVar(&agentID, "agent", "", "Filter by agent id")
	cmd.Flags().StringVar(&lessonCategory, "category", "", "Filter by lesson category")
	cmd.Flags().StringVar(&label, "label", "", "Filter by label")
	cmd.Flags().StringVar(&search, "search", "", "Substring search over lesson text")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to return")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newMemoryRetrieveCommand() *cobra.Command {
	var (
		projectID    string
		featureScope string
		taskType     string
		priority     string
		labels       []string
		search       string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve ranked memory for a work context",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"projectId": projectID,
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

			body, err := newClient().post("/api/memory/retrieve", payload)
			if err != nil {
				return err
			}
			printJSON(body)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project scope, or all for cross-project")
	cmd.Flags().StringVar(&featureScope, "feature", "", "Feature scope signal")
	cmd.Flags().StringVar(&taskType, "task", "", "Task type signal")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority signal: P0, P1, P2, P3")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "Label signal (repeatable)")
	cmd.Flags().StringVar(&search, "search", "", "Search query signal")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to return")
	cmd.MarkFlagRequired("project")
	return cmd
}
