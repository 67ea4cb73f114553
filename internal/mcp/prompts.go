package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const workflowPromptName = "notebook_workflow"

func registerPrompts(mcpServer *mcp.Server) {
	for _, prompt := range PromptDefinitions() {
		mcpServer.AddPrompt(prompt, promptHandler())
	}
}

// PromptDefinitions returns MCP prompt definitions.
func PromptDefinitions() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        workflowPromptName,
			Title:       "Notes and chat workflow",
			Description: promptDescription,
		},
	}
}

const (
	promptDescription = "Brief guidance for editing notes and chatting about them."
	promptText        = "The user keeps notes, each with its own conversation with an assistant. Use note_list to find a note and note_view to read it. Pass the revision_hash you read as prior_hash to note_update so concurrent edits are not lost. Call note_select before chatting, or pass note_id to chat_send and chat_thread. Deleting a note also deletes its conversation."
)

func promptHandler() mcp.PromptHandler {
	return func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return &mcp.GetPromptResult{
			Description: promptDescription,
			Messages: []*mcp.PromptMessage{
				{
					Role:    mcp.Role("user"),
					Content: &mcp.TextContent{Text: promptText},
				},
			},
		}, nil
	}
}
