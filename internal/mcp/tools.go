package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

func isKnownTool(name string) bool {
	for _, tool := range ToolDefinitions() {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

// ToolDefinitions returns the note and chat tool definitions.
func ToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        "note_list",
			Description: "Notes tool. List notes with title, a short plain-text preview (first 2 lines), total line count, and revision_hash, most recently modified first. Pass 'search' to keep only notes whose title contains it (case-insensitive). The active note is marked with active=true.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"search": stringProp("Optional case-insensitive title filter"),
				},
			},
		},
		{
			Name:        "note_view",
			Description: "Notes tool. Read a note's full content. The response includes revision_hash; pass it as prior_hash to note_update to avoid overwriting edits made since you read the note.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": stringProp("The unique identifier of the note to read"),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "note_create",
			Description: "Notes tool. Create a note. Title defaults to \"Untitled Note\" and content to empty. Set 'select' to make it the active note. Returns the assigned ID and revision_hash (not the content).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   stringProp("Optional title"),
					"content": stringProp("Optional content"),
					"select":  boolProp("Make the new note active (default false)"),
				},
			},
		},
		{
			Name:        "note_update",
			Description: "Notes tool. Replace a note's title and/or content. Omitted fields are kept. prior_hash is optional: when given, the update fails with failed_precondition if the note changed since you read it. Returns the new revision_hash.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":         stringProp("The unique identifier of the note to update"),
					"title":      stringProp("The new title (optional)"),
					"content":    stringProp("The new content (optional)"),
					"prior_hash": stringProp("Optional revision_hash from note_view or note_list"),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "note_delete",
			Description: "Notes tool. Permanently delete a note and its conversation. If it was the active note, the first remaining note becomes active.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": stringProp("The unique identifier of the note to delete"),
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        "note_select",
			Description: "Notes tool. Make a note the active note. chat_send and chat_thread default to the active note. Omit id to clear the selection.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": stringProp("The note to select; omit to clear"),
				},
			},
		},
		{
			Name:        "chat_send",
			Description: "Chat tool. Send a message to the assistant in a note's conversation and wait for the reply. The last few messages of the thread are sent as context. Defaults to the active note. A failed generation is recorded in the thread as state=failed rather than returned as an error.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"note_id": stringProp("The note whose conversation to use (default: active note)"),
					"message": stringProp("The message text"),
				},
				"required": []string{"message"},
			},
		},
		{
			Name:        "chat_thread",
			Description: "Chat tool. Read a note's conversation in order. Set 'html' to also get a sanitized HTML rendering with assistant Markdown formatted. Defaults to the active note.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"note_id": stringProp("The note whose conversation to read (default: active note)"),
					"html":    boolProp("Include rendered HTML (default false)"),
				},
			},
		},
	}
}
