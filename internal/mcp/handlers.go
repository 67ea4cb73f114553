package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/inkpad/internal/assistant"
	"github.com/kuitang/inkpad/internal/conversation"
	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/notes"
	"github.com/kuitang/inkpad/internal/obs"
	"github.com/kuitang/inkpad/internal/render"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const listPreviewLines = 2

// Workspace is the subset of workspace.Workspace the tools drive.
type Workspace interface {
	CreateNote(ctx context.Context) (notes.Note, error)
	UpdateNoteIfUnchanged(ctx context.Context, id string, params notes.UpdateParams, priorHash string) (notes.Note, error)
	DeleteNote(ctx context.Context, id string) error
	SelectNote(id string) error
	ClearSelection()
	ActiveNote() (notes.Note, bool)
	Note(id string) (notes.Note, bool)
	ListNotes(search string) []notes.Note
	Thread(noteID string) []conversation.Message
	Send(ctx context.Context, noteID, text string) (assistant.Turn, error)
}

// Handler implements MCP tool call handling.
type Handler struct {
	ws Workspace
}

// NewHandler creates a handler. A nil workspace makes every tool fail with
// failed_precondition.
func NewHandler(ws Workspace) *Handler {
	return &Handler{ws: ws}
}

// toolErrorPayload is the JSON body of an IsError tool result.
type toolErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// createToolHandler returns a tool handler function for the given tool name.
// Coded errors become IsError results; the transport error stays nil.
func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		result, err := h.HandleToolCall(ctx, name, args)
		logger := obs.From(ctx).With("pkg", "mcp", "tool", name)
		durMS := float64(time.Since(start).Microseconds()) / 1000.0
		if err != nil {
			logger.Warn("mcp_tool_failed", "code", string(errs.CodeOf(err)), "error", err.Error(), "dur_ms", durMS)
			return newToolResultError(err), nil, nil
		}
		logger.Debug("mcp_tool_ok", "dur_ms", durMS)
		return result, nil, nil
	}
}

// HandleToolCall routes tool calls to appropriate handlers.
func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	if !isKnownTool(name) {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("unknown tool: %s", name))
	}
	if h.ws == nil {
		return nil, errs.New(errs.FailedPrecondition, "notes tools are unavailable: no workspace is open")
	}
	switch name {
	case "note_list":
		return h.handleNoteList(arguments)
	case "note_view":
		return h.handleNoteView(arguments)
	case "note_create":
		return h.handleNoteCreate(ctx, arguments)
	case "note_update":
		return h.handleNoteUpdate(ctx, arguments)
	case "note_delete":
		return h.handleNoteDelete(ctx, arguments)
	case "note_select":
		return h.handleNoteSelect(arguments)
	case "chat_send":
		return h.handleChatSend(ctx, arguments)
	default:
		return h.handleChatThread(arguments)
	}
}

// newToolResultText creates a successful tool result with text content.
func newToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// newToolResultError creates a tool result carrying {code, message}.
func newToolResultError(err error) *mcp.CallToolResult {
	payload := toolErrorPayload{
		Code:    string(errs.CodeOf(err)),
		Message: errs.MessageOf(err),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: marshalToolJSON(payload)},
		},
		IsError: true,
	}
}

// marshalAny returns indented JSON, or nil when value cannot be encoded.
func marshalAny(value any) []byte {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil
	}
	return data
}

func marshalToolJSON(value any) string {
	data := marshalAny(value)
	if data == nil {
		return `{"code":"internal","message":"failed to marshal response"}`
	}
	return string(data)
}

// decodeToolArgs decodes tool arguments into dst, rejecting unknown fields
// and mistyped values.
func decodeToolArgs(args map[string]any, dst any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "arguments must be a JSON object", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid arguments: %v", err), err)
	}
	return nil
}

func requireID(id, field string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errs.New(errs.InvalidArgument, field+" is required")
	}
	return id, nil
}

// resolveNoteID falls back to the active note when id is empty.
func (h *Handler) resolveNoteID(id string) (string, error) {
	if id = strings.TrimSpace(id); id != "" {
		return id, nil
	}
	active, ok := h.ws.ActiveNote()
	if !ok {
		return "", errs.New(errs.FailedPrecondition, "no note selected; pass note_id or call note_select first")
	}
	return active.ID, nil
}

type noteListItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	TotalLines   int       `json:"total_lines"`
	LastModified time.Time `json:"last_modified"`
	RevisionHash string    `json:"revision_hash"`
	Active       bool      `json:"active,omitempty"`
}

type noteResult struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content,omitempty"`
	TotalLines   int       `json:"total_lines"`
	LastModified time.Time `json:"last_modified"`
	RevisionHash string    `json:"revision_hash"`
}

func toNoteResult(n notes.Note, withContent bool) noteResult {
	r := noteResult{
		ID:           n.ID,
		Title:        n.Title,
		TotalLines:   notes.CountLines(n.Content),
		LastModified: n.LastModified,
		RevisionHash: n.Revision(),
	}
	if withContent {
		r.Content = n.Content
	}
	return r
}

func (h *Handler) handleNoteList(args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		Search string `json:"search"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	list := h.ws.ListNotes(in.Search)
	activeID := ""
	if active, ok := h.ws.ActiveNote(); ok {
		activeID = active.ID
	}
	items := make([]noteListItem, 0, len(list))
	for _, n := range list {
		items = append(items, noteListItem{
			ID:           n.ID,
			Title:        n.Title,
			Preview:      notes.Snippet(n, listPreviewLines),
			TotalLines:   notes.CountLines(n.Content),
			LastModified: n.LastModified,
			RevisionHash: n.Revision(),
			Active:       n.ID == activeID,
		})
	}

	response := struct {
		Notes      []noteListItem `json:"notes"`
		TotalCount int            `json:"total_count"`
	}{
		Notes:      items,
		TotalCount: len(items),
	}
	return newToolResultText(marshalToolJSON(response)), nil
}

func (h *Handler) handleNoteView(args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	id, err := requireID(in.ID, "id")
	if err != nil {
		return nil, err
	}
	note, ok := h.ws.Note(id)
	if !ok {
		return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("note not found: %s", id), notes.ErrUnknownNote)
	}
	return newToolResultText(marshalToolJSON(toNoteResult(note, true))), nil
}

func (h *Handler) handleNoteCreate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
		Select  bool    `json:"select"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}

	note, err := h.ws.CreateNote(ctx)
	if err != nil {
		return nil, err
	}
	params := notes.UpdateParams{Title: in.Title, Content: in.Content}
	if !params.IsEmpty() {
		note, err = h.ws.UpdateNoteIfUnchanged(ctx, note.ID, params, "")
		if err != nil {
			return nil, err
		}
	}
	if in.Select {
		if err := h.ws.SelectNote(note.ID); err != nil {
			return nil, err
		}
	}
	return newToolResultText(marshalToolJSON(toNoteResult(note, false))), nil
}

func (h *Handler) handleNoteUpdate(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		ID        string  `json:"id"`
		Title     *string `json:"title"`
		Content   *string `json:"content"`
		PriorHash string  `json:"prior_hash"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	id, err := requireID(in.ID, "id")
	if err != nil {
		return nil, err
	}

	note, err := h.ws.UpdateNoteIfUnchanged(ctx, id, notes.UpdateParams{Title: in.Title, Content: in.Content}, in.PriorHash)
	if err != nil {
		return nil, err
	}
	return newToolResultText(marshalToolJSON(toNoteResult(note, false))), nil
}

func (h *Handler) handleNoteDelete(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	id, err := requireID(in.ID, "id")
	if err != nil {
		return nil, err
	}
	if err := h.ws.DeleteNote(ctx, id); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Note %s deleted along with its conversation.", id)
	if active, ok := h.ws.ActiveNote(); ok {
		msg += fmt.Sprintf(" Active note is now %s.", active.ID)
	}
	return newToolResultText(msg), nil
}

func (h *Handler) handleNoteSelect(args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		h.ws.ClearSelection()
		return newToolResultText("Selection cleared."), nil
	}
	if err := h.ws.SelectNote(id); err != nil {
		return nil, err
	}
	note, _ := h.ws.Note(id)
	return newToolResultText(marshalToolJSON(toNoteResult(note, false))), nil
}

type messageResult struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

func toMessageResults(thread []conversation.Message) []messageResult {
	out := make([]messageResult, 0, len(thread))
	for _, m := range thread {
		out = append(out, messageResult{
			ID:      m.ID,
			Role:    string(m.Role),
			Content: m.Content,
			Status:  string(m.Status),
		})
	}
	return out
}

func (h *Handler) handleChatSend(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		NoteID  string `json:"note_id"`
		Message string `json:"message"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	noteID, err := h.resolveNoteID(in.NoteID)
	if err != nil {
		return nil, err
	}

	turn, err := h.ws.Send(ctx, noteID, in.Message)
	if err != nil {
		return nil, err
	}
	response := struct {
		TurnID  string        `json:"turn_id"`
		NoteID  string        `json:"note_id"`
		State   string        `json:"state"`
		Reply   messageResult `json:"reply"`
		Dropped bool          `json:"dropped,omitempty"`
	}{
		TurnID:  turn.ID,
		NoteID:  turn.NoteID,
		State:   turn.State.String(),
		Reply:   toMessageResults([]conversation.Message{turn.Reply})[0],
		Dropped: turn.Dropped,
	}
	return newToolResultText(marshalToolJSON(response)), nil
}

func (h *Handler) handleChatThread(args map[string]any) (*mcp.CallToolResult, error) {
	var in struct {
		NoteID string `json:"note_id"`
		HTML   bool   `json:"html"`
	}
	if err := decodeToolArgs(args, &in); err != nil {
		return nil, err
	}
	noteID, err := h.resolveNoteID(in.NoteID)
	if err != nil {
		return nil, err
	}
	if _, ok := h.ws.Note(noteID); !ok {
		return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("note not found: %s", noteID), notes.ErrUnknownNote)
	}

	thread := h.ws.Thread(noteID)
	response := struct {
		NoteID   string          `json:"note_id"`
		Messages []messageResult `json:"messages"`
		HTML     string          `json:"html,omitempty"`
	}{
		NoteID:   noteID,
		Messages: toMessageResults(thread),
	}
	if in.HTML {
		response.HTML = render.ThreadHTML(thread)
	}
	return newToolResultText(marshalToolJSON(response)), nil
}
