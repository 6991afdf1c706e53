package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/CrowderSoup/begtask/assistant"
	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
	"github.com/CrowderSoup/begtask/search"
)

// tool is one registered MCP tool.
type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

func tools(d Deps) []tool {
	return []tool{
		&listTool{d},
		&summaryTool{d},
		&askTool{d},
		&searchTool{d},
		&moveTool{d},
	}
}

// intArg extracts a numeric argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// loadBoard returns the snapshot and a rule context for a board.
func loadBoard(ctx context.Context, d Deps, boardID string) (*assistant.Context, error) {
	snapshot, err := d.Boards.Snapshot(ctx, boardID)
	if err != nil {
		return nil, err
	}
	users, err := d.Data.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return assistant.NewContext(snapshot, "", users), nil
}

func boardError(boardID string, err error) *mcp.CallToolResult {
	if errors.Is(err, database.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("board %q not found", boardID))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to load board: %v", err))
}

// --- boards_list ---

type listTool struct{ d Deps }

func (t *listTool) Definition() mcp.Tool {
	return mcp.NewTool("boards_list",
		mcp.WithDescription("List the boards a user owns or works on."),
		mcp.WithString("email",
			mcp.Required(),
			mcp.Description("Email of the user"),
		),
	)
}

func (t *listTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email := strings.TrimSpace(req.GetString("email", ""))
	if email == "" {
		return mcp.NewToolResultError("'email' is required"), nil
	}
	user, err := t.d.Data.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no user with email %q", email)), nil
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	boards, err := t.d.Data.ListBoards(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing boards: %w", err)
	}
	if len(boards) == 0 {
		return mcp.NewToolResultText("No boards."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d board(s):\n", len(boards))
	for _, board := range boards {
		role := "member"
		if board.OwnerID == user.ID {
			role = "owner"
		}
		fmt.Fprintf(&b, "- %s (%s) id=%s\n", board.Title, role, board.ID)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// --- board_summary ---

type summaryTool struct{ d Deps }

func (t *summaryTool) Definition() mcp.Tool {
	return mcp.NewTool("board_summary",
		mcp.WithDescription("Describe a board: its columns in order with their tasks, priorities, due dates and responsible users."),
		mcp.WithString("board_id",
			mcp.Required(),
			mcp.Description("Board id"),
		),
	)
}

func (t *summaryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boardID := req.GetString("board_id", "")
	if boardID == "" {
		return mcp.NewToolResultError("'board_id' is required"), nil
	}
	c, err := loadBoard(ctx, t.d, boardID)
	if err != nil {
		return boardError(boardID, err), nil
	}
	return mcp.NewToolResultText(assistant.DescribeBoard(c)), nil
}

// --- board_ask ---

type askTool struct{ d Deps }

func (t *askTool) Definition() mcp.Tool {
	return mcp.NewTool("board_ask",
		mcp.WithDescription("Ask the board assistant a question in Portuguese, e.g. \"tarefas atrasadas\" or \"quem faz o quê\"."),
		mcp.WithString("board_id",
			mcp.Required(),
			mcp.Description("Board id"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question"),
		),
	)
}

func (t *askTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boardID := req.GetString("board_id", "")
	question := strings.TrimSpace(req.GetString("question", ""))
	if boardID == "" || question == "" {
		return mcp.NewToolResultError("'board_id' and 'question' are required"), nil
	}
	c, err := loadBoard(ctx, t.d, boardID)
	if err != nil {
		return boardError(boardID, err), nil
	}
	return mcp.NewToolResultText(t.d.Assistant.Answer(ctx, question, c).Content), nil
}

// --- board_search ---

type searchTool struct{ d Deps }

func (t *searchTool) Definition() mcp.Tool {
	return mcp.NewTool("board_search",
		mcp.WithDescription("Find the tasks of a board closest in meaning to a query."),
		mcp.WithString("board_id",
			mcp.Required(),
			mcp.Description("Board id"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max results (default: %d, max: %d)", search.DefaultLimit, search.MaxLimit)),
		),
	)
}

func (t *searchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boardID := req.GetString("board_id", "")
	query := strings.TrimSpace(req.GetString("query", ""))
	if boardID == "" || query == "" {
		return mcp.NewToolResultError("'board_id' and 'query' are required"), nil
	}
	results, err := t.d.Index.Search(ctx, boardID, query, intArg(req, "limit", search.DefaultLimit))
	if err != nil {
		if errors.Is(err, search.ErrNotConfigured) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No matching tasks. Run `begtask reindex` if the board was never indexed."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d task(s):\n", len(results))
	for i, r := range results {
		title, _, _ := strings.Cut(r.Content, "\n")
		fmt.Fprintf(&b, "[%d] %.3f %s (id=%s)\n", i+1, r.Score, title, r.TaskID)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// --- task_move ---

type moveTool struct{ d Deps }

func (t *moveTool) Definition() mcp.Tool {
	return mcp.NewTool("task_move",
		mcp.WithDescription("Move a task to a column and position. Positions of the other tasks are renumbered."),
		mcp.WithString("board_id",
			mcp.Required(),
			mcp.Description("Board id"),
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to move"),
		),
		mcp.WithString("column_id",
			mcp.Description("Destination column; defaults to the task's current column"),
		),
		mcp.WithNumber("index",
			mcp.Description("Destination position, 0 is the top; past the end appends (default: append)"),
		),
	)
}

func (t *moveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boardID := req.GetString("board_id", "")
	taskID := req.GetString("task_id", "")
	if boardID == "" || taskID == "" {
		return mcp.NewToolResultError("'board_id' and 'task_id' are required"), nil
	}
	snapshot, err := t.d.Boards.Snapshot(ctx, boardID)
	if err != nil {
		return boardError(boardID, err), nil
	}

	source, ok := locate(snapshot, taskID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task %q is not on board %q", taskID, boardID)), nil
	}
	dest := kanban.Location{
		ContainerID: req.GetString("column_id", source.ContainerID),
		Index:       intArg(req, "index", len(snapshot.Tasks)),
	}

	res, err := t.d.Boards.Apply(ctx, boardID, kanban.Gesture{Type: kanban.ItemTask, Source: source, Destination: &dest})
	if err != nil {
		var perr *kanban.PersistError
		if errors.As(err, &perr) {
			return mcp.NewToolResultError(fmt.Sprintf("move failed after %d of %d writes, board reloaded: %v",
				perr.Applied, perr.Total, perr.Err)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Noop {
		return mcp.NewToolResultText("Task already there."), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task moved (%d position update(s)).", res.Writes)), nil
}

// locate finds a task's column and index within it.
func locate(data *database.KanbanData, taskID string) (kanban.Location, bool) {
	var columnID string
	for _, task := range data.Tasks {
		if task.ID == taskID {
			columnID = task.ColumnID
		}
	}
	if columnID == "" {
		return kanban.Location{}, false
	}
	index := 0
	for _, task := range data.Tasks {
		if task.ColumnID != columnID {
			continue
		}
		if task.ID == taskID {
			return kanban.Location{ContainerID: columnID, Index: index}, true
		}
		index++
	}
	return kanban.Location{}, false
}
