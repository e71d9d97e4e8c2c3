// matty-mcp exposes a Matrix account as MCP tools over stdio.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mindroom/matty/internal/config"
	"github.com/mindroom/matty/internal/content"
	"github.com/mindroom/matty/internal/domain"
	"github.com/mindroom/matty/internal/handles"
	"github.com/mindroom/matty/internal/transport"
)

var version = "dev"

type listRoomsArgs struct{}

type fetchMessagesArgs struct {
	Room   string `json:"room" jsonschema:"Room ID, alias, or display name"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of messages to return (default: 20)"`
	Thread string `json:"thread,omitempty" jsonschema:"Thread handle (t<N>) to read instead of the main timeline"`
}

type sendMessageArgs struct {
	Room string `json:"room" jsonschema:"Room ID, alias, or display name"`
	Text string `json:"text" jsonschema:"Message text. @mentions of room members are linked automatically."`
}

func main() {
	logger := config.NewLogger()
	defer logger.Close()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "matty-mcp: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := transport.NewMatrixClient(transport.ClientOptions{
		Homeserver: cfg.Homeserver,
		Username:   cfg.Username,
		Password:   cfg.Password,
		SSLVerify:  cfg.SSLVerify,
	})
	if err := client.Login(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "matty-mcp: login: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	dir, err := config.DataDir()
	if err != nil {
		dir = "."
	}
	registry := handles.New(dir, cfg.Homeserver, logger.Scope("handles"))

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "matty",
		Version: version,
	}, nil)
	registerTools(server, client, registry)

	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "matty-mcp: %v\n", err)
		os.Exit(1)
	}
}

func registerTools(server *mcpsdk.Server, t transport.Transport, registry *handles.Registry) {
	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "list_rooms",
		Description: "List the rooms this account has joined, with IDs and member counts.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, _ listRoomsArgs) (*mcpsdk.CallToolResult, any, error) {
		rooms, err := t.Rooms(ctx)
		if err != nil {
			return toolError(err.Error()), nil, nil
		}
		return toolJSON(rooms)
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "fetch_messages",
		Description: "Fetch the latest messages from a room, oldest first. Each message carries a stable m<N> handle; thread roots carry a t<N> handle.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, args fetchMessagesArgs) (*mcpsdk.CallToolResult, any, error) {
		if args.Limit <= 0 {
			args.Limit = 20
		}
		room, ok, err := t.FindRoom(ctx, args.Room)
		if err != nil {
			return toolError(err.Error()), nil, nil
		}
		if !ok {
			return toolError("room not found: " + args.Room), nil, nil
		}

		var msgs []domain.Message
		if args.Thread != "" {
			rootID, ok := registry.ResolveThread(args.Thread)
			if !ok {
				return toolError("unknown thread handle: " + args.Thread), nil, nil
			}
			msgs, err = t.ThreadMessages(ctx, room.ID, rootID, args.Limit)
		} else {
			msgs, err = t.Messages(ctx, room.ID, args.Limit)
		}
		if err != nil {
			return toolError(err.Error()), nil, nil
		}
		for i := range msgs {
			msgs[i].Handle = registry.MessageHandle(room.ID, msgs[i].EventID)
		}
		return toolJSON(msgs)
	})

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "send_message",
		Description: "Send a plain text message to a room.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, args sendMessageArgs) (*mcpsdk.CallToolResult, any, error) {
		if strings.TrimSpace(args.Text) == "" {
			return toolError("message text cannot be empty"), nil, nil
		}
		room, ok, err := t.FindRoom(ctx, args.Room)
		if err != nil {
			return toolError(err.Error()), nil, nil
		}
		if !ok {
			return toolError("room not found: " + args.Room), nil, nil
		}

		var opts content.Options
		if formatted, ids := content.ResolveMentions(args.Text, room.Users); len(ids) > 0 {
			opts.FormattedBody = formatted
			opts.MentionedUserIDs = ids
		}
		eventID, err := t.Send(ctx, room.ID, content.BuildMessage(args.Text, opts))
		if err != nil {
			return toolError(err.Error()), nil, nil
		}
		return toolText("sent " + eventID), nil, nil
	})
}

func toolText(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

func toolError(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err.Error()), nil, nil
	}
	return toolText(string(data)), nil, nil
}
