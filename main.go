// matty CLI entry point
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/mindroom/matty/internal/archive"
	"github.com/mindroom/matty/internal/config"
	"github.com/mindroom/matty/internal/content"
	"github.com/mindroom/matty/internal/domain"
	"github.com/mindroom/matty/internal/handles"
	"github.com/mindroom/matty/internal/session"
	"github.com/mindroom/matty/internal/transport"
	"github.com/mindroom/matty/internal/tui"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

const usageText = `matty - a Matrix chat client

usage:
  matty                          start the interactive TUI
  matty rooms [--format f]       list joined rooms
  matty messages <room> [flags]  show a room's latest messages
  matty users <room>             list a room's members
  matty send <room> <text>       send a message
  matty export <room> [flags]    export archived messages (json|csv|xlsx)
  matty search <room> <query>    search archived messages (--all for every room)
  matty qr <room>                print a matrix.to room link as a QR code
  matty version                  print the version

credentials come from MATRIX_USERNAME / MATRIX_PASSWORD (and
MATRIX_HOMESERVER, default https://matrix.org).`

func main() {
	logger := config.NewLogger()
	defer logger.Close()

	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		os.Exit(runCommand(args, logger))
	}

	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Print usage and exit")
	flag.Parse()
	if *versionFlag {
		fmt.Printf("matty %s\n", version)
		return
	}
	if *helpFlag {
		fmt.Println(usageText)
		return
	}

	if err := runTUI(logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand(args []string, logger *config.Logger) int {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version":
		fmt.Printf("matty %s\n", version)
		return 0
	case "help":
		fmt.Println(usageText)
		return 0
	case "rooms":
		return cmdRooms(rest)
	case "messages":
		return cmdMessages(rest, logger)
	case "users":
		return cmdUsers(rest)
	case "send":
		return cmdSend(rest)
	case "export":
		return cmdExport(rest, logger)
	case "search":
		return cmdSearch(rest, logger)
	case "qr":
		return cmdQR(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s\n", cmd, usageText)
		return 2
	}
}

// dial logs in and returns a ready transport. The caller must Close it.
func dial(ctx context.Context, cfg config.Config) (transport.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := transport.NewMatrixClient(transport.ClientOptions{
		Homeserver: cfg.Homeserver,
		Username:   cfg.Username,
		Password:   cfg.Password,
		SSLVerify:  cfg.SSLVerify,
	})
	if err := client.Login(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func findRoom(ctx context.Context, t transport.Transport, query string) (domain.Room, error) {
	room, ok, err := t.FindRoom(ctx, query)
	if err != nil {
		return domain.Room{}, err
	}
	if !ok {
		return domain.Room{}, fmt.Errorf("room not found: %s", query)
	}
	return room, nil
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

func cmdRooms(args []string) int {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	format := fs.String("format", "text", "Output format: text or json")
	fs.Parse(args)

	ctx := context.Background()
	t, err := dial(ctx, config.Load())
	if err != nil {
		return fail(err)
	}
	defer t.Close()

	rooms, err := t.Rooms(ctx)
	if err != nil {
		return fail(err)
	}
	if *format == "json" {
		return printJSON(rooms)
	}
	for _, r := range rooms {
		fmt.Printf("%-40s %s (%d members)\n", r.ID, r.Name, r.MemberCount)
	}
	return 0
}

func cmdMessages(args []string, logger *config.Logger) int {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	format := fs.String("format", "text", "Output format: text, rich, or json")
	limit := fs.Int("limit", config.DefaultHistorySize, "Number of messages to fetch")
	thread := fs.String("thread", "", "Thread handle (t<N>) to read instead of the main timeline")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: matty messages <room> [--limit N] [--thread tN] [--format f]")
		return 2
	}

	ctx := context.Background()
	cfg := config.Load()
	t, err := dial(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer t.Close()

	room, err := findRoom(ctx, t, fs.Arg(0))
	if err != nil {
		return fail(err)
	}

	registry := newRegistry(cfg, logger)
	var msgs []domain.Message
	if *thread != "" {
		rootID, ok := registry.ResolveThread(*thread)
		if !ok {
			return fail(fmt.Errorf("unknown thread handle: %s", *thread))
		}
		msgs, err = t.ThreadMessages(ctx, room.ID, rootID, *limit)
	} else {
		msgs, err = t.Messages(ctx, room.ID, *limit)
	}
	if err != nil {
		return fail(err)
	}
	for i := range msgs {
		msgs[i].Handle = registry.MessageHandle(room.ID, msgs[i].EventID)
	}

	switch *format {
	case "json":
		return printJSON(msgs)
	case "rich":
		return printRich(room, msgs)
	default:
		for _, m := range msgs {
			fmt.Printf("[%s] %s %s: %s\n", m.Handle,
				m.Timestamp.Format("2006-01-02 15:04"), domain.Localpart(m.Sender), m.Body)
		}
		return 0
	}
}

// printRich renders the messages as markdown through glamour.
func printRich(room domain.Room, msgs []domain.Message) int {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", room.Name)
	for _, m := range msgs {
		fmt.Fprintf(&b, "**%s** `%s` *%s*\n\n%s\n\n",
			domain.Localpart(m.Sender), m.Handle, m.Timestamp.Format("15:04"), m.Body)
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Print(b.String())
		return 0
	}
	out, err := r.Render(b.String())
	if err != nil {
		fmt.Print(b.String())
		return 0
	}
	fmt.Print(out)
	return 0
}

func cmdUsers(args []string) int {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	format := fs.String("format", "text", "Output format: text or json")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: matty users <room>")
		return 2
	}

	ctx := context.Background()
	t, err := dial(ctx, config.Load())
	if err != nil {
		return fail(err)
	}
	defer t.Close()

	room, err := findRoom(ctx, t, fs.Arg(0))
	if err != nil {
		return fail(err)
	}
	if *format == "json" {
		return printJSON(room.Users)
	}
	for _, u := range room.Users {
		fmt.Println(u)
	}
	return 0
}

func cmdSend(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: matty send <room> <text>")
		return 2
	}

	ctx := context.Background()
	t, err := dial(ctx, config.Load())
	if err != nil {
		return fail(err)
	}
	defer t.Close()

	room, err := findRoom(ctx, t, args[0])
	if err != nil {
		return fail(err)
	}

	body := strings.Join(args[1:], " ")
	var opts content.Options
	if formatted, ids := content.ResolveMentions(body, room.Users); len(ids) > 0 {
		opts.FormattedBody = formatted
		opts.MentionedUserIDs = ids
	}
	eventID, err := t.Send(ctx, room.ID, content.BuildMessage(body, opts))
	if err != nil {
		return fail(err)
	}
	fmt.Println(eventID)
	return 0
}

func cmdExport(args []string, logger *config.Logger) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", archive.FormatJSON, "Export format: json, csv, or xlsx")
	out := fs.String("out", "", "Output file (default stdout)")
	limit := fs.Int("limit", config.DefaultHistorySize, "Number of messages to sync before exporting")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: matty export <room> [--format json|csv|xlsx] [--out file]")
		return 2
	}

	ctx := context.Background()
	t, err := dial(ctx, config.Load())
	if err != nil {
		return fail(err)
	}
	defer t.Close()

	room, err := findRoom(ctx, t, fs.Arg(0))
	if err != nil {
		return fail(err)
	}

	store, err := archive.Open()
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	// Sync the latest page into the archive, then export everything
	// the archive holds for this room.
	msgs, err := t.Messages(ctx, room.ID, *limit)
	if err != nil {
		logger.Printf("export: sync before export failed: %v", err)
	} else if err := store.SaveMessages(msgs); err != nil {
		return fail(err)
	}
	archived, err := store.RoomMessages(room.ID)
	if err != nil {
		return fail(err)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		w = f
	}
	if err := archive.WriteExport(w, *format, archived); err != nil {
		return fail(err)
	}
	if *out != "" {
		fmt.Fprintf(os.Stderr, "exported %d messages to %s\n", len(archived), *out)
	}
	return 0
}

func cmdSearch(args []string, logger *config.Logger) int {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	all := fs.Bool("all", false, "Search every archived room (offline, no sync)")
	limit := fs.Int("limit", config.DefaultHistorySize, "Number of messages to sync before searching")
	fs.Parse(args)

	store, err := archive.Open()
	if err != nil {
		return fail(err)
	}
	defer store.Close()

	if *all {
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "usage: matty search --all <query>")
			return 2
		}
		return searchAll(store, strings.Join(fs.Args(), " "))
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: matty search <room> <query>")
		return 2
	}

	ctx := context.Background()
	t, err := dial(ctx, config.Load())
	if err != nil {
		return fail(err)
	}
	defer t.Close()

	room, err := findRoom(ctx, t, fs.Arg(0))
	if err != nil {
		return fail(err)
	}

	// Sync the latest page first so recent messages are searchable.
	if msgs, err := t.Messages(ctx, room.ID, *limit); err != nil {
		logger.Printf("search: sync before search failed: %v", err)
	} else if err := store.SaveMessages(msgs); err != nil {
		return fail(err)
	}

	query := strings.Join(fs.Args()[1:], " ")
	hits, err := store.Search(room.ID, query)
	if err != nil {
		return fail(err)
	}
	for _, m := range hits {
		fmt.Printf("%s %s: %s\n",
			m.Timestamp.Format("2006-01-02 15:04"), domain.Localpart(m.Sender), m.Body)
	}
	total, err := store.Count(room.ID)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "%d of %d archived messages matched\n", len(hits), total)
	return 0
}

// searchAll runs the query against every room in the archive without
// touching the network.
func searchAll(store *archive.Store, query string) int {
	rooms, err := store.Rooms()
	if err != nil {
		return fail(err)
	}
	matched := 0
	for _, roomID := range rooms {
		hits, err := store.Search(roomID, query)
		if err != nil {
			return fail(err)
		}
		for _, m := range hits {
			fmt.Printf("%s %s %s: %s\n", roomID,
				m.Timestamp.Format("2006-01-02 15:04"), domain.Localpart(m.Sender), m.Body)
		}
		matched += len(hits)
	}
	total, err := store.Count("")
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stderr, "%d of %d archived messages matched\n", matched, total)
	return 0
}

func cmdQR(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: matty qr <room>")
		return 2
	}

	ctx := context.Background()
	t, err := dial(ctx, config.Load())
	if err != nil {
		return fail(err)
	}
	defer t.Close()

	room, err := findRoom(ctx, t, args[0])
	if err != nil {
		return fail(err)
	}

	link := "https://matrix.to/#/" + room.ID
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return fail(err)
	}
	fmt.Println(room.Name)
	fmt.Println(link)
	fmt.Print(qr.ToSmallString(false))
	return 0
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fail(err)
	}
	fmt.Println(string(data))
	return 0
}

func newRegistry(cfg config.Config, logger *config.Logger) *handles.Registry {
	dir, err := config.DataDir()
	if err != nil {
		dir = "."
	}
	return handles.New(dir, cfg.Homeserver, logger.Scope("handles"))
}

func runTUI(logger *config.Logger) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	registry := newRegistry(cfg, logger)
	engine := session.New(session.Config{
		HistorySize:  cfg.HistorySize,
		PollInterval: cfg.PollInterval,
	}, func() transport.Transport {
		return transport.NewMatrixClient(transport.ClientOptions{
			Homeserver: cfg.Homeserver,
			Username:   cfg.Username,
			Password:   cfg.Password,
			SSLVerify:  cfg.SSLVerify,
		})
	}, registry, logger.Scope("engine"))

	ownID := fullUserID(cfg.Username, cfg.Homeserver)
	p := tea.NewProgram(tui.InitialModel(engine, ownID), tea.WithAltScreen())
	tui.SetProgram(p)
	engine.Subscribe(tui.NewRelay(p, ownID, cfg.Notify))

	if cfg.Archive {
		store, err := archive.Open()
		if err != nil {
			logger.Printf("archive: open: %v (sync disabled)", err)
		} else {
			defer store.Close()
			engine.Subscribe(archive.NewRecorder(store, logger.Scope("archive")))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engineDone := make(chan error, 1)
	go func() {
		err := engine.Run(ctx)
		if err != nil && ctx.Err() == nil {
			p.Send(tui.NoticeMsg{Text: err.Error(), Severity: session.SeverityError})
		}
		engineDone <- err
	}()

	_, err := p.Run()
	cancel()
	// Shutdown awaits the engine so the transport is closed before exit.
	<-engineDone
	return err
}

// fullUserID turns a bare username into a full Matrix ID using the
// homeserver's domain.
func fullUserID(username, homeserver string) string {
	if strings.HasPrefix(username, "@") {
		return username
	}
	return "@" + username + ":" + handles.Domain(homeserver)
}
