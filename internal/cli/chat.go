// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/apierr"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/imagecache"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/offline"
	"github.com/jeranaias/rigchat/internal/util"
)

// ErrUsage is wrapped by errors for malformed slash commands.
var ErrUsage = errors.New("usage")

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor whose history lives in the config dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads one line, recording non-empty input in history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (c *ChatCLI) Close() {
	defer c.line.Close()
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// =============================================================================
// SESSION
// =============================================================================

// ImageCache is the part of the image codec the REPL reports on.
type ImageCache interface {
	Thumbnail(data []byte, maxPixel int) (image.Image, error)
	Stats() imagecache.Stats
	Purge()
}

// Options configure a Session.
type Options struct {
	Quiet            bool
	Markdown         bool
	Width            int
	ThumbnailPixels  int
	Model            string
	ChatConfigured   bool
	SearchConfigured bool
	Logger           *slog.Logger
}

// Session is an interactive chat bound to one orchestrator.
type Session struct {
	orch   *conversation.Orchestrator
	images ImageCache
	opts   Options
	md     *markdown
	logger *slog.Logger

	outMu sync.Mutex
	out   io.Writer

	readFile    func(string) ([]byte, error)
	unsubscribe func()
}

// NewSession creates a session writing to out and subscribes it to orch.
func NewSession(orch *conversation.Orchestrator, images ImageCache, out io.Writer, opts Options) *Session {
	if opts.Width <= 0 {
		opts.Width = DefaultTerminalWidth
	}
	if opts.ThumbnailPixels <= 0 {
		opts.ThumbnailPixels = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{
		orch:     orch,
		images:   images,
		opts:     opts,
		md:       newMarkdown(opts.Markdown, opts.Width),
		logger:   logger.With("component", "cli"),
		out:      out,
		readFile: os.ReadFile,
	}
	s.unsubscribe = orch.Subscribe(s.onEvent)
	return s
}

// Close detaches the session from its orchestrator.
func (s *Session) Close() {
	s.unsubscribe()
}

func (s *Session) println(a ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.out, a...)
}

func (s *Session) printf(format string, a ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, a...)
}

// onEvent renders orchestrator events.
func (s *Session) onEvent(ev conversation.Event) {
	switch ev.Kind {
	case conversation.EventStateChanged:
		if ev.State == conversation.StateThinking && !s.opts.Quiet {
			s.println(dimStyle.Render("thinking..."))
		}
	case conversation.EventMessageAppended:
		if ev.Message == nil || ev.Message.IsFromUser {
			return
		}
		if s.opts.Quiet {
			s.println(ev.Message.Text)
			return
		}
		s.println(assistantStyle.Render(model.RoleAssistant.DisplayName()))
		s.println(s.md.Render(ev.Message.Text))
		s.println()
	case conversation.EventMessageUpdated:
		if ev.Message == nil || ev.Message.Status.Kind != model.StatusFailed {
			return
		}
		if ev.Message.Status.Reason == apierr.ReasonCancelled {
			s.println(warningStyle.Render("[Cancelled]"))
			return
		}
		s.println(errorStyle.Render("[Error]") + " " + ev.Message.Status.Reason)
	}
}

// =============================================================================
// REPL
// =============================================================================

// Run reads input until /quit, Ctrl+C at an empty prompt or end of input.
func (s *Session) Run(ctx context.Context) error {
	input := NewChatCLI()
	defer input.Close()

	if !s.opts.Quiet {
		s.printWelcome()
	}

	for {
		line, err := input.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				s.logger.Warn("read input", "error", err)
			}
			s.println()
			return nil
		}

		quit, err := s.HandleLine(line)
		if err != nil {
			s.println(errorStyle.Render("[Error]") + " " + err.Error())
		}
		if quit {
			return nil
		}
		if err := s.waitForReply(ctx); err != nil {
			return err
		}
	}
}

// RunOnce sends message, waits for the reply and reports a failed send as an
// error.
func (s *Session) RunOnce(ctx context.Context, message string) error {
	id, ok := s.orch.SubmitMessage(message, s.orch.PendingAttachments(), false)
	if !ok {
		return fmt.Errorf("%w: message is empty", ErrUsage)
	}
	if err := s.waitForReply(ctx); err != nil {
		return err
	}
	for _, m := range s.orch.Messages() {
		if m.ID == id && m.Status.Kind == model.StatusFailed {
			return errors.New(m.Status.Reason)
		}
	}
	return nil
}

// waitForReply blocks until the send in flight settles. Ctrl+C while waiting
// cancels the send instead of exiting.
func (s *Session) waitForReply(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.orch.Wait(waitCtx) }()

	for {
		select {
		case err := <-done:
			if err != nil && ctx.Err() != nil {
				s.orch.CancelCurrentSend()
				return ctx.Err()
			}
			return nil
		case <-sigCh:
			s.orch.CancelCurrentSend()
		}
	}
}

// HandleLine executes one line of input. It reports whether the session
// should end.
func (s *Session) HandleLine(line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return true, nil
		}
		s.orch.SubmitMessage(line, s.orch.PendingAttachments(), false)
		return false, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "quit", "q", "exit":
		return true, nil
	case "help", "h", "?":
		s.printHelp()
	case "search", "s":
		if rest == "" {
			return false, fmt.Errorf("%w: /search <query>", ErrUsage)
		}
		s.orch.SubmitMessage(rest, nil, true)
	case "attach", "a":
		return false, s.attach(rest)
	case "photos", "p":
		s.listPhotos()
	case "detach":
		s.orch.ClearAttachments()
		s.println(dimStyle.Render("Attachments cleared"))
	case "cancel":
		if !s.orch.CancelCurrentSend() {
			s.println(dimStyle.Render("Nothing to cancel"))
		}
	case "reset":
		s.orch.ResetState()
	case "stats":
		s.printStats()
	case "purge":
		s.images.Purge()
		s.println(dimStyle.Render("Image caches purged"))
	case "status":
		s.printStatus()
	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return false, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func (s *Session) attach(paths string) error {
	if paths == "" {
		return fmt.Errorf("%w: /attach <path> [path...]", ErrUsage)
	}
	for _, path := range strings.Fields(paths) {
		data, err := s.readFile(path)
		if err != nil {
			return fmt.Errorf("attach %s: %w", filepath.Base(path), err)
		}
		if err := s.orch.AddAttachment(data); err != nil {
			return fmt.Errorf("attach %s: %w", filepath.Base(path), err)
		}
		s.printf("%s %s (%s)\n", commandStyle.Render("Attached"), filepath.Base(path), humanize.Bytes(uint64(len(data))))
	}
	s.printf("%s\n", dimStyle.Render(fmt.Sprintf("%d/%d photos queued for the next message", len(s.orch.PendingAttachments()), conversation.MaxAttachments)))
	return nil
}

func (s *Session) listPhotos() {
	pending := s.orch.PendingAttachments()
	if len(pending) == 0 {
		s.println(dimStyle.Render("No photos queued"))
		return
	}
	for i, data := range pending {
		desc := humanize.Bytes(uint64(len(data)))
		if thumb, err := s.images.Thumbnail(data, s.opts.ThumbnailPixels); err == nil {
			b := thumb.Bounds()
			desc += fmt.Sprintf(", preview %dx%d", b.Dx(), b.Dy())
		}
		s.println(keyValue(fmt.Sprintf("  photo %d", i+1), desc))
	}
}

func (s *Session) printStats() {
	st := s.images.Stats()
	s.println(titleStyle.Render("Image caches"))
	for _, p := range []imagecache.PoolStats{st.Decoded, st.Thumbnails, st.Compressed} {
		s.println(keyValue("  "+p.Name, fmt.Sprintf("%d/%d entries, %s/%s, hit rate %.0f%%, %d evictions",
			p.Entries, p.MaxEntries,
			humanize.Bytes(uint64(p.Bytes)), humanize.Bytes(uint64(p.MaxBytes)),
			p.HitRate*100, p.Evictions)))
	}
	s.println(keyValue("  decodes", fmt.Sprintf("%d", st.Decodes)))
}

func (s *Session) printStatus() {
	cfg := s.orch.Config()
	s.println(titleStyle.Render("Status"))
	s.println(keyValue("  model", s.opts.Model))
	s.println(keyValue("  chat", configured(s.opts.ChatConfigured)))
	s.println(keyValue("  search", configured(s.opts.SearchConfigured)))
	s.println(keyValue("  history turns", fmt.Sprintf("%d", cfg.HistoryTurns)))
	s.println(keyValue("  state", s.orch.State().String()))
	if name := s.orch.DisplayName(); name != "" {
		s.println(keyValue("  name", name))
	}
	if offline.IsOfflineMode() {
		s.println(keyValue("  network", offlineStyle.Render(offline.StatusBadge())))
	}
	if last, ok := s.orch.LastUserMessage(); ok {
		text := last.Text
		if text == "" {
			text = model.PhotoPlaceholder
		}
		s.println(keyValue("  last message", util.Preview(text, s.opts.Width-22)))
	}
}

func (s *Session) printWelcome() {
	s.println(titleStyle.Render("rigchat") + " " + dimStyle.Render(s.opts.Model))
	if offline.IsOfflineMode() {
		s.println(offlineStyle.Render(offline.StatusBadge()) + " network restricted to localhost")
	}
	if !s.opts.ChatConfigured {
		s.println(warningStyle.Render(apierr.ReasonChatNotConfigured))
	}
	s.println(dimStyle.Render("Type a message, /help for commands, Ctrl+D to exit."))
	s.println()
}

func (s *Session) printHelp() {
	rows := [][2]string{
		{"/search <query>", "Answer a question from the web"},
		{"/attach <path>", "Queue up to 3 photos for the next message"},
		{"/photos", "List queued photos"},
		{"/detach", "Drop queued photos"},
		{"/cancel", "Abort the message being sent"},
		{"/reset", "Clear the error state"},
		{"/stats", "Image cache statistics"},
		{"/purge", "Empty the image caches"},
		{"/status", "Show configuration"},
		{"/quit", "Exit"},
	}
	for _, r := range rows {
		s.println(commandStyle.Width(18).Render(r[0]) + valueStyle.Render(r[1]))
	}
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
