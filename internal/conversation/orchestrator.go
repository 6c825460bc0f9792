// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/rigchat/internal/apierr"
	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/search"
	"github.com/jeranaias/rigchat/internal/util"
)

const (
	// MaxAttachments is the number of photos one message may carry.
	MaxAttachments = 3

	// maxHistoryEntries caps the rolling history kept between sends.
	maxHistoryEntries = 100

	// noSummaryFormat is the reply when search finds no answer text.
	noSummaryFormat = "I couldn't find a summary for %q."
)

var (
	// ErrTooManyAttachments is returned when the pending buffer is full.
	ErrTooManyAttachments = fmt.Errorf("at most %d photos per message", MaxAttachments)

	// ErrEmptyAttachment is returned for a zero-length attachment.
	ErrEmptyAttachment = errors.New("empty attachment")
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// ChatClient generates a reply for one chat turn.
type ChatClient interface {
	Generate(ctx context.Context, req cloud.GenerateRequest) (string, error)
}

// SearchClient drafts answers for /search turns.
type SearchClient interface {
	IsConfigured() bool
	Answer(ctx context.Context, query string, limit int) (*search.Answer, error)
}

// ImageCodec shrinks photos before they are held or uploaded.
type ImageCodec interface {
	Compress(data []byte, maxBytes int, quality float64) []byte
	EarlyDownscale(data []byte, maxDim int, quality float64) []byte
}

// Deps are the collaborators of an Orchestrator. Store, Codec and Chat are
// required; a nil Search makes every search turn fail as not configured.
type Deps struct {
	Store  *model.Store
	Codec  ImageCodec
	Chat   ChatClient
	Search SearchClient
	Logger *slog.Logger

	// EarlyMaxDimension and EarlyQuality are passed to EarlyDownscale when a
	// photo is attached. Zero selects the codec defaults.
	EarlyMaxDimension int
	EarlyQuality      float64

	// SearchLimit is the number of sources requested per search.
	SearchLimit int
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// inflight is the send currently awaiting a provider.
type inflight struct {
	id     string
	cancel context.CancelFunc
}

// Orchestrator drives the lifecycle of every message in one session.
// All methods are safe for concurrent use.
type Orchestrator struct {
	store  *model.Store
	codec  ImageCodec
	chat   ChatClient
	search SearchClient
	logger *slog.Logger

	earlyDim     int
	earlyQuality float64
	searchLimit  int

	// mu guards everything below and every store mutation, so that events
	// are produced in the order the changes happened.
	mu          sync.Mutex
	cfg         config.AIConfig
	state       State
	current     *inflight
	pending     [][]byte
	history     []model.HistoryEntry
	displayName string

	subs       subscribers
	events     *eventQueue
	dispatched chan struct{}
	closeOnce  sync.Once

	wg sync.WaitGroup
}

// New creates an orchestrator in the idle state.
func New(deps Deps, cfg config.AIConfig) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := &Orchestrator{
		store:        deps.Store,
		codec:        deps.Codec,
		chat:         deps.Chat,
		search:       deps.Search,
		logger:       logger.With("component", "conversation"),
		earlyDim:     deps.EarlyMaxDimension,
		earlyQuality: deps.EarlyQuality,
		searchLimit:  deps.SearchLimit,
		cfg:          normalizeConfig(cfg),
		state:        StateIdle,
		events:       newEventQueue(),
		dispatched:   make(chan struct{}),
	}
	go o.dispatch()
	return o
}

// dispatch delivers queued events to the subscribers registered at the time
// of delivery.
func (o *Orchestrator) dispatch() {
	defer close(o.dispatched)
	o.events.run(func(ev Event) {
		for _, fn := range o.subs.snapshot() {
			fn(ev)
		}
	})
}

// normalizeConfig replaces values that would make a send impossible.
// Zero history and zero temperature are meaningful and kept.
func normalizeConfig(cfg config.AIConfig) config.AIConfig {
	def := config.DefaultAIConfig()
	if cfg.MaxUserChars <= 0 {
		cfg.MaxUserChars = def.MaxUserChars
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = def.MaxImageBytes
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 1 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = def.SystemPrompt
	}
	return cfg
}

// =============================================================================
// OBSERVATION
// =============================================================================

// Subscribe registers fn for every subsequent event and returns a function
// that removes it. Callbacks run one at a time on a dedicated goroutine, in
// the order the changes happened, and may call back into the orchestrator.
// Wait and Close must not be called from a callback: both wait for event
// delivery to finish and would block the delivering goroutine on itself.
func (o *Orchestrator) Subscribe(fn func(Event)) (unsubscribe func()) {
	return o.subs.add(fn)
}

// State returns the current activity state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Messages returns a snapshot of the conversation.
func (o *Orchestrator) Messages() []*model.Message {
	return o.store.Messages()
}

// LastUserMessage returns a copy of the most recent user message.
func (o *Orchestrator) LastUserMessage() (*model.Message, bool) {
	return o.store.LastUser()
}

// DisplayName returns the name the user introduced, or "".
func (o *Orchestrator) DisplayName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.displayName
}

// Config returns the configuration the next send will use.
func (o *Orchestrator) Config() config.AIConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// SetConfig replaces the configuration for subsequent sends. A send already
// in flight keeps the values it started with.
func (o *Orchestrator) SetConfig(cfg config.AIConfig) {
	o.mu.Lock()
	o.cfg = normalizeConfig(cfg)
	o.mu.Unlock()
	o.logger.Debug("ai config updated", "history_turns", cfg.HistoryTurns, "max_user_chars", cfg.MaxUserChars)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AddAttachment downscales a photo and adds it to the pending buffer that the
// next SubmitMessage consumes.
func (o *Orchestrator) AddAttachment(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyAttachment
	}
	o.mu.Lock()
	full := len(o.pending) >= MaxAttachments
	o.mu.Unlock()
	if full {
		return ErrTooManyAttachments
	}

	small := o.codec.EarlyDownscale(data, o.earlyDim, o.earlyQuality)

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) >= MaxAttachments {
		return ErrTooManyAttachments
	}
	o.pending = append(o.pending, small)
	o.logger.Debug("attachment added", "from_bytes", len(data), "to_bytes", len(small), "pending", len(o.pending))
	return nil
}

// PendingAttachments returns the photos waiting for the next send.
func (o *Orchestrator) PendingAttachments() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]byte(nil), o.pending...)
}

// ClearAttachments empties the pending buffer.
func (o *Orchestrator) ClearAttachments() {
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
}

// =============================================================================
// SENDING
// =============================================================================

// SubmitMessage appends a user turn and starts sending it in the background.
// Text is trimmed and truncated to MaxUserChars runes, and at most
// MaxAttachments images are kept. Empty input is ignored and reports false.
// Any send still in flight is cancelled first.
func (o *Orchestrator) SubmitMessage(text string, images [][]byte, isSearch bool) (id string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		return "", false
	}
	if len(images) > MaxAttachments {
		images = images[:MaxAttachments]
	}

	o.mu.Lock()
	cfg := o.cfg
	text = util.ClampRunes(text, cfg.MaxUserChars)

	msg, err := model.NewUserMessage(text, images, isSearch)
	if err != nil {
		o.mu.Unlock()
		return "", false
	}

	events := o.cancelLocked()
	if err := o.store.Append(msg); err != nil {
		o.logger.Error("append user message", "error", err)
		o.unlockAndEmit(events)
		return "", false
	}
	events = append(events, o.messageEvent(EventMessageAppended, msg.ID))
	o.pending = nil

	if !isSearch && o.displayName == "" && text != "" {
		if name := extractName(text); name != "" {
			o.displayName = name
			o.logger.Info("display name captured")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	send := &inflight{id: msg.ID, cancel: cancel}
	o.current = send
	events = append(events, o.setStateLocked(StateThinking)...)

	systemPrompt := personalize(cfg.SystemPrompt, o.displayName)
	history := o.historyLocked(cfg.HistoryTurns)

	o.wg.Add(1)
	o.unlockAndEmit(events)

	o.logger.Debug("send started", "id", msg.ID, "search", isSearch, "images", len(msg.Images), "chars", util.RuneLen(text))

	go func() {
		defer o.wg.Done()
		defer cancel()

		var reply string
		var err error
		if isSearch {
			reply, err = o.runSearch(ctx, text)
		} else {
			reply, err = o.runChat(ctx, msg, cfg, systemPrompt, history)
		}
		o.complete(send, msg, reply, err)
	}()

	return msg.ID, true
}

// runChat compresses the turn's photos and asks the chat provider for a reply.
func (o *Orchestrator) runChat(ctx context.Context, msg *model.Message, cfg config.AIConfig, systemPrompt string, history []model.HistoryEntry) (string, error) {
	images := make([][]byte, len(msg.Images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range msg.Images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			images[i] = o.codec.Compress(img, cfg.MaxImageBytes, cfg.JPEGQuality)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", apierr.FromTransport(err)
	}
	if err := ctx.Err(); err != nil {
		return "", apierr.FromTransport(err)
	}

	reply, err := o.chat.Generate(ctx, cloud.GenerateRequest{
		SystemPrompt: systemPrompt,
		UserText:     msg.Text,
		UserImages:   images,
		History:      history,
		MaxTokens:    cfg.MaxOutputTokens,
		Temperature:  cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", apierr.FromTransport(err)
	}
	return reply, nil
}

// runSearch asks the search provider for a drafted answer.
func (o *Orchestrator) runSearch(ctx context.Context, query string) (string, error) {
	if o.search == nil || !o.search.IsConfigured() {
		return "", apierr.ErrSearchNotConfigured
	}
	ans, err := o.search.Answer(ctx, query, o.searchLimit)
	if err != nil {
		return "", err
	}
	o.logger.Debug("search answered", "citations", len(ans.Citations))

	text := strings.TrimSpace(ans.Text)
	if text == "" {
		text = fmt.Sprintf(noSummaryFormat, query)
	}
	return text, nil
}

// complete records the outcome of send unless it has been superseded.
func (o *Orchestrator) complete(send *inflight, msg *model.Message, reply string, err error) {
	o.mu.Lock()
	if o.current != send {
		o.mu.Unlock()
		o.logger.Debug("stale completion dropped", "id", msg.ID, "error", err)
		return
	}
	o.current = nil

	var events []Event
	if err != nil {
		reason := apierr.Humanize(err)
		events = append(events, o.setStatusLocked(msg.ID, model.Failed(reason))...)
		next := StateError
		if apierr.IsCancelled(err) {
			next = StateIdle
		}
		events = append(events, o.setStateLocked(next)...)
		o.logger.Warn("send failed", "id", msg.ID, "kind", apierr.Classify(err).String(), "error", err)
		o.unlockAndEmit(events)
		return
	}

	events = append(events, o.setStateLocked(StateResponding)...)
	events = append(events, o.setStatusLocked(msg.ID, model.Sent())...)

	ai := model.NewAIMessage(reply)
	if appendErr := o.store.Append(ai); appendErr != nil {
		o.logger.Error("append reply", "error", appendErr)
	} else {
		events = append(events, o.messageEvent(EventMessageAppended, ai.ID))
	}
	if !msg.IsSearchQuery {
		o.appendHistoryLocked(model.NewHistoryEntry(msg), model.NewHistoryEntry(ai))
	}
	events = append(events, o.setStateLocked(StateIdle)...)
	o.logger.Debug("send completed", "id", msg.ID, "reply_chars", util.RuneLen(reply))
	o.unlockAndEmit(events)
}

// CancelCurrentSend aborts the send in flight, marking its message
// failed("cancelled"). It reports whether anything was cancelled.
func (o *Orchestrator) CancelCurrentSend() bool {
	o.mu.Lock()
	events := o.cancelLocked()
	if len(events) == 0 {
		o.mu.Unlock()
		return false
	}
	events = append(events, o.setStateLocked(StateIdle)...)
	o.unlockAndEmit(events)
	return true
}

// ResetState clears the error state after the UI has shown it.
func (o *Orchestrator) ResetState() {
	o.mu.Lock()
	var events []Event
	if o.state == StateError {
		events = o.setStateLocked(StateIdle)
	}
	o.unlockAndEmit(events)
}

// Wait blocks until no send is running and every event has been delivered,
// or until ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		o.events.waitIdle()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any send in flight, waits for background work to stop and
// delivers the remaining events. Subsequent events are dropped.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.CancelCurrentSend()
		o.wg.Wait()
		o.events.close()
		<-o.dispatched
	})
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

// cancelLocked invalidates the current send (must hold lock).
func (o *Orchestrator) cancelLocked() []Event {
	if o.current == nil {
		return nil
	}
	send := o.current
	o.current = nil
	send.cancel()
	o.logger.Info("send cancelled", "id", send.id)
	return o.setStatusLocked(send.id, model.Failed(apierr.ReasonCancelled))
}

// setStateLocked changes state and reports it (must hold lock).
func (o *Orchestrator) setStateLocked(s State) []Event {
	if o.state == s {
		return nil
	}
	o.state = s
	return []Event{{Kind: EventStateChanged, State: s}}
}

// setStatusLocked finalizes a message status (must hold lock).
func (o *Orchestrator) setStatusLocked(id string, status model.Status) []Event {
	if err := o.store.SetStatus(id, status); err != nil {
		o.logger.Warn("status not updated", "id", id, "error", err)
		return nil
	}
	return []Event{o.messageEvent(EventMessageUpdated, id)}
}

// messageEvent builds an event carrying a copy of the stored message.
func (o *Orchestrator) messageEvent(kind EventKind, id string) Event {
	msg, _ := o.store.Get(id)
	return Event{Kind: kind, State: o.state, Message: msg}
}

// historyLocked returns the last n rolling history entries (must hold lock).
func (o *Orchestrator) historyLocked(n int) []model.HistoryEntry {
	if n <= 0 || len(o.history) == 0 {
		return nil
	}
	start := max(0, len(o.history)-n)
	return append([]model.HistoryEntry(nil), o.history[start:]...)
}

// appendHistoryLocked adds entries and drops the oldest past the cap
// (must hold lock).
func (o *Orchestrator) appendHistoryLocked(entries ...model.HistoryEntry) {
	o.history = append(o.history, entries...)
	if over := len(o.history) - maxHistoryEntries; over > 0 {
		o.history = append([]model.HistoryEntry(nil), o.history[over:]...)
	}
}

// unlockAndEmit queues events and releases mu. Queuing under the lock keeps
// deliveries in the order of the changes.
func (o *Orchestrator) unlockAndEmit(events []Event) {
	o.events.push(events...)
	o.mu.Unlock()
}
