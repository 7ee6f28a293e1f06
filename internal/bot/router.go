// Package bot routes Telegram updates to command and callback handlers:
// managing reminders, confirming adjusted schedules and reporting
// progress.
package bot

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"deedbot/internal/recurrence"
	"deedbot/internal/storage"
	kit "deedbot/internal/transport"
	"deedbot/pkg/logx"
	"deedbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

type Command struct {
	Name        string // without the leading slash
	Description string
	Usage       string
	Access      Access
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	Adapter kit.Adapter
	Log     logx.Logger
}

// Dispatcher is the slice of the dispatch service the router needs.
type Dispatcher interface {
	Arm(r storage.Reminder)
	Disarm(id string)
	Snooze(ctx context.Context, id string, d time.Duration) (time.Time, error)
	Complete(ctx context.Context, id string, status storage.CompletionStatus) error
}

type Options struct {
	Owners        []int64
	MinimumLead   time.Duration // default 1m
	SnoozeDefault time.Duration // default 15m
	ConfirmTTL    time.Duration // pending schedule confirmations; default 10m
}

type Router struct {
	adapter  kit.Adapter
	store    storage.Store
	dispatch Dispatcher
	log      logx.Logger

	mu  sync.Mutex
	opt Options

	commands  map[string]Command
	order     []string // menu/help order
	callbacks map[string]CallbackHandlerFunc

	// pending holds schedule attempts awaiting user confirmation.
	pending *tgui.TokenStore[pendingAdd]

	now func() time.Time
}

type pendingAdd struct {
	ChatID   int64
	Title    string
	Schedule string // raw schedule text as typed
	Attempt  *recurrence.Attempt
}

func New(adapter kit.Adapter, store storage.Store, dispatch Dispatcher, opt Options, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.MinimumLead <= 0 {
		opt.MinimumLead = recurrence.DefaultMinimumLead
	}
	if opt.SnoozeDefault <= 0 {
		opt.SnoozeDefault = 15 * time.Minute
	}
	if opt.ConfirmTTL <= 0 {
		opt.ConfirmTTL = 10 * time.Minute
	}
	r := &Router{
		adapter:   adapter,
		store:     store,
		dispatch:  dispatch,
		log:       log,
		opt:       opt,
		commands:  map[string]Command{},
		callbacks: map[string]CallbackHandlerFunc{},
		pending:   tgui.NewTokenStore[pendingAdd](opt.ConfirmTTL, 256),
		now:       time.Now,
	}
	r.register()
	return r
}

func (r *Router) SetOptions(opt Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opt.MinimumLead <= 0 {
		opt.MinimumLead = recurrence.DefaultMinimumLead
	}
	if opt.SnoozeDefault <= 0 {
		opt.SnoozeDefault = 15 * time.Minute
	}
	if opt.ConfirmTTL <= 0 {
		opt.ConfirmTTL = r.opt.ConfirmTTL
	}
	r.opt = opt
}

func (r *Router) options() Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opt
}

func (r *Router) add(c Command) {
	r.commands[c.Name] = c
	r.order = append(r.order, c.Name)
}

// MenuCommands returns the registered commands for the Telegram menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, name := range r.order {
		c := r.commands[name]
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// DispatchLoop consumes adapter updates until ctx is done or the
// channel closes. Handlers run inline; Telegram long polling already
// serializes one chat's updates, and handlers are short.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("bot dispatcher started", logx.Int("commands", len(r.commands)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("bot dispatcher stopped (updates closed)")
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in update handler", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()

	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	cmd, ok := r.commands[word]
	if !ok {
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		r.log.Debug("command denied", logx.String("cmd", word), logx.Int64("from", msg.FromID))
		return
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		FromID:  msg.FromID,
		Command: word,
		Args:    parts[1:],
		Adapter: r.adapter,
		Log:     r.log.With(logx.String("cmd", word), logx.Int64("chat_id", msg.ChatID)),
	}
	if err := cmd.Handle(ctx, req); err != nil {
		req.Log.Warn("command failed", logx.Err(err))
		r.reply(ctx, req, "Something went wrong: "+err.Error())
	}
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	if !r.isOwner(cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Not allowed")
		return
	}

	app, action, payload := tgui.SplitData(cb.Data)
	h, ok := r.callbacks[app+":"+action]
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Unknown action")
		return
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID},
		FromID:  cb.FromID,
		Command: app + ":" + action,
		Adapter: r.adapter,
		Log:     r.log.With(logx.String("callback", app+":"+action), logx.Int64("chat_id", cb.ChatID)),
	}
	if err := h(ctx, req, payload); err != nil {
		req.Log.Warn("callback failed", logx.Err(err))
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Failed: "+err.Error())
		return
	}
	_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
}

func (r *Router) isOwner(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.opt.Owners) == 0 {
		return false
	}
	for _, id := range r.opt.Owners {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Router) reply(ctx context.Context, req *Request, text string) {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true})
	if err != nil {
		req.Log.Debug("reply failed", logx.Err(err))
	}
}

func (r *Router) replyMarkup(ctx context.Context, req *Request, text string, markup any) {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true, ReplyMarkupAdapter: markup})
	if err != nil {
		req.Log.Debug("reply failed", logx.Err(err))
	}
}
