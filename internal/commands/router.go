// Package commands routes inbound chat commands to their handlers.
package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	kit "salebot/internal/transport"
	logx "salebot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	// Hidden commands work but are left out of /help and the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Message *kit.Message
	Command string
	Args    []string
	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply answers in the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	return kit.Reply(ctx, r.Adapter, r.Message, text)
}

type Router struct {
	adapter kit.Adapter
	log     logx.Logger

	mu       sync.RWMutex
	cmds     map[string]*Command
	ordered  []*Command
	username string

	defaultTimeout time.Duration
}

func NewRouter(adapter kit.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		adapter:        adapter,
		log:            log,
		cmds:           map[string]*Command{},
		defaultTimeout: 15 * time.Second,
	}
}

// SetBotUsername makes the router ignore commands addressed to other bots
// ("/start@otherbot") in group chats.
func (r *Router) SetBotUsername(name string) {
	r.mu.Lock()
	r.username = strings.TrimPrefix(strings.TrimSpace(name), "@")
	r.mu.Unlock()
}

// Register adds commands. A later registration of the same name or alias
// replaces the earlier one.
func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		r.cmds[name] = &cc
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				r.cmds[a] = &cc
			}
		}
		r.ordered = append(r.ordered, &cc)
	}
}

// Commands lists the visible commands sorted by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	out := make([]Command, 0, len(r.ordered))
	for _, c := range r.ordered {
		if c.Hidden || seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, *r.cmds[c.Name])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PublishMenu pushes the command list to the adapter's menu when supported.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	cmds := r.Commands()
	menu := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return up.UpdateMenuCommands(ctx, menu)
}

// DispatchLoop handles updates one at a time until ctx is cancelled or the
// channel is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("command dispatcher started")
	defer r.log.Info("command dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Handle(ctx, up)
		}
	}
}

// Handle routes a single update. Text that is not a command is ignored.
func (r *Router) Handle(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	name, args, ok := r.parse(msg.Text)
	if !ok {
		return
	}

	r.mu.RLock()
	cmd := r.cmds[name]
	r.mu.RUnlock()
	if cmd == nil {
		if err := kit.Reply(ctx, r.adapter, msg, "Unknown command. Try /help"); err != nil {
			r.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
		}
		return
	}

	req := &Request{
		Message: msg,
		Command: cmd.Name,
		Args:    args,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	h := Chain(cmd.Handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(timeout))
	_ = h(ctx, req)
}

// parse splits "/name@bot arg1 arg2". ok is false for plain text and for
// commands addressed to another bot.
func (r *Router) parse(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		target := word[i+1:]
		word = word[:i]
		r.mu.RLock()
		me := r.username
		r.mu.RUnlock()
		if me != "" && !strings.EqualFold(target, me) {
			return "", nil, false
		}
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if p := recover(); p != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", p)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)
			if err != nil {
				logger.Warn("command failed", logx.Duration("dur", d), logx.Err(err))
			} else {
				logger.Debug("command ok", logx.Duration("dur", d))
			}
			return err
		}
	}
}
