package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"marketbot/internal/storage"
	kit "marketbot/internal/transport"
	logx "marketbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Description string
	Handle      HandlerFunc
}

// Request carries one inbound command through a handler. Handlers own all
// user-facing replies; the returned error is only logged and audited.
type Request struct {
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Dispatcher routes inbound updates to command handlers over a bounded
// worker pool, so one slow download cannot stall other users' commands.
type Dispatcher struct {
	mu   sync.RWMutex
	cmds map[string]Command

	log     logx.Logger
	adapter kit.Adapter
	store   storage.Store

	jobs chan func()
}

func NewDispatcher(log logx.Logger, adapter kit.Adapter, store storage.Store) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cmds:    map[string]Command{},
		log:     log,
		adapter: adapter,
		store:   store,
		jobs:    make(chan func(), 256),
	}
}

func (d *Dispatcher) Register(cmds ...Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cmds {
		if c.Name == "" || c.Handle == nil {
			continue
		}
		d.cmds[c.Name] = c
	}
}

// DispatchLoop consumes updates until ctx is done.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	d.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(d.jobs)))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("panic in command worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-d.jobs:
					if !ok {
						return
					}
					if job != nil {
						job()
					}
				}
			}
		}()
	}

	defer func() {
		wg.Wait()
		d.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			d.routeUpdate(ctx, up)
		}
	}
}

func (d *Dispatcher) routeUpdate(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message

	word, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	d.mu.RLock()
	cmd, found := d.cmds[word]
	d.mu.RUnlock()
	if !found {
		_, _ = d.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
			"I did not recognize that command. Use /start to see what I can do.", nil)
		return
	}

	rid := newReqID()
	req := &Request{
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: d.adapter,
		Logger: d.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	job := func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				req.Logger.Error("panic in command handler", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()

		err := cmd.Handle(root, req)
		took := time.Since(start)
		if err != nil {
			req.Logger.Warn("command failed", logx.Duration("took", took), logx.Err(err))
		} else {
			req.Logger.Info("command ok", logx.Duration("took", took))
		}

		if d.store != nil {
			actx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			entry := storage.HistoryEntry{
				At:     start,
				ChatID: req.Chat.ChatID,
				Kind:   "command",
				Name:   cmd.Name,
				OK:     err == nil,
				TookMS: took.Milliseconds(),
			}
			if err != nil {
				entry.Error = err.Error()
			}
			if aerr := d.store.AppendHistory(actx, entry); aerr != nil {
				req.Logger.Debug("history append failed", logx.Err(aerr))
			}
			cancel()
		}
	}

	select {
	case d.jobs <- job:
	default:
		_, _ = d.adapter.SendText(root, req.Chat, "I am handling a lot of requests right now. Please try again in a moment.", nil)
	}
}
