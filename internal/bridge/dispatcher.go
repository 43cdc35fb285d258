package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tg-bale-bridge/internal/crash"
	"tg-bale-bridge/internal/logger"
	"tg-bale-bridge/internal/models"
)

// CommandHandler intercepts events before relay. Handle returns true when
// the event was a command and must not be forwarded.
type CommandHandler interface {
	Handle(ctx context.Context, event InboundEvent) bool
}

// DispatcherConfig carries the relay policies of the dispatcher.
type DispatcherConfig struct {
	// MirrorDMsToOperator copies DM traffic to a fixed operator chat on
	// the same platform, independent of route resolution.
	MirrorDMsToOperator bool
	OperatorChatIDs     map[models.Platform]int64
	// SenderAttribution prefixes forwarded group and DM messages with
	// the original sender's name.
	SenderAttribution bool
	// DeliveryTimeout bounds each network round-trip of a forward.
	DeliveryTimeout time.Duration
	// ShutdownGrace bounds how long in-flight forwards may run after
	// the listeners stop.
	ShutdownGrace time.Duration
	// QueueIdleTimeout evicts a chat's queue and its worker after this
	// long without traffic.
	QueueIdleTimeout time.Duration
}

// chatQueue is one source chat's serial queue. pending counts senders
// that have committed to this queue but not yet handed their event
// over, so idle eviction cannot orphan an in-flight send.
type chatQueue struct {
	events  chan InboundEvent
	pending int
}

// Dispatcher consumes inbound events from both platform listeners and
// re-emits content on the paired side. Events from the same source chat
// are processed in arrival order; different chats proceed in parallel.
type Dispatcher struct {
	pairing  *PairingEngine
	commands CommandHandler
	cfg      DispatcherConfig
	clients  map[models.Platform]PlatformClient

	queueMu sync.Mutex
	queues  map[models.RouteKey]*chatQueue
	workers sync.WaitGroup

	// workCtx outlives the listen context by the shutdown grace period
	// so in-flight forwards can finish after the listeners stop.
	workCtx    context.Context
	workCancel context.CancelFunc
}

func NewDispatcher(pairing *PairingEngine, cfg DispatcherConfig) *Dispatcher {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.QueueIdleTimeout <= 0 {
		cfg.QueueIdleTimeout = 5 * time.Minute
	}
	return &Dispatcher{
		pairing: pairing,
		cfg:     cfg,
		clients: make(map[models.Platform]PlatformClient),
		queues:  make(map[models.RouteKey]*chatQueue),
	}
}

// RegisterClient adds a platform client. Both platforms must be
// registered before Run.
func (d *Dispatcher) RegisterClient(client PlatformClient) {
	d.clients[client.Platform()] = client
}

// SetCommandHandler installs the command surface.
func (d *Dispatcher) SetCommandHandler(handler CommandHandler) {
	d.commands = handler
}

// Run starts one listener goroutine per registered platform and blocks
// until ctx is cancelled and in-flight forwards finish or the grace
// period expires.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.clients) == 0 {
		return fmt.Errorf("no platform clients registered")
	}
	d.workCtx, d.workCancel = context.WithCancel(context.Background())
	defer d.workCancel()

	var listeners sync.WaitGroup
	for _, client := range d.clients {
		events, err := client.Listen(ctx)
		if err != nil {
			return fmt.Errorf("failed to start %s listener: %w", client.Platform(), err)
		}
		listeners.Add(1)
		go func(platform models.Platform, events <-chan InboundEvent) {
			defer listeners.Done()
			defer crash.RecoverWithStack(fmt.Sprintf("listener-%s", platform))
			logger.Infof("Listener started for %s", platform)
			for event := range events {
				d.enqueue(event)
			}
			logger.Infof("Listener stopped for %s", platform)
		}(client.Platform(), events)
	}

	listeners.Wait()

	// Listeners are done; close the per-chat queues and let in-flight
	// forwards drain within the grace period.
	d.queueMu.Lock()
	for _, queue := range d.queues {
		close(queue.events)
	}
	d.queueMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGrace):
		logger.Warningf("Shutdown grace period expired with forwards still in flight")
		d.workCancel()
		<-done
	}
	return nil
}

// enqueue hands the event to its source chat's serial queue, creating the
// queue and its worker on first use.
func (d *Dispatcher) enqueue(event InboundEvent) {
	key := models.RouteKey{Platform: event.Platform, ChatID: event.ChatID}

	d.queueMu.Lock()
	queue, ok := d.queues[key]
	if !ok {
		queue = &chatQueue{events: make(chan InboundEvent, 64)}
		d.queues[key] = queue
		d.workers.Add(1)
		go d.runQueue(key, queue)
	}
	queue.pending++
	d.queueMu.Unlock()

	queue.events <- event

	d.queueMu.Lock()
	queue.pending--
	d.queueMu.Unlock()
}

// runQueue serves one chat's events in arrival order. The worker exits
// when the queue is closed at shutdown, or evicts itself after sitting
// idle with nothing queued and no sender committed.
func (d *Dispatcher) runQueue(key models.RouteKey, queue *chatQueue) {
	defer d.workers.Done()
	for {
		select {
		case event, ok := <-queue.events:
			if !ok {
				return
			}
			d.processIsolated(event)
		case <-time.After(d.cfg.QueueIdleTimeout):
			d.queueMu.Lock()
			if len(queue.events) == 0 && queue.pending == 0 {
				delete(d.queues, key)
				d.queueMu.Unlock()
				return
			}
			d.queueMu.Unlock()
		}
	}
}

// processIsolated confines a panic to the event that caused it, so one
// bad event cannot kill the queue worker and stall the chat.
func (d *Dispatcher) processIsolated(event InboundEvent) {
	defer crash.RecoverWithStack(fmt.Sprintf("chat-queue-%s-%d", event.Platform, event.ChatID))
	d.process(d.workCtx, event)
}

// process handles a single event. Per-event failures are isolated: they
// are logged (and reported to DM senders) but never stop the queue.
func (d *Dispatcher) process(ctx context.Context, event InboundEvent) {
	// Loop prevention: the bridge's own forwarded copy must never be
	// re-observed as new input. Checked before any lookup.
	if event.FromSelf {
		logger.Debugf("Dropping self-authored event in %s chat %d", event.Platform, event.ChatID)
		return
	}

	if d.commands != nil && d.commands.Handle(ctx, event) {
		return
	}

	if event.ChatKind == models.ChatKindDM && d.cfg.MirrorDMsToOperator {
		d.mirrorToOperator(ctx, event)
	}

	route, err := d.pairing.ResolveRoute(event.Platform, event.ChatID)
	if errors.Is(err, ErrNoRoute) {
		// Unpaired chats produce no output; this is normal.
		logger.Debugf("No route for %s chat %d", event.Platform, event.ChatID)
		return
	}
	if err != nil {
		logger.Errorf("Route resolution failed for %s chat %d: %v", event.Platform, event.ChatID, err)
		return
	}

	if err := d.forwardWithRetry(ctx, event, route); err != nil {
		logger.Warningf("Forward from %s chat %d to %s chat %d failed: %v",
			event.Platform, event.ChatID, route.TargetPlatform, route.TargetChatID, err)
		d.notifySenderOnFailure(ctx, event)
	}
}

// forwardWithRetry delivers the event, retrying a failed delivery exactly
// once. Media re-upload is not idempotent, so there is no second retry.
func (d *Dispatcher) forwardWithRetry(ctx context.Context, event InboundEvent, route models.Route) error {
	err := d.forward(ctx, event, route)
	if err == nil || ctx.Err() != nil {
		return err
	}
	logger.Debugf("Retrying forward to %s chat %d after error: %v", route.TargetPlatform, route.TargetChatID, err)
	return d.forward(ctx, event, route)
}

func (d *Dispatcher) forward(ctx context.Context, event InboundEvent, route models.Route) error {
	source, ok := d.clients[event.Platform]
	if !ok {
		return fmt.Errorf("no client for source platform %s", event.Platform)
	}
	target, ok := d.clients[route.TargetPlatform]
	if !ok {
		return fmt.Errorf("no client for target platform %s", route.TargetPlatform)
	}

	switch event.Kind {
	case MessageText:
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		defer cancel()
		return target.SendText(sendCtx, route.TargetChatID, d.formatText(event, event.Text))

	case MessagePhoto, MessageDocument, MessageVideo:
		fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		payload, err := source.FetchMedia(fetchCtx, event.MediaRef)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to fetch media: %w", err)
		}
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		defer cancel()
		caption := ""
		if event.Caption != "" || d.attributed(event) {
			caption = d.formatText(event, event.Caption)
		}
		return target.SendMedia(sendCtx, route.TargetChatID, event.Kind, payload, event.FileName, caption)

	default:
		logger.Debugf("Dropping unsupported %s message in %s chat %d", event.Kind, event.Platform, event.ChatID)
		return nil
	}
}

func (d *Dispatcher) attributed(event InboundEvent) bool {
	// Channel posts carry no meaningful author; they go through verbatim.
	return d.cfg.SenderAttribution && event.ChatKind != models.ChatKindChannel && event.SenderName != ""
}

func (d *Dispatcher) formatText(event InboundEvent, text string) string {
	if !d.attributed(event) {
		return text
	}
	if event.ChatKind == models.ChatKindDM {
		return fmt.Sprintf("[From %s DM] %s: %s", event.Platform, event.SenderName, text)
	}
	return fmt.Sprintf("%s sent this message: %s", event.SenderName, text)
}

// mirrorToOperator copies DM traffic to the configured operator chat on
// the same platform, for audit visibility. Best effort.
func (d *Dispatcher) mirrorToOperator(ctx context.Context, event InboundEvent) {
	operatorChatID, ok := d.cfg.OperatorChatIDs[event.Platform]
	if !ok || operatorChatID == 0 || operatorChatID == event.ChatID {
		return
	}
	client := d.clients[event.Platform]
	summary := event.Text
	if event.Kind != MessageText {
		summary = fmt.Sprintf("[%s] %s", event.Kind, event.Caption)
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()
	if err := client.SendText(sendCtx, operatorChatID, fmt.Sprintf("[%s DM] %s: %s", event.Platform, event.SenderName, summary)); err != nil {
		logger.Warningf("Operator mirror to %s chat %d failed: %v", event.Platform, operatorChatID, err)
	}
}

// notifySenderOnFailure tells a DM sender their message was not relayed.
// Group and channel failures are only logged.
func (d *Dispatcher) notifySenderOnFailure(ctx context.Context, event InboundEvent) {
	if event.ChatKind != models.ChatKindDM {
		return
	}
	client, ok := d.clients[event.Platform]
	if !ok {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()
	if err := client.SendText(sendCtx, event.ChatID, "⚠️ Your message could not be delivered to the paired chat."); err != nil {
		logger.Debugf("Failed to notify sender in %s chat %d: %v", event.Platform, event.ChatID, err)
	}
}
