package stack

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/codex-k8s/stacksync/internal/logging"
)

// DefaultPollInterval is the delay between two event polls.
const DefaultPollInterval = 500 * time.Millisecond

// Event is one lifecycle event of a stack or one of its resources.
type Event struct {
	ID                 string
	Timestamp          time.Time
	LogicalResourceID  string
	PhysicalResourceID string
	ResourceType       string
	ResourceStatus     types.ResourceStatus
	Reason             string
	ClientRequestToken string
}

func eventFromSDK(ev types.StackEvent) Event {
	return Event{
		ID:                 aws.ToString(ev.EventId),
		Timestamp:          aws.ToTime(ev.Timestamp),
		LogicalResourceID:  aws.ToString(ev.LogicalResourceId),
		PhysicalResourceID: aws.ToString(ev.PhysicalResourceId),
		ResourceType:       aws.ToString(ev.ResourceType),
		ResourceStatus:     ev.ResourceStatus,
		Reason:             aws.ToString(ev.ResourceStatusReason),
		ClientRequestToken: aws.ToString(ev.ClientRequestToken),
	}
}

// EventHandler receives stack events. Calls are made from a single goroutine.
type EventHandler func(Event)

// EventCursor remembers which events of one run were already delivered.
type EventCursor struct {
	start time.Time
	seen  map[string]struct{}
}

// NewEventCursor returns a cursor admitting events strictly after start.
func NewEventCursor(start time.Time) *EventCursor {
	return &EventCursor{start: start, seen: make(map[string]struct{})}
}

// Admit returns the events that were not delivered before and happened strictly
// after the cursor start, oldest first, and marks them delivered.
func (c *EventCursor) Admit(events []Event) []Event {
	var fresh []Event
	for _, ev := range events {
		if ev.ID == "" || !ev.Timestamp.After(c.start) {
			continue
		}
		if _, ok := c.seen[ev.ID]; ok {
			continue
		}
		c.seen[ev.ID] = struct{}{}
		fresh = append(fresh, ev)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Timestamp.Before(fresh[j].Timestamp)
	})
	return fresh
}

// EventBridge polls the events of one stack and forwards new ones to a handler.
type EventBridge struct {
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
	drainOnce sync.Once
	poller    *poller
}

// StartEventBridge begins polling the events of the named stack every interval.
// Polling stops when Stop is called or ctx is done.
func StartEventBridge(
	ctx context.Context,
	api EventsAPI,
	name string,
	start time.Time,
	interval time.Duration,
	handler EventHandler,
	logger *slog.Logger,
) *EventBridge {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if handler == nil {
		handler = func(Event) {}
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &poller{
		api:     api,
		name:    name,
		cursor:  NewEventCursor(start),
		handler: handler,
		logger:  logging.OrDiscard(logger),
	}
	b := &EventBridge{
		cancel: cancel,
		done:   make(chan struct{}),
		poller: p,
	}
	go p.run(ctx, interval, b.done)
	return b
}

// Stop cancels polling and waits until the polling goroutine has exited, so the
// handler is never invoked after Stop returns. It is safe to call more than once.
func (b *EventBridge) Stop() {
	b.once.Do(b.cancel)
	<-b.done
}

// Drain stops polling like Stop, then polls once more on the calling goroutine
// and delivers the events the last tick missed, typically the stack's own
// terminal event. The handler is not invoked after Drain returns.
func (b *EventBridge) Drain(ctx context.Context) {
	b.Stop()
	b.drainOnce.Do(func() {
		p := b.poller
		events, err := p.poll(ctx)
		if err != nil {
			p.logger.Debug("final poll of stack events failed", "stack", p.name, "error", err)
			return
		}
		for _, ev := range p.cursor.Admit(events) {
			p.handler(ev)
		}
	})
}

type poller struct {
	api     EventsAPI
	name    string
	cursor  *EventCursor
	handler EventHandler
	logger  *slog.Logger
}

func (p *poller) run(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		events, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Debug("poll stack events failed", "stack", p.name, "error", err)
			continue
		}
		for _, ev := range p.cursor.Admit(events) {
			if ctx.Err() != nil {
				return
			}
			p.handler(ev)
		}
	}
}

// poll reads event pages, newest first, until it reaches events older than the cursor start.
func (p *poller) poll(ctx context.Context) ([]Event, error) {
	input := &cloudformation.DescribeStackEventsInput{StackName: aws.String(p.name)}
	var events []Event
	for {
		out, err := p.api.DescribeStackEvents(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe stack events: %w", err)
		}
		reachedStart := false
		for _, raw := range out.StackEvents {
			ev := eventFromSDK(raw)
			if !ev.Timestamp.After(p.cursor.start) {
				reachedStart = true
			}
			events = append(events, ev)
		}
		if reachedStart || aws.ToString(out.NextToken) == "" {
			return events, nil
		}
		input.NextToken = out.NextToken
	}
}
