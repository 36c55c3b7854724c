// Package testkit provides deterministic clocks, ids, synthetic Lambda events and AWS client
// fakes for testing music API functions.
package testkit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"

	musicapi "github.com/theory-cloud/musicapi/runtime"
)

// Env bundles a manual clock and id generator.
type Env struct {
	Clock *ManualClock
	IDs   *ManualIDGenerator
}

func New() *Env {
	return NewWithTime(time.Unix(0, 0).UTC())
}

func NewWithTime(now time.Time) *Env {
	return &Env{
		Clock: NewManualClock(now),
		IDs:   NewManualIDGenerator(),
	}
}

// App builds an App wired to the env clock and ids. Later options win.
func (e *Env) App(opts ...musicapi.Option) *musicapi.App {
	combined := make([]musicapi.Option, 0, len(opts)+2)
	combined = append(combined, musicapi.WithClock(e.Clock), musicapi.WithIDGenerator(e.IDs))
	combined = append(combined, opts...)
	return musicapi.New(combined...)
}

func (e *Env) Invoke(ctx context.Context, app *musicapi.App, req musicapi.Request) musicapi.Response {
	if ctx == nil {
		ctx = context.Background()
	}
	return app.Serve(ctx, req)
}

// InvokeAPIGateway runs a REST API proxy event through app.
func (e *Env) InvokeAPIGateway(ctx context.Context, app *musicapi.App, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	if ctx == nil {
		ctx = context.Background()
	}
	return app.ServeAPIGatewayProxy(ctx, event)
}

// ManualClock is a mutable clock.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ musicapi.Clock = (*ManualClock)(nil)

func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	out := c.now
	c.mu.Unlock()
	return out
}

// ManualIDGenerator hands out queued ids first, then "test-id-N".
type ManualIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int64
	queue  []string
}

var _ musicapi.IDGenerator = (*ManualIDGenerator)(nil)

func NewManualIDGenerator() *ManualIDGenerator {
	return &ManualIDGenerator{prefix: "test-id", next: 1}
}

func (g *ManualIDGenerator) Queue(ids ...string) {
	g.mu.Lock()
	g.queue = append(g.queue, ids...)
	g.mu.Unlock()
}

func (g *ManualIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) > 0 {
		out := g.queue[0]
		g.queue = g.queue[1:]
		return out
	}

	out := fmt.Sprintf("%s-%s", g.prefix, strconv.FormatInt(g.next, 10))
	g.next++
	return out
}
