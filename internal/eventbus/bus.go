// Package eventbus реализует публикацию событий подключённым клиентам в
// двух областях: все устройства одного аккаунта и все администраторы.
// События не сохраняются и не повторяются; доставка получателю никогда
// не блокирует публикацию.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/metrics"
)

// ErrNoSubscribers событие не получил ни один локальный подписчик.
var ErrNoSubscribers = errors.New("no connected subscribers")

type ScopeKind string

const (
	ScopeAccount ScopeKind = "account"
	ScopeAdmin   ScopeKind = "admin"
)

// Scope область доставки события.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	Key  string    `json:"key,omitempty"`
}

func AccountScope(accountID string) Scope {
	return Scope{Kind: ScopeAccount, Key: accountID}
}

func AdminScope() Scope {
	return Scope{Kind: ScopeAdmin}
}

func (s Scope) String() string {
	if s.Key == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Key
}

// Message кадр, который получает клиент.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Subscriber получатель событий. Send не должен блокироваться и
// возвращает false, если сообщение не принято.
type Subscriber interface {
	ID() string
	Send(msg []byte) bool
}

// Forwarder пересылает опубликованное событие другим экземплярам.
type Forwarder interface {
	Forward(ctx context.Context, scope Scope, event string, data json.RawMessage) error
}

type Bus struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	scopes map[Scope]map[string]Subscriber
	subs   map[string]int
	relay  Forwarder
}

func New(log *slog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		log:     log,
		metrics: m,
		scopes:  make(map[Scope]map[string]Subscriber),
		subs:    make(map[string]int),
	}
}

// SetRelay подключает межэкземплярную ретрансляцию.
func (b *Bus) SetRelay(f Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = f
}

func (b *Bus) Subscribe(scope Scope, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.scopes[scope]
	if !ok {
		set = make(map[string]Subscriber)
		b.scopes[scope] = set
	}
	if _, dup := set[sub.ID()]; dup {
		return
	}
	set[sub.ID()] = sub
	b.subs[sub.ID()]++
}

// Unsubscribe удаляет подписчика из всех областей.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for scope, set := range b.scopes {
		if _, ok := set[sub.ID()]; !ok {
			continue
		}
		delete(set, sub.ID())
		if len(set) == 0 {
			delete(b.scopes, scope)
		}
	}
	delete(b.subs, sub.ID())
}

// Publish доставляет событие всем подписчикам области, подключённым в
// момент вызова, и передаёт его ретранслятору. Если локально событие не
// получил никто, возвращает ErrNoSubscribers. Доставка через ретранслятор
// локальной не считается.
func (b *Bus) Publish(ctx context.Context, scope Scope, event string, payload any) error {
	const op = "eventbus.Publish"

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	delivered := b.Deliver(scope, event, data)

	b.mu.RLock()
	relay := b.relay
	b.mu.RUnlock()
	if relay != nil {
		if err := relay.Forward(ctx, scope, event, data); err != nil {
			b.log.Warn("relay forward failed",
				slog.String("event", event),
				slog.String("scope", scope.String()),
				sl.Err(err),
			)
		}
	}

	if delivered == 0 {
		return fmt.Errorf("%s: %s to %s: %w", op, event, scope, ErrNoSubscribers)
	}
	return nil
}

// Deliver отправляет событие только локальным подписчикам области и
// возвращает число принявших его.
func (b *Bus) Deliver(scope Scope, event string, data json.RawMessage) int {
	msg, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		b.log.Error("failed to encode event", slog.String("event", event), sl.Err(err))
		return 0
	}

	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.scopes[scope]))
	for _, sub := range b.scopes[scope] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, sub := range targets {
		if sub.Send(msg) {
			delivered++
			continue
		}
		dropped++
		b.log.Warn("subscriber buffer full, event skipped",
			slog.String("event", event),
			slog.String("subscriber", sub.ID()),
		)
	}
	b.metrics.EventPublished(event, delivered, dropped)
	return delivered
}

// Subscribers число подписчиков области.
func (b *Bus) Subscribers(scope Scope) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.scopes[scope])
}

// Connected число уникальных подписчиков.
func (b *Bus) Connected() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
