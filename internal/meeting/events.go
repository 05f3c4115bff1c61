package meeting

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lox/horserace/internal/race"
)

// EventType represents a meeting event type with type safety
type EventType string

// EventType constants for things that happen at the track
const (
	EventTypeRaceStart     EventType = "race_start"
	EventTypeRaceTick      EventType = "race_tick"
	EventTypeHorseFell     EventType = "horse_fell"
	EventTypeRaceEnd       EventType = "race_end"
	EventTypeBetPlaced     EventType = "bet_placed"
	EventTypeWeatherChange EventType = "weather_change"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// Event represents anything that happens during a meeting
type Event interface {
	EventType() EventType
	Timestamp() time.Time
}

// RaceStartEvent is published once the runners are at the start
type RaceStartEvent struct {
	Snapshot  race.Snapshot
	timestamp time.Time
}

func (e RaceStartEvent) EventType() EventType { return EventTypeRaceStart }
func (e RaceStartEvent) Timestamp() time.Time { return e.timestamp }

// RaceTickEvent is published after every tick
type RaceTickEvent struct {
	Report    race.TickReport
	Snapshot  race.Snapshot
	timestamp time.Time
}

func (e RaceTickEvent) EventType() EventType { return EventTypeRaceTick }
func (e RaceTickEvent) Timestamp() time.Time { return e.timestamp }

// HorseFellEvent is published for each fall
type HorseFellEvent struct {
	RaceID    string
	Tick      int
	Lane      int
	Symbol    string
	Name      string
	Distance  int
	timestamp time.Time
}

func (e HorseFellEvent) EventType() EventType { return EventTypeHorseFell }
func (e HorseFellEvent) Timestamp() time.Time { return e.timestamp }

// RaceEndEvent is published after settlement
type RaceEndEvent struct {
	Outcome   *Outcome
	Snapshot  race.Snapshot
	timestamp time.Time
}

func (e RaceEndEvent) EventType() EventType { return EventTypeRaceEnd }
func (e RaceEndEvent) Timestamp() time.Time { return e.timestamp }

// BetPlacedEvent is published when the player backs a horse
type BetPlacedEvent struct {
	Symbol    string
	Name      string
	Amount    decimal.Decimal
	Stake     decimal.Decimal // total now on this horse
	Balance   decimal.Decimal
	timestamp time.Time
}

func (e BetPlacedEvent) EventType() EventType { return EventTypeBetPlaced }
func (e BetPlacedEvent) Timestamp() time.Time { return e.timestamp }

// WeatherChangeEvent is published when the going changes
type WeatherChangeEvent struct {
	Weather   race.Condition
	timestamp time.Time
}

func (e WeatherChangeEvent) EventType() EventType { return EventTypeWeatherChange }
func (e WeatherChangeEvent) Timestamp() time.Time { return e.timestamp }

// EventSubscriber can subscribe to meeting events
type EventSubscriber interface {
	OnEvent(event Event)
}

// SubscriberFunc adapts a function to EventSubscriber
type SubscriberFunc func(Event)

func (f SubscriberFunc) OnEvent(event Event) { f(event) }

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber)
	Unsubscribe(subscriber EventSubscriber)
	Publish(event Event)
}

// SimpleEventBus is an in-memory event bus. Subscribers are called
// synchronously on the publishing goroutine and must not block.
type SimpleEventBus struct {
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *SimpleEventBus {
	return &SimpleEventBus{}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.subscribers = append(bus.subscribers, subscriber)
}

// Unsubscribe removes a subscriber from receiving events. SubscriberFunc
// values cannot be compared, so only pointer or comparable subscribers can be
// removed.
func (bus *SimpleEventBus) Unsubscribe(subscriber EventSubscriber) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, sub := range bus.subscribers {
		if sub == subscriber {
			bus.subscribers = append(bus.subscribers[:i:i], bus.subscribers[i+1:]...)
			break
		}
	}
}

// Publish sends an event to all subscribers
func (bus *SimpleEventBus) Publish(event Event) {
	bus.mu.RLock()
	subs := make([]EventSubscriber, len(bus.subscribers))
	copy(subs, bus.subscribers)
	bus.mu.RUnlock()

	for _, subscriber := range subs {
		subscriber.OnEvent(event)
	}
}
