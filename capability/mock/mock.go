// Package mock provides in-process booking providers for every capability
// domain. Confirmed bookings are recorded on a shared Ledger so the bookings
// lookup can list them.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/aura/capability"
)

// Ledger records bookings confirmed by the mock providers. Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	bookings []capability.BookingSummary
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger { return &Ledger{} }

// Record appends a confirmed booking.
func (l *Ledger) Record(b capability.BookingSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bookings = append(l.bookings, b)
}

// Bookings returns the recorded bookings, newest first.
func (l *Ledger) Bookings() []capability.BookingSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capability.BookingSummary, len(l.bookings))
	for i, b := range l.bookings {
		out[len(l.bookings)-1-i] = b
	}
	return out
}

// Option configures a mock Provider.
type Option func(*Provider)

// WithLatency delays every Invoke by d, honouring ctx cancellation.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailure makes every Invoke return err.
func WithFailure(err error) Option {
	return func(p *Provider) { p.fail = err }
}

// WithLedger shares l across providers.
func WithLedger(l *Ledger) Option {
	return func(p *Provider) { p.ledger = l }
}

// WithClock overrides the time source used for dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

type handler func(p *Provider, req capability.Request) (any, error)

// Provider is a mock capability.Provider for a single domain.
type Provider struct {
	domain  capability.Domain
	handle  handler
	latency time.Duration
	fail    error
	ledger  *Ledger
	now     func() time.Time

	mu    sync.Mutex
	calls []capability.Request
}

var handlers = map[capability.Domain]handler{
	capability.DomainRestaurant:   restaurantOrder,
	capability.DomainHotel:        hotelBooking,
	capability.DomainFlight:       flightBooking,
	capability.DomainRide:         rideBooking,
	capability.DomainTicketing:    ticketBooking,
	capability.DomainFoodDelivery: foodOrder,
	capability.DomainMenu:         menu,
	capability.DomainBookings:     bookings,
}

// New creates the mock for domain.
func New(domain capability.Domain, opts ...Option) (*Provider, error) {
	h, ok := handlers[domain]
	if !ok {
		return nil, fmt.Errorf("mock: no provider for domain %q", domain)
	}
	p := &Provider{domain: domain, handle: h, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.ledger == nil {
		p.ledger = NewLedger()
	}
	return p, nil
}

// Register binds a mock for every booking domain to reg, all sharing one
// Ledger. The image domain is left to a real image generator.
func Register(reg *capability.Registry, opts ...Option) (*Ledger, error) {
	ledger := NewLedger()
	opts = append([]Option{WithLedger(ledger)}, opts...)
	for _, d := range capability.Domains() {
		if _, ok := handlers[d]; !ok {
			continue
		}
		p, err := New(d, opts...)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(d, p); err != nil {
			return nil, err
		}
	}
	return ledger, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "mock:" + string(p.domain) }

// Invoke fabricates a confirmation for req.
func (p *Provider) Invoke(ctx context.Context, req capability.Request) (json.RawMessage, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, capability.Unavailable(ctx.Err().Error())
		case <-timer.C:
		}
	}
	if p.fail != nil {
		return nil, p.fail
	}
	v, err := p.handle(p, req)
	if err != nil {
		return nil, err
	}
	return capability.Encode(v)
}

// Calls returns the requests received so far.
func (p *Provider) Calls() []capability.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capability.Request(nil), p.calls...)
}

func (p *Provider) record(id, summary string, amount float64) {
	p.ledger.Record(capability.BookingSummary{
		ID:        id,
		Domain:    p.domain,
		Summary:   summary,
		Amount:    amount,
		CreatedAt: p.now().UTC().Format(time.RFC3339),
	})
}

func confirmation(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func intField(req capability.Request, name string, def int) int {
	n, err := strconv.Atoi(req.Field(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

const defaultRestaurant = "FasterBook Kitchen"

var catalog = []capability.OrderItem{
	{Name: "Margherita Pizza", Price: 12.99, Category: "pizza"},
	{Name: "Pepperoni Pizza", Price: 14.49, Category: "pizza"},
	{Name: "Chicken Biryani", Price: 13.50, Category: "indian"},
	{Name: "Paneer Tikka", Price: 11.25, Category: "indian"},
	{Name: "Pad Thai", Price: 12.00, Category: "thai"},
	{Name: "California Roll", Price: 9.75, Category: "japanese"},
	{Name: "Cheeseburger", Price: 10.50, Category: "american"},
	{Name: "Caesar Salad", Price: 8.25, Category: "salad"},
}

const defaultItemPrice = 11.99

func priceOf(item string) float64 {
	for _, c := range catalog {
		if strings.EqualFold(c.Name, item) || strings.Contains(strings.ToLower(c.Name), strings.ToLower(item)) {
			return c.Price
		}
	}
	return defaultItemPrice
}

func restaurantOrder(p *Provider, req capability.Request) (any, error) {
	item, err := req.Require("item")
	if err != nil {
		return nil, err
	}
	qty := intField(req, "quantity", 1)
	total := round2(priceOf(item) * float64(qty))
	order := capability.RestaurantOrder{
		OrderID:           confirmation("R"),
		Restaurant:        req.FieldOr("restaurant", defaultRestaurant),
		Items:             []capability.OrderItem{{Name: item, Quantity: qty, Price: priceOf(item)}},
		EstimatedDelivery: p.now().Add(35 * time.Minute).UTC().Format(time.RFC3339),
		TotalAmount:       total,
		Status:            "confirmed",
	}
	p.record(order.OrderID, fmt.Sprintf("%d x %s from %s", qty, item, order.Restaurant), total)
	return order, nil
}

func foodOrder(p *Provider, req capability.Request) (any, error) {
	item, err := req.Require("item")
	if err != nil {
		return nil, err
	}
	qty := intField(req, "quantity", 1)
	total := round2(priceOf(item) * float64(qty))
	order := capability.FoodOrder{
		OrderID:           confirmation("F"),
		Item:              item,
		Cuisine:           req.Field("cuisine"),
		Quantity:          qty,
		Restaurant:        req.FieldOr("restaurant", defaultRestaurant),
		EstimatedDelivery: p.now().Add(30 * time.Minute).UTC().Format(time.RFC3339),
		TotalAmount:       total,
	}
	p.record(order.OrderID, fmt.Sprintf("%d x %s delivered from %s", qty, item, order.Restaurant), total)
	return order, nil
}

const nightlyRate = 149.0

func hotelBooking(p *Provider, req capability.Request) (any, error) {
	city, err := req.Require("city")
	if err != nil {
		return nil, err
	}
	nights := intField(req, "nights", 1)
	checkIn := p.now().AddDate(0, 0, 1)
	if d := req.Field("check_in"); d != "" {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return nil, capability.Rejected("invalid check-in date " + d)
		}
		checkIn = t
	}
	total := round2(nightlyRate * float64(nights))
	b := capability.HotelBooking{
		BookingID:   confirmation("H"),
		HotelName:   "Grand " + city,
		City:        city,
		CheckIn:     checkIn.Format(time.DateOnly),
		CheckOut:    checkIn.AddDate(0, 0, nights).Format(time.DateOnly),
		Nights:      nights,
		Guests:      intField(req, "guests", 1),
		TotalAmount: total,
	}
	p.record(b.BookingID, fmt.Sprintf("%s, %d night(s) from %s", b.HotelName, nights, b.CheckIn), total)
	return b, nil
}

const flightFare = 249.0

func flightBooking(p *Provider, req capability.Request) (any, error) {
	from, err := req.Require("from")
	if err != nil {
		return nil, err
	}
	to, err := req.Require("to")
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(from, to) {
		return nil, capability.Rejected("origin and destination are the same")
	}
	date := req.FieldOr("date", p.now().AddDate(0, 0, 7).Format(time.DateOnly))
	pax := intField(req, "passengers", 1)
	total := round2(flightFare * float64(pax))
	b := capability.FlightBooking{
		BookingID:     confirmation("FL"),
		FlightNumber:  fmt.Sprintf("FB%03d", len(from)*37+len(to)*11),
		Airline:       "FasterBook Air",
		From:          from,
		To:            to,
		DepartureDate: date,
		Passengers:    pax,
		TotalAmount:   total,
	}
	p.record(b.BookingID, fmt.Sprintf("%s %s to %s on %s", b.FlightNumber, from, to, date), total)
	return b, nil
}

func rideBooking(p *Provider, req capability.Request) (any, error) {
	dest, err := req.Require("destination")
	if err != nil {
		return nil, err
	}
	b := capability.RideBooking{
		BookingID:        confirmation("RD"),
		Pickup:           req.FieldOr("pickup", "Current location"),
		Dropoff:          dest,
		DriverName:       "Alex",
		Vehicle:          "Toyota Prius",
		EstimatedArrival: p.now().Add(6 * time.Minute).UTC().Format(time.RFC3339),
		Fare:             18.50,
	}
	p.record(b.BookingID, fmt.Sprintf("ride from %s to %s", b.Pickup, dest), b.Fare)
	return b, nil
}

const ticketPrice = 15.0

func ticketBooking(p *Provider, req capability.Request) (any, error) {
	event, err := req.Require("event")
	if err != nil {
		return nil, err
	}
	qty := intField(req, "quantity", 1)
	seats := make([]string, qty)
	for i := range seats {
		seats[i] = fmt.Sprintf("F%d", i+1)
	}
	total := round2(ticketPrice * float64(qty))
	b := capability.TicketBooking{
		BookingID:   confirmation("T"),
		Event:       event,
		Venue:       "FasterBook Cinema",
		ShowTime:    req.FieldOr("time", "19:00"),
		Quantity:    qty,
		Seats:       seats,
		TotalAmount: total,
	}
	p.record(b.BookingID, fmt.Sprintf("%d ticket(s) for %s at %s", qty, event, b.ShowTime), total)
	return b, nil
}

func menu(_ *Provider, req capability.Request) (any, error) {
	return capability.Menu{
		Restaurant: req.FieldOr("restaurant", defaultRestaurant),
		Items:      append([]capability.OrderItem(nil), catalog...),
	}, nil
}

func bookings(p *Provider, _ capability.Request) (any, error) {
	list := p.ledger.Bookings()
	if list == nil {
		list = []capability.BookingSummary{}
	}
	return capability.BookingsList{Bookings: list}, nil
}
