package capability

import (
	"encoding/json"
	"fmt"
)

// Typed shapes of each domain's response. Providers may return extra fields;
// the raw JSON is what gets stored on a task.

// RestaurantOrder is returned by the restaurant domain.
type RestaurantOrder struct {
	OrderID           string      `json:"orderId"`
	Restaurant        string      `json:"restaurant"`
	Items             []OrderItem `json:"items,omitempty"`
	EstimatedDelivery string      `json:"estimatedDelivery"`
	TotalAmount       float64     `json:"totalAmount"`
	Status            string      `json:"status,omitempty"`
}

// OrderItem is one line of an order or menu.
type OrderItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity,omitempty"`
	Price    float64 `json:"price"`
	Category string  `json:"category,omitempty"`
}

// HotelBooking is returned by the hotel domain.
type HotelBooking struct {
	BookingID   string  `json:"bookingId"`
	HotelName   string  `json:"hotelName"`
	City        string  `json:"city,omitempty"`
	CheckIn     string  `json:"checkIn"`
	CheckOut    string  `json:"checkOut,omitempty"`
	Nights      int     `json:"nights,omitempty"`
	Guests      int     `json:"guests,omitempty"`
	TotalAmount float64 `json:"totalAmount"`
}

// FlightBooking is returned by the flight domain.
type FlightBooking struct {
	BookingID     string  `json:"bookingId"`
	FlightNumber  string  `json:"flightNumber"`
	Airline       string  `json:"airline,omitempty"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	DepartureDate string  `json:"departureDate,omitempty"`
	Passengers    int     `json:"passengers,omitempty"`
	TotalAmount   float64 `json:"totalAmount"`
}

// RideBooking is returned by the ride domain.
type RideBooking struct {
	BookingID        string  `json:"bookingId"`
	Pickup           string  `json:"pickup"`
	Dropoff          string  `json:"dropoff"`
	DriverName       string  `json:"driverName"`
	Vehicle          string  `json:"vehicle"`
	EstimatedArrival string  `json:"estimatedArrival"`
	Fare             float64 `json:"fare"`
}

// TicketBooking is returned by the ticketing domain.
type TicketBooking struct {
	BookingID   string   `json:"bookingId"`
	Event       string   `json:"event"`
	Venue       string   `json:"venue,omitempty"`
	ShowTime    string   `json:"showTime,omitempty"`
	Quantity    int      `json:"quantity"`
	Seats       []string `json:"seats,omitempty"`
	TotalAmount float64  `json:"totalAmount"`
}

// FoodOrder is returned by the food delivery domain.
type FoodOrder struct {
	OrderID           string  `json:"orderId"`
	Item              string  `json:"item"`
	Cuisine           string  `json:"cuisine,omitempty"`
	Quantity          int     `json:"quantity"`
	Restaurant        string  `json:"restaurant"`
	EstimatedDelivery string  `json:"estimatedDelivery"`
	TotalAmount       float64 `json:"totalAmount"`
}

// Menu is returned by the menu domain.
type Menu struct {
	Restaurant string      `json:"restaurant"`
	Items      []OrderItem `json:"items"`
}

// BookingSummary is one entry of a BookingsList.
type BookingSummary struct {
	ID        string  `json:"id"`
	Domain    Domain  `json:"domain"`
	Summary   string  `json:"summary"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"createdAt"`
}

// BookingsList is returned by the bookings lookup domain.
type BookingsList struct {
	Bookings []BookingSummary `json:"bookings"`
}

// GeneratedImage is returned by the image domain.
type GeneratedImage struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
}

// DecodePayload decodes raw into the typed shape for domain.
func DecodePayload(domain Domain, raw json.RawMessage) (any, error) {
	var v any
	switch domain {
	case DomainRestaurant:
		v = &RestaurantOrder{}
	case DomainHotel:
		v = &HotelBooking{}
	case DomainFlight:
		v = &FlightBooking{}
	case DomainRide:
		v = &RideBooking{}
	case DomainTicketing:
		v = &TicketBooking{}
	case DomainFoodDelivery:
		v = &FoodOrder{}
	case DomainMenu:
		v = &Menu{}
	case DomainBookings:
		v = &BookingsList{}
	case DomainImage:
		v = &GeneratedImage{}
	default:
		return nil, fmt.Errorf("decode payload: unknown domain %q", domain)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", domain, err)
	}
	return v, nil
}

// Encode marshals a typed payload for return from Invoke.
func Encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
