package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/aura/capability"
	"github.com/GoCodeAlone/aura/intent"
	"github.com/GoCodeAlone/aura/task"
)

type binding struct {
	domain   capability.Domain
	taskType task.Type
	build    RequestBuilder
	title    func(capability.Request) string
}

var bindings = map[intent.Tag]binding{
	intent.FoodBooking: {
		capability.DomainFoodDelivery, task.TypeRestaurant,
		foodRequest(intent.FoodBooking, capability.DomainFoodDelivery),
		func(r capability.Request) string { return "Food order: " + orderLine(r) },
	},
	intent.FasterBookFood: {
		capability.DomainFoodDelivery, task.TypeRestaurant,
		foodRequest(intent.FasterBookFood, capability.DomainFoodDelivery),
		func(r capability.Request) string { return "FasterBook food order: " + orderLine(r) },
	},
	intent.RestaurantOrder: {
		capability.DomainRestaurant, task.TypeRestaurant,
		foodRequest(intent.RestaurantOrder, capability.DomainRestaurant),
		func(r capability.Request) string {
			return "Restaurant order: " + orderLine(r) + suffixed(" from ", r.Field("restaurant"))
		},
	},
	intent.TicketBooking: {
		capability.DomainTicketing, task.TypeEcommerce,
		ticketRequest(intent.TicketBooking),
		func(r capability.Request) string { return "Tickets for " + r.Field("event") },
	},
	intent.FasterBookMovie: {
		capability.DomainTicketing, task.TypeEcommerce,
		ticketRequest(intent.FasterBookMovie),
		func(r capability.Request) string { return "FasterBook movie: " + r.Field("event") },
	},
	intent.FasterBookBookings: {
		capability.DomainBookings, task.TypeGeneric, bookingsRequest,
		func(capability.Request) string { return "FasterBook bookings lookup" },
	},
	intent.FasterBookMenu: {
		capability.DomainMenu, task.TypeGeneric, menuRequest,
		func(r capability.Request) string { return "FasterBook menu" + suffixed(" for ", r.Field("restaurant")) },
	},
	intent.HotelBooking: {
		capability.DomainHotel, task.TypeHotel, hotelRequest,
		func(r capability.Request) string { return "Hotel booking in " + r.Field("city") },
	},
	intent.FlightBooking: {
		capability.DomainFlight, task.TypeFlight, flightRequest,
		func(r capability.Request) string { return fmt.Sprintf("Flight from %s to %s", r.Field("from"), r.Field("to")) },
	},
	intent.RideBooking: {
		capability.DomainRide, task.TypeRide, rideRequest,
		func(r capability.Request) string { return "Ride to " + r.Field("destination") },
	},
	intent.ImageGeneration: {
		capability.DomainImage, task.TypeGeneric, imageRequest,
		func(r capability.Request) string { return "Image: " + truncate(r.Field("prompt"), 60) },
	},
}

// StandardRoutes binds every action tag whose capability domain is present in caps.
func StandardRoutes(caps *capability.Registry) []Route {
	routes := make([]Route, 0, len(bindings))
	for _, tag := range intent.ActionTags() {
		b, ok := bindings[tag]
		if !ok {
			continue
		}
		p, ok := caps.Get(b.domain)
		if !ok {
			continue
		}
		routes = append(routes, Route{
			Tag:        tag,
			TaskType:   b.taskType,
			Capability: p,
			Build:      b.build,
			Title:      b.title,
		})
	}
	return routes
}

// RegisterStandard registers StandardRoutes(caps) on d.
func (d *Dispatcher) RegisterStandard(caps *capability.Registry) error {
	for _, r := range StandardRoutes(caps) {
		if err := d.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// DomainFor returns the capability domain an action tag is served by.
func DomainFor(tag intent.Tag) (capability.Domain, bool) {
	b, ok := bindings[tag]
	return b.domain, ok
}

// TaskTypeFor returns the task type recorded for an action tag.
func TaskTypeFor(tag intent.Tag) task.Type {
	if b, ok := bindings[tag]; ok {
		return b.taskType
	}
	return task.TypeGeneric
}

// PayloadFor decodes a completed task's api_response into its typed form.
// The task's action tag selects the shape.
func PayloadFor(t task.Task) (any, error) {
	if len(t.APIResponse) == 0 {
		return nil, errors.New("task has no payload")
	}
	domain, ok := DomainFor(intent.Tag(t.Action))
	if !ok {
		return nil, fmt.Errorf("task %s: unknown action %q", t.ID, t.Action)
	}
	return capability.DecodePayload(domain, t.APIResponse)
}

func orderLine(r capability.Request) string {
	if q := r.Field("quantity"); q != "" && q != "1" {
		return q + " x " + r.Field("item")
	}
	return r.Field("item")
}

func suffixed(sep, s string) string {
	if s == "" {
		return ""
	}
	return sep + s
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
