// Package intent defines the action intents a user utterance can map to and
// the classifier that produces them.
package intent

// Tag names one action family.
type Tag string

const (
	FoodBooking        Tag = "food_booking"
	TicketBooking      Tag = "ticket_booking"
	FasterBookFood     Tag = "fasterbook_food"
	FasterBookMovie    Tag = "fasterbook_movie"
	FasterBookBookings Tag = "fasterbook_bookings"
	FasterBookMenu     Tag = "fasterbook_menu"
	RestaurantOrder    Tag = "restaurant_order"
	HotelBooking       Tag = "hotel_booking"
	FlightBooking      Tag = "flight_booking"
	RideBooking        Tag = "ride_booking"
	PlainReplyTag      Tag = "plain_reply"
	ImageGeneration    Tag = "image_generation"
)

var allTags = []Tag{
	FoodBooking, TicketBooking, FasterBookFood, FasterBookMovie, FasterBookBookings,
	FasterBookMenu, RestaurantOrder, HotelBooking, FlightBooking, RideBooking,
	PlainReplyTag, ImageGeneration,
}

// Tags returns every known tag.
func Tags() []Tag { return append([]Tag(nil), allTags...) }

// ActionTags returns the tags that drive a capability call.
func ActionTags() []Tag {
	out := make([]Tag, 0, len(allTags)-1)
	for _, t := range allTags {
		if t != PlainReplyTag {
			out = append(out, t)
		}
	}
	return out
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool {
	for _, k := range allTags {
		if k == t {
			return true
		}
	}
	return false
}

// Intent is a classified request: the action tag and the text it came from.
type Intent struct {
	Tag     Tag    `json:"tag"`
	RawText string `json:"raw_text"`
}

// Classification is the result of classifying one utterance. It is one of
// PlainReply, ImageRequest or ActionRequest.
type Classification interface {
	isClassification()
}

// PlainReply answers the user directly; no task is created.
type PlainReply struct {
	Text string
}

// ImageRequest asks for an image to be generated from Prompt.
type ImageRequest struct {
	Prompt string
}

// ActionRequest asks for Intent to be dispatched to a capability.
type ActionRequest struct {
	Intent Intent
}

func (PlainReply) isClassification()    {}
func (ImageRequest) isClassification()  {}
func (ActionRequest) isClassification() {}
