package agent

import (
	"encoding/json"
	"fmt"

	"github.com/GoCodeAlone/aura/capability"
	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/intent"
)

const (
	connectionApology = "I apologize, but I encountered a brief connection issue. Please try your message again, and I'll be ready to assist you."
	retryReply        = "I apologize, but I couldn't work out the details of that request. Please try again with a little more detail."
	imageFailure      = "I apologize, but I encountered an issue generating the image. Please try again with a different prompt."
)

var successReplies = map[intent.Tag]string{
	intent.FoodBooking:        "I've processed your food order! Here are the details:",
	intent.TicketBooking:      "I've booked your tickets! Here are the details:",
	intent.FasterBookFood:     "I've processed your FasterBook food order! Here are the details:",
	intent.FasterBookMovie:    "I've processed your FasterBook movie booking! Here are the details:",
	intent.FasterBookBookings: "Here are your FasterBook bookings:",
	intent.FasterBookMenu:     "Here's the FasterBook menu with all available items:",
	intent.RestaurantOrder:    "I've placed your restaurant order! Here are the details:",
	intent.HotelBooking:       "I've booked your hotel! Here are the details:",
	intent.FlightBooking:      "I've booked your flight! Here are the details:",
	intent.RideBooking:        "I've booked your ride! Here are the details:",
}

var failureReplies = map[intent.Tag]string{
	intent.FoodBooking:        "processing your food order",
	intent.TicketBooking:      "booking your tickets",
	intent.FasterBookFood:     "with your FasterBook food order",
	intent.FasterBookMovie:    "with your FasterBook movie booking",
	intent.FasterBookBookings: "retrieving your FasterBook bookings",
	intent.FasterBookMenu:     "retrieving the FasterBook menu",
	intent.RestaurantOrder:    "processing your restaurant order",
	intent.HotelBooking:       "booking your hotel",
	intent.FlightBooking:      "booking your flight",
	intent.RideBooking:        "booking your ride",
}

func successReply(tag intent.Tag) string {
	if s, ok := successReplies[tag]; ok {
		return s
	}
	return "Done! Here are the details:"
}

func failureReply(tag intent.Tag) string {
	if tag == intent.ImageGeneration {
		return imageFailure
	}
	what, ok := failureReplies[tag]
	if !ok {
		what = "with your request"
	}
	return fmt.Sprintf("I apologize, but I encountered an issue %s. Please try again.", what)
}

func imageReply(prompt string) string {
	return fmt.Sprintf("I've generated an image based on your request: \"%s\"", prompt)
}

func imageAttachment(payload json.RawMessage, prompt string) *conversation.Attachment {
	att := &conversation.Attachment{ImagePrompt: prompt}
	var img capability.GeneratedImage
	if err := json.Unmarshal(payload, &img); err == nil {
		att.ImageURL = img.ImageURL
	}
	return att
}
