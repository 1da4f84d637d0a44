package dispatch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/aura/capability"
	"github.com/GoCodeAlone/aura/intent"
)

// Extraction rules are plain regular expressions over the request text.
// Place names are title-cased; dates are ISO 8601 or today/tomorrow.

var (
	reFasterBook = regexp.MustCompile(`(?i)\s*\b(?:on|via|through|from|with|using|at|in)?\s*faster\s?book'?s?\b`)
	reTrailing   = regexp.MustCompile(`[\s,.!?;:]+$`)
	reSpaces     = regexp.MustCompile(`\s+`)

	reFoodVerb  = regexp.MustCompile(`(?i)\b(?:order|get|want|buy|deliver|bring|send|grab|craving|have)\s+(?:me\s+|us\s+)?(?:to\s+(?:order|get|have)\s+)?(.+)$`)
	reFoodQty   = regexp.MustCompile(`(?i)^(?:(\d+|a|an|one|two|three|four|five|six|seven|eight|nine|ten)\s+)?(?:some\s+|the\s+)?(?:(?:orders?|portions?|servings?|plates?)\s+of\s+)?(.+)$`)
	reFoodTail  = regexp.MustCompile(`(?i)\s+(?:please|now|asap|for\s+delivery|delivered|to\s+my\s+(?:home|place|house|office)|for\s+(?:lunch|dinner|breakfast|me|us)|tonight)$`)
	reCuisine   = regexp.MustCompile(`(?i)\b(italian|chinese|indian|thai|mexican|japanese|american|korean|french|mediterranean|vietnamese|greek)\b`)
	reTicketFor = regexp.MustCompile(`(?i)\b(?:tickets?|seats?|passes)\s+(?:for|to)\s+(?:the\s+)?(.+?)(?:\s+(?:at|on|tonight|tomorrow|today|this|next)\b.*)?$`)
	reWatch     = regexp.MustCompile(`(?i)\b(?:watch|see)\s+(?:the\s+)?(.+?)(?:\s+(?:at|on|tonight|tomorrow|today|this|next)\b.*)?$`)
	reMovie     = regexp.MustCompile(`(?i)\b(?:movie|film|show|concert)\s+(?:called\s+|named\s+)?(.+?)(?:\s+(?:at|on|tonight|tomorrow|today|this|next)\b.*)?$`)
	reShowWord  = regexp.MustCompile(`(?i)^(?:(?:see|watch)\s+)?(?:the\s+)?(?:(?:movie|film|show|concert)\s+)?`)
	reTicketQty = regexp.MustCompile(`(?i)\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+(?:tickets?|seats?|passes)\b`)
	reClock     = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	reISODate   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	reRelDate   = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow)\b`)
	reNights    = regexp.MustCompile(`(?i)\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+nights?\b`)
	reGuests    = regexp.MustCompile(`(?i)\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+(?:guests?|people|persons|adults|travell?ers|passengers?)\b`)
	rePrep      = map[string]*regexp.Regexp{}
	rePlace     = regexp.MustCompile(`(?i)^(?:the\s+)?(\p{L}[\p{L}0-9'. -]*?)(?:\s+(?:from|to|on|for|at|by|in|near|tomorrow|today|tonight|next|starting|with|please|and|departing|leaving|checking|around|this)\b|\s+\d{4}-\d{2}-\d{2}|\s*[,;]|$)`)

	reImageCmd = regexp.MustCompile(`(?i)^(?:please\s+)?(?:(?:can|could|would)\s+you\s+)?(?:please\s+)?(?:generate|create|draw|make|paint|render|design|show\s+me|give\s+me)\s+(?:me\s+)?(?:an?\s+|the\s+)?(?:image|picture|photo|drawing|painting|illustration|render)?\s*(?:of\s+)?`)
)

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// Verbs that follow "to" in phrases like "want to book"; never a place.
var verbs = map[string]bool{
	"book": true, "order": true, "get": true, "go": true, "have": true, "reserve": true,
	"make": true, "see": true, "watch": true, "buy": true, "fly": true, "travel": true,
	"take": true, "be": true, "find": true, "pick": true, "ride": true, "drive": true,
	"stay": true, "eat": true, "visit": true, "head": true,
}

// notCity marks leading words that start a noun phrase rather than a place,
// as in "stay in a hotel in Paris".
var notCity = map[string]bool{
	"a": true, "an": true, "my": true, "our": true, "your": true,
	"hotel": true, "hotels": true, "room": true, "rooms": true,
}

var titleCaser = cases.Title(language.English)

// now is the clock used to resolve relative dates.
var now = time.Now

func incomplete(tag intent.Tag, field string) error {
	return &IncompleteRequestError{Tag: tag, Field: field}
}

func clean(text string) string {
	s := reSpaces.ReplaceAllString(strings.TrimSpace(text), " ")
	return reTrailing.ReplaceAllString(s, "")
}

func withoutFasterBook(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(reFasterBook.ReplaceAllString(s, ""), " "))
}

func toNumber(s string) int {
	if n, ok := numberWords[strings.ToLower(s)]; ok {
		return n
	}
	n, _ := strconv.Atoi(s)
	return n
}

func title(s string) string {
	return titleCaser.String(strings.TrimSpace(s))
}

func prepRegexp(prep string) *regexp.Regexp {
	if re, ok := rePrep[prep]; ok {
		return re
	}
	return regexp.MustCompile(`(?i)\b` + prep + `\s+`)
}

func init() {
	for _, p := range []string{"to", "from", "in", "at", "near", "of", "for"} {
		rePrep[p] = regexp.MustCompile(`(?i)\b` + p + `\s+`)
	}
}

// placeAfter returns the first place name following one of preps, tried in
// order, together with the byte span of the whole "prep place" phrase.
func placeAfter(s string, preps ...string) (string, [2]int) {
	return placeAfterSkipping(s, nil, preps...)
}

// placeAfterSkipping is placeAfter but also passes over candidates whose
// first word is in skip.
func placeAfterSkipping(s string, skip map[string]bool, preps ...string) (string, [2]int) {
	for _, prep := range preps {
		for _, loc := range prepRegexp(prep).FindAllStringIndex(s, -1) {
			m := rePlace.FindStringSubmatchIndex(s[loc[1]:])
			if m == nil {
				continue
			}
			place := strings.TrimSpace(s[loc[1]+m[2] : loc[1]+m[3]])
			words := strings.Fields(place)
			if len(words) == 0 {
				continue
			}
			if first := strings.ToLower(words[0]); verbs[first] || skip[first] {
				continue
			}
			return place, [2]int{loc[0], loc[1] + m[3]}
		}
	}
	return "", [2]int{}
}

func date(s string) string {
	if m := reISODate.FindStringSubmatch(s); m != nil {
		if _, err := time.Parse(time.DateOnly, m[1]); err == nil {
			return m[1]
		}
	}
	if m := reRelDate.FindStringSubmatch(s); m != nil {
		d := now()
		if strings.EqualFold(m[1], "tomorrow") {
			d = d.AddDate(0, 0, 1)
		}
		return d.Format(time.DateOnly)
	}
	return ""
}

func clock(s string) string {
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	h, _ := strconv.Atoi(m[1])
	mins := 0
	if m[2] != "" {
		mins, _ = strconv.Atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	if h > 23 || mins > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, mins)
}

func setIf(fields map[string]string, key, val string) {
	if val != "" {
		fields[key] = val
	}
}

func setCount(fields map[string]string, key string, re *regexp.Regexp, s string) {
	if m := re.FindStringSubmatch(s); m != nil {
		if n := toNumber(m[1]); n > 0 {
			fields[key] = strconv.Itoa(n)
		}
	}
}

// foodRequest extracts item (required), quantity, cuisine and restaurant.
func foodRequest(tag intent.Tag, domain capability.Domain) RequestBuilder {
	return func(text string) (capability.Request, error) {
		s := withoutFasterBook(clean(text))
		fields := map[string]string{}

		if r, span := placeAfter(s, "from"); r != "" {
			fields["restaurant"] = title(r)
			s = strings.TrimSpace(s[:span[0]] + s[span[1]:])
		}
		if m := reCuisine.FindStringSubmatch(s); m != nil {
			fields["cuisine"] = strings.ToLower(m[1])
		}

		m := reFoodVerb.FindStringSubmatch(s)
		if m == nil {
			return capability.Request{}, incomplete(tag, "item")
		}
		rest := strings.TrimSpace(m[1])
		for {
			trimmed := reFoodTail.ReplaceAllString(rest, "")
			if trimmed == rest {
				break
			}
			rest = trimmed
		}
		q := reFoodQty.FindStringSubmatch(rest)
		item := strings.TrimSpace(q[2])
		if item == "" {
			return capability.Request{}, incomplete(tag, "item")
		}
		fields["item"] = item
		qty := 1
		if q[1] != "" {
			qty = toNumber(q[1])
		}
		fields["quantity"] = strconv.Itoa(qty)

		return capability.Request{Domain: domain, Fields: fields, RawText: text}, nil
	}
}

// ticketRequest extracts event (required), quantity and show time.
func ticketRequest(tag intent.Tag) RequestBuilder {
	return func(text string) (capability.Request, error) {
		s := withoutFasterBook(clean(text))
		fields := map[string]string{}

		var event string
		for _, re := range []*regexp.Regexp{reTicketFor, reWatch, reMovie} {
			if m := re.FindStringSubmatch(s); m != nil {
				event = strings.TrimSpace(reShowWord.ReplaceAllString(m[1], ""))
				break
			}
		}
		if event == "" {
			return capability.Request{}, incomplete(tag, "event")
		}
		fields["event"] = title(event)
		fields["quantity"] = "1"
		setCount(fields, "quantity", reTicketQty, s)
		setIf(fields, "time", clock(s))
		setIf(fields, "date", date(s))

		return capability.Request{Domain: capability.DomainTicketing, Fields: fields, RawText: text}, nil
	}
}

// hotelRequest extracts city (required), check-in date, nights and guests.
func hotelRequest(text string) (capability.Request, error) {
	s := clean(text)
	fields := map[string]string{}

	city, _ := placeAfterSkipping(s, notCity, "in", "near", "at")
	if city == "" {
		return capability.Request{}, incomplete(intent.HotelBooking, "city")
	}
	fields["city"] = title(city)

	dates := reISODate.FindAllString(s, 2)
	setIf(fields, "check_in", date(s))
	setCount(fields, "nights", reNights, s)
	if _, ok := fields["nights"]; !ok && len(dates) == 2 {
		in, err1 := time.Parse(time.DateOnly, dates[0])
		out, err2 := time.Parse(time.DateOnly, dates[1])
		if err1 == nil && err2 == nil && out.After(in) {
			fields["nights"] = strconv.Itoa(int(out.Sub(in).Hours() / 24))
		}
	}
	setCount(fields, "guests", reGuests, s)

	return capability.Request{Domain: capability.DomainHotel, Fields: fields, RawText: text}, nil
}

// flightRequest extracts from and to (required), date and passengers.
func flightRequest(text string) (capability.Request, error) {
	s := clean(text)
	fields := map[string]string{}

	from, _ := placeAfter(s, "from")
	if from == "" {
		return capability.Request{}, incomplete(intent.FlightBooking, "from")
	}
	to, _ := placeAfter(s, "to")
	if to == "" {
		return capability.Request{}, incomplete(intent.FlightBooking, "to")
	}
	fields["from"] = title(from)
	fields["to"] = title(to)
	setIf(fields, "date", date(s))
	setCount(fields, "passengers", reGuests, s)

	return capability.Request{Domain: capability.DomainFlight, Fields: fields, RawText: text}, nil
}

// rideRequest extracts destination (required) and pickup.
func rideRequest(text string) (capability.Request, error) {
	s := clean(text)
	fields := map[string]string{}

	dest, _ := placeAfter(s, "to")
	if dest == "" {
		return capability.Request{}, incomplete(intent.RideBooking, "destination")
	}
	fields["destination"] = title(dest)
	if pickup, _ := placeAfter(s, "from"); pickup != "" {
		fields["pickup"] = title(pickup)
	}
	setIf(fields, "time", clock(s))

	return capability.Request{Domain: capability.DomainRide, Fields: fields, RawText: text}, nil
}

// menuRequest extracts an optional restaurant.
func menuRequest(text string) (capability.Request, error) {
	s := withoutFasterBook(clean(text))
	fields := map[string]string{}
	if r, _ := placeAfter(s, "from", "at", "of", "for"); r != "" {
		fields["restaurant"] = title(r)
	}
	return capability.Request{Domain: capability.DomainMenu, Fields: fields, RawText: text}, nil
}

func bookingsRequest(text string) (capability.Request, error) {
	return capability.Request{Domain: capability.DomainBookings, Fields: map[string]string{}, RawText: text}, nil
}

// imageRequest extracts the prompt (required), dropping a leading command.
func imageRequest(text string) (capability.Request, error) {
	prompt := strings.TrimSpace(reImageCmd.ReplaceAllString(clean(text), ""))
	if prompt == "" {
		return capability.Request{}, incomplete(intent.ImageGeneration, "prompt")
	}
	return capability.Request{
		Domain:  capability.DomainImage,
		Fields:  map[string]string{"prompt": prompt},
		RawText: text,
	}, nil
}
