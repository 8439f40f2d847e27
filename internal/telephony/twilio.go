package telephony

import (
	"fmt"
	"strings"
)

// Twilio media stream events.
const (
	eventConnected = "connected"
	eventStart     = "start"
	eventMedia     = "media"
	eventMark      = "mark"
	eventStop      = "stop"
)

type twilioEvent struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Start     *twilioStart `json:"start,omitempty"`
	Media     *twilioMedia `json:"media,omitempty"`
	Mark      *twilioMark  `json:"mark,omitempty"`
}

type twilioStart struct {
	StreamSid string `json:"streamSid"`
	CallSid   string `json:"callSid"`
}

type twilioMedia struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

type twilioMark struct {
	Name string `json:"name"`
}

func newMediaMessage(streamSid, payload string) twilioEvent {
	return twilioEvent{Event: eventMedia, StreamSid: streamSid, Media: &twilioMedia{Payload: payload}}
}

func newMarkMessage(streamSid, name string) twilioEvent {
	return twilioEvent{Event: eventMark, StreamSid: streamSid, Mark: &twilioMark{Name: name}}
}

// streamTwiML answers an incoming call by connecting it to the media stream.
func streamTwiML(host string) string {
	host = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://"), "/")
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
	<Connect>
		<Stream url="wss://%s/stream" />
	</Connect>
</Response>`, host)
}
