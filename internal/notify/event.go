package notify

import (
	"encoding/json"
	"fmt"
)

func marshalEvent(ev NewOrdersEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal new orders event: %w", err)
	}
	return body, nil
}

// DecodeEvent parses a NewOrdersEvent message body.
func DecodeEvent(body []byte) (NewOrdersEvent, error) {
	var ev NewOrdersEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("decode new orders event: %w", err)
	}
	if ev.Count == 0 {
		ev.Count = len(ev.OrderIDs)
	}
	return ev, nil
}
