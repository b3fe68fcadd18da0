// Package relay speaks the relay protocol: JSON arrays over a websocket,
// labelled EVENT, REQ, CLOSE, OK, EOSE and NOTICE.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/dialog/internal/event"
)

const (
	labelEvent  = "EVENT"
	labelReq    = "REQ"
	labelClose  = "CLOSE"
	labelOK     = "OK"
	labelEOSE   = "EOSE"
	labelNotice = "NOTICE"
)

// frame is one decoded wire message. Only the fields for its label are set.
type frame struct {
	Label    string
	SubID    string
	Event    *event.Event
	Filters  []event.Filter
	EventID  event.ID
	Accepted bool
	Message  string
}

func encode(parts ...any) ([]byte, error) {
	return json.Marshal(parts)
}

func decode(data []byte) (frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if len(raw) == 0 {
		return frame{}, errors.New("empty frame")
	}
	var f frame
	if err := json.Unmarshal(raw[0], &f.Label); err != nil {
		return frame{}, fmt.Errorf("decode label: %w", err)
	}
	arg := func(i int, v any) error {
		if i >= len(raw) {
			return fmt.Errorf("%s frame: missing field %d", f.Label, i)
		}
		if err := json.Unmarshal(raw[i], v); err != nil {
			return fmt.Errorf("%s frame field %d: %w", f.Label, i, err)
		}
		return nil
	}

	switch f.Label {
	case labelEvent:
		// client to relay: ["EVENT", ev]; relay to client: ["EVENT", sub, ev]
		if len(raw) == 2 {
			return f, arg(1, &f.Event)
		}
		if err := arg(1, &f.SubID); err != nil {
			return frame{}, err
		}
		return f, arg(2, &f.Event)
	case labelReq:
		if err := arg(1, &f.SubID); err != nil {
			return frame{}, err
		}
		for i := 2; i < len(raw); i++ {
			var flt event.Filter
			if err := arg(i, &flt); err != nil {
				return frame{}, err
			}
			f.Filters = append(f.Filters, flt)
		}
		return f, nil
	case labelClose, labelEOSE:
		return f, arg(1, &f.SubID)
	case labelOK:
		if err := arg(1, &f.EventID); err != nil {
			return frame{}, err
		}
		if err := arg(2, &f.Accepted); err != nil {
			return frame{}, err
		}
		if len(raw) > 3 {
			_ = arg(3, &f.Message)
		}
		return f, nil
	case labelNotice:
		return f, arg(1, &f.Message)
	}
	return frame{}, fmt.Errorf("unknown frame label %q", f.Label)
}
