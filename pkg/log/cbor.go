package log

import (
	"github.com/fxamacker/cbor/v2"
)

// A .svclog file is a CBOR sequence of Event values. Timestamps keep
// nanoseconds as RFC 3339 text so captures from both roles interleave
// correctly when merged.
var (
	eventEnc cbor.EncMode
	eventDec cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.NilContainers = cbor.NilContainerAsNull

	var err error
	if eventEnc, err = opts.EncMode(); err != nil {
		panic("log: invalid CBOR encode options: " + err.Error())
	}
	// Unknown keys are skipped so older readers accept newer captures.
	if eventDec, err = (cbor.DecOptions{DupMapKey: cbor.DupMapKeyQuiet}).DecMode(); err != nil {
		panic("log: invalid CBOR decode options: " + err.Error())
	}
}

// EncodeEvent encodes a single event.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEnc.Marshal(event)
}

// DecodeEvent decodes a single event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := eventDec.Unmarshal(data, &event)
	return event, err
}
