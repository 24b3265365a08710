package volumio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// engine.io v3 packet types, first byte of every frame
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// socket.io v2 packet types, first byte of an engine.io message
const (
	sioConnect    = '0'
	sioDisconnect = '1'
	sioEvent      = '2'
	sioError      = '4'
)

// openPacket is the handshake payload of an engine.io "0" frame
type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
}

// encodeEvent frames a socket.io event as 42["name",args...]
func encodeEvent(name string, args ...any) ([]byte, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, name)
	payload = append(payload, args...)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", name, err)
	}
	return append([]byte{eioMessage, sioEvent}, body...), nil
}

// decodeEvent parses the part of an event frame after "42".
// An optional ack id may precede the JSON array.
func decodeEvent(data []byte) (string, []json.RawMessage, error) {
	data = bytes.TrimLeft(data, "0123456789")
	if len(data) == 0 {
		return "", nil, errors.New("empty event")
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, fmt.Errorf("malformed event: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("event without name")
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name is not a string: %w", err)
	}
	return name, parts[1:], nil
}
