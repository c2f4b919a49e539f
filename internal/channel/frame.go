package channel

import (
	"bytes"
	"encoding/json"
)

// ProtocolVersion is the header version sent with every command request.
const ProtocolVersion = 1

const messageCommandRequest = "commandRequest"

// RequestHeader field order is the wire order.
type RequestHeader struct {
	Version        int    `json:"version"`
	RequestID      string `json:"requestId"`
	MessageType    string `json:"messageType"`
	MessagePurpose string `json:"messagePurpose"`
}

type RequestBody struct {
	CommandLine string `json:"commandLine"`
}

// Request is the framed command sent to the peer.
type Request struct {
	Header RequestHeader `json:"header"`
	Body   RequestBody   `json:"body"`
}

// NewCommandRequest frames command under the correlation id.
func NewCommandRequest(requestID, command string) Request {
	return Request{
		Header: RequestHeader{
			Version:        ProtocolVersion,
			RequestID:      requestID,
			MessageType:    messageCommandRequest,
			MessagePurpose: messageCommandRequest,
		},
		Body: RequestBody{CommandLine: command},
	}
}

// Reply is the subset of an inbound frame the channel reads. Other fields are ignored.
type Reply struct {
	Header struct {
		RequestID string `json:"requestId"`
	} `json:"header"`
	Body *ReplyBody `json:"body"`
}

type ReplyBody struct {
	StatusMessage string `json:"statusMessage"`
	StatusCode    int    `json:"statusCode"`
}

// isKeepAlive reports an empty payload, which peers echo back for keep-alive frames.
func isKeepAlive(data []byte) bool {
	return len(bytes.TrimSpace(data)) == 0
}

func decodeReply(data []byte) (Reply, error) {
	var r Reply
	err := json.Unmarshal(data, &r)
	return r, err
}
