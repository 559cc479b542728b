package main

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns outgoing batches into websocket frames and incoming frames into
// payloads
type Codec interface {
	Name() string
	FrameType() int
	EncodeBatch(batch []Payload) ([]byte, error)
	Decode(data []byte) (Payload, error)
}

// CodecByName picks the codec for the ?enc= query value. Unknown names fall
// back to JSON.
func CodecByName(name string) Codec {
	if name == "msgpack" {
		return msgpackCodec{}
	}
	return jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return "json" }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) EncodeBatch(batch []Payload) ([]byte, error) {
	return json.Marshal(batch)
}

func (jsonCodec) Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return p, nil
}

// msgpackCodec is the binary variant, same array layout
type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return "msgpack" }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) EncodeBatch(batch []Payload) ([]byte, error) {
	return msgpack.Marshal(batch)
}

func (msgpackCodec) Decode(data []byte) (Payload, error) {
	var p []any
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	return Payload(p), nil
}
