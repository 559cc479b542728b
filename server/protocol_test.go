package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name string
		in   Payload
		want Inbound
	}{
		{"hello", Payload{float64(MsgHello), "  ace  "}, Inbound{Op: MsgHello, Name: "ace"}},
		{"hello blank", Payload{float64(MsgHello), ""}, Inbound{Op: MsgHello, Name: "Tanker"}},
		{"hello bare", Payload{float64(MsgHello)}, Inbound{Op: MsgHello}},
		{"connect", Payload{float64(MsgConnect), float64(2)}, Inbound{Op: MsgConnect, GameID: 2}},
		{"connect msgpack", Payload{int8(MsgConnect), uint8(3)}, Inbound{Op: MsgConnect, GameID: 3}},
		{"move", Payload{float64(MsgMove), float64(OrientLeft)}, Inbound{Op: MsgMove, Orientation: OrientLeft}},
		{"chat", Payload{float64(MsgChat), " gg "}, Inbound{Op: MsgChat, Text: "gg"}},
		{"ready", Payload{float64(MsgIReady)}, Inbound{Op: MsgIReady}},
		{"spawn", Payload{int64(MsgSpawn)}, Inbound{Op: MsgSpawn}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseInboundRejects(t *testing.T) {
	tests := []struct {
		name string
		in   Payload
	}{
		{"empty", Payload{}},
		{"string opcode", Payload{"move"}},
		{"fractional opcode", Payload{5.5}},
		{"server opcode", Payload{float64(MsgGameData)}},
		{"unknown opcode", Payload{float64(77)}},
		{"hello name type", Payload{float64(MsgHello), 3.0}},
		{"connect no id", Payload{float64(MsgConnect)}},
		{"connect id type", Payload{float64(MsgConnect), "one"}},
		{"move bad orientation", Payload{float64(MsgMove), float64(0)}},
		{"move no orientation", Payload{float64(MsgMove)}},
		{"chat blank", Payload{float64(MsgChat), "   "}},
		{"chat type", Payload{float64(MsgChat), true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseInbound(tt.in); !errors.Is(err, ErrBadMessage) {
				t.Errorf("expected ErrBadMessage, got %v", err)
			}
		})
	}
}

func TestChatAndNameTruncate(t *testing.T) {
	long := strings.Repeat("ж", maxChatLen+10)
	in, err := ParseInbound(Payload{float64(MsgChat), long})
	if err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(in.Text)); n != maxChatLen {
		t.Errorf("chat truncated to %d runes", n)
	}
	if n := len([]rune(sanitizeName(strings.Repeat("x", 40)))); n != maxNameLen {
		t.Errorf("name truncated to %d runes", n)
	}
}

func TestPayloadOpcode(t *testing.T) {
	if op := (Payload{}).Opcode(); op != -1 {
		t.Errorf("empty payload opcode = %d", op)
	}
	if op := msgGameStart(1).Opcode(); op != MsgGameStart {
		t.Errorf("opcode = %d", op)
	}
}

func TestCodecByName(t *testing.T) {
	if c := CodecByName("msgpack"); c.Name() != "msgpack" || c.FrameType() != websocket.BinaryMessage {
		t.Errorf("msgpack codec = %s/%d", c.Name(), c.FrameType())
	}
	for _, name := range []string{"", "json", "xml"} {
		if c := CodecByName(name); c.Name() != "json" || c.FrameType() != websocket.TextMessage {
			t.Errorf("CodecByName(%q) = %s", name, c.Name())
		}
	}
}

func TestJSONBatchLayout(t *testing.T) {
	data, err := jsonCodec{}.EncodeBatch([]Payload{msgPopulation(1, 2), msgLeftGame(7)})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[[2,1,2],[4,7]]" {
		t.Errorf("batch = %s", data)
	}
}

func TestCodecsDecodeClientFrames(t *testing.T) {
	for _, c := range []Codec{jsonCodec{}, msgpackCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			// A client frame carries a single message
			data, err := c.EncodeBatch([]Payload{{int(MsgMove), int(OrientDown)}})
			if err != nil {
				t.Fatal(err)
			}
			batch, err := c.Decode(data)
			if err != nil {
				t.Fatal(err)
			}
			if len(batch) != 1 {
				t.Fatalf("expected one element, got %v", batch)
			}
			inner, ok := batch[0].([]any)
			if !ok {
				t.Fatalf("element is %T", batch[0])
			}
			in, err := ParseInbound(Payload(inner))
			if err != nil {
				t.Fatal(err)
			}
			if in.Op != MsgMove || in.Orientation != OrientDown {
				t.Errorf("got %+v", in)
			}

			if _, err := c.Decode([]byte{0xc1, '{'}); !errors.Is(err, ErrBadMessage) {
				t.Errorf("garbage frame: got %v", err)
			}
		})
	}
}
