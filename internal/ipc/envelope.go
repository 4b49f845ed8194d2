package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const maxFrameSize = 4 << 20

var errFrameTooLarge = errors.New("ipc frame too large")

type kind string

const (
	kindRequest  kind = "request"
	kindResponse kind = "response"
)

// envelope: единица обмена по сокету; кодируется как protobuf Struct.
type envelope struct {
	ID       string
	Kind     kind
	Topic    string
	Payload  string
	Error    string
	Terminal bool
}

// MarshalBinary кодирует envelope в protobuf. Строки protobuf обязаны быть UTF-8,
// поэтому некорректные последовательности заменяются на U+FFFD.
func (e envelope) MarshalBinary() ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"id":       validUTF8(e.ID),
		"kind":     string(e.Kind),
		"topic":    validUTF8(e.Topic),
		"payload":  validUTF8(e.Payload),
		"error":    validUTF8(e.Error),
		"terminal": e.Terminal,
	})
	if err != nil {
		return nil, fmt.Errorf("build envelope: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// UnmarshalBinary декодирует envelope из protobuf.
func (e *envelope) UnmarshalBinary(data []byte) error {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	f := s.GetFields()
	e.ID = f["id"].GetStringValue()
	e.Kind = kind(f["kind"].GetStringValue())
	e.Topic = f["topic"].GetStringValue()
	e.Payload = f["payload"].GetStringValue()
	e.Error = f["error"].GetStringValue()
	e.Terminal = f["terminal"].GetBoolValue()
	if e.ID == "" {
		return errors.New("envelope without id")
	}
	return nil
}

// writeFrame пишет длину (uint32, big endian) и тело одним вызовом Write.
func writeFrame(w io.Writer, e envelope) error {
	body, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("%d bytes: %w", len(body), errFrameTooLarge)
	}
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) (envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return envelope{}, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameSize {
		return envelope{}, fmt.Errorf("%d bytes: %w", n, errFrameTooLarge)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var e envelope
	if err := e.UnmarshalBinary(body); err != nil {
		return envelope{}, err
	}
	return e, nil
}
