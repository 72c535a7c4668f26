package output

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// FrameMessage is the CBOR document published for every streamed frame
type FrameMessage struct {
	Type        string  `cbor:"type"`
	CameraIndex int     `cbor:"camera_index"`
	Seq         uint64  `cbor:"seq"`
	Timestamp   float64 `cbor:"timestamp"`
	Width       int     `cbor:"width"`
	Height      int     `cbor:"height"`
	Data        []byte  `cbor:"data"`
}

// MessageTypeImage tags frame messages
const MessageTypeImage = "image"

var frameEncMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// EncodeFrameMessage builds the CBOR message for frame. The frame's JPEG
// must already be set.
func EncodeFrameMessage(cameraIndex int, frame Frame) ([]byte, error) {
	if frame.Image == nil || frame.JPEG == nil {
		return nil, fmt.Errorf("frame %d has no encoded image", frame.Seq)
	}
	b := frame.Image.Bounds()
	msg := FrameMessage{
		Type:        MessageTypeImage,
		CameraIndex: cameraIndex,
		Seq:         frame.Seq,
		Timestamp:   float64(frame.Timestamp.UnixNano()) / 1e9,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Data:        frame.JPEG,
	}
	data, err := frameEncMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame message: %w", err)
	}
	return data, nil
}

// DecodeFrameMessage parses a message produced by EncodeFrameMessage
func DecodeFrameMessage(data []byte) (FrameMessage, error) {
	var msg FrameMessage
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return FrameMessage{}, fmt.Errorf("failed to decode frame message: %w", err)
	}
	if msg.Type != MessageTypeImage {
		return FrameMessage{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return msg, nil
}
