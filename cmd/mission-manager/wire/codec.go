// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//          http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// frame layout: magic, message id, sender system id, sender component id,
// then the little-endian payload.
const frameMagic = 0xFD

const headerLen = 4

var (
	ErrShortFrame = errors.New("wire: frame too short")
	ErrBadMagic   = errors.New("wire: bad frame magic")
	ErrUnknownMsg = errors.New("wire: unknown message id")
	ErrTrailing   = errors.New("wire: trailing bytes after payload")
)

// Encode serializes a frame for the link.
func Encode(f Frame) ([]byte, error) {
	if f.Msg == nil {
		return nil, errors.New("wire: nil message")
	}
	buf := bytes.NewBuffer(make([]byte, 0, 64))
	buf.WriteByte(frameMagic)
	buf.WriteByte(byte(f.Msg.ID()))
	buf.WriteByte(f.SysID)
	buf.WriteByte(f.CompID)
	if err := binary.Write(buf, binary.LittleEndian, f.Msg); err != nil {
		return nil, fmt.Errorf("encode msg %d: %w", f.Msg.ID(), err)
	}
	return buf.Bytes(), nil
}

// Decode parses one frame. Item and ItemInt payloads are read by separate
// typed readers; the codec never reinterprets one as the other.
func Decode(data []byte) (Frame, error) {
	if len(data) < headerLen {
		return Frame{}, ErrShortFrame
	}
	if data[0] != frameMagic {
		return Frame{}, ErrBadMagic
	}

	f := Frame{SysID: data[2], CompID: data[3]}
	r := bytes.NewReader(data[headerLen:])

	var err error
	switch MsgID(data[1]) {
	case MsgCount:
		var m MissionCount
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgRequestList:
		var m MissionRequestList
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgRequest:
		var m MissionRequest
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgRequestInt:
		var m MissionRequestInt
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgItem:
		var m MissionItem
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgItemInt:
		var m MissionItemInt
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgAck:
		var m MissionAck
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgCurrent:
		var m MissionCurrent
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgItemReached:
		var m MissionItemReached
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgSetCurrent:
		var m MissionSetCurrent
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	case MsgClearAll:
		var m MissionClearAll
		err = binary.Read(r, binary.LittleEndian, &m)
		f.Msg = m
	default:
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownMsg, data[1])
	}
	if err != nil {
		return Frame{}, fmt.Errorf("decode msg %d: %w", data[1], err)
	}
	if r.Len() != 0 {
		return Frame{}, ErrTrailing
	}
	return f, nil
}
