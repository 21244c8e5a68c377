package zt2

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

var ErrParams = errors.New("malformed parameter list")

const (
	onOffRecordSize = 0x38
	onOffRecords    = 10
	onOffMaxAt      = 12
	onOffDefaultAt  = 16

	// The first two OnOff records belong to the effect switch, not to a
	// parameter.
	onOffSkip = 2
)

// Param describes one knob of an effect as its binary documents it.
type Param struct {
	Name        string `json:"name"`
	Explanation string `json:"explanation,omitempty"`
	Blackback   bool   `json:"blackback"`
	Pedal       bool   `json:"pedal"`
	Max         uint16 `json:"mmax"`
	Default     uint16 `json:"mdefault"`
}

// SlotsFor returns how many screen slots an effect with n parameters
// occupies, four parameters to a slot.
func SlotsFor(n int) int {
	return (n + 3) / 4
}

// EffectParams reads the English parameter list of an effect binary's PRME
// section and fills in range and default from its OnOff table. A binary
// without a parameter list gives nil.
func EffectParams(data []byte) ([]Param, error) {
	list, err := paramList(data)
	if list == nil || err != nil {
		return nil, err
	}

	var params []Param
	if err := json5.Unmarshal(list, &params); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParams, err)
	}

	ranges := onOffTable(data)
	for i := range params {
		if j := i + onOffSkip; j < len(ranges) {
			params[i].Max = ranges[j][0]
			params[i].Default = ranges[j][1]
		}
	}
	return params, nil
}

// paramList cuts the JSON5 array following "Parameters" inside PRME, line
// breaks turned into spaces.
func paramList(data []byte) ([]byte, error) {
	i := bytes.Index(data, []byte("PRME"))
	if i < 0 {
		return nil, nil
	}
	rest := data[i:]

	j := bytes.Index(rest, []byte("Parameters"))
	if j < 0 {
		return nil, nil
	}
	rest = rest[j:]

	open := bytes.IndexByte(rest, '[')
	if open < 0 {
		return nil, fmt.Errorf("%w: no opening bracket", ErrParams)
	}
	n := bytes.IndexByte(rest[open:], ']')
	if n < 0 {
		return nil, fmt.Errorf("%w: no closing bracket", ErrParams)
	}

	list := bytes.Clone(rest[open : open+n+1])
	for k, c := range list {
		if c == '\r' || c == '\n' {
			list[k] = ' '
		}
	}
	return list, nil
}

// onOffTable returns the maximum and default of each OnOff record present.
func onOffTable(data []byte) [][2]uint16 {
	i := bytes.Index(data, []byte("OnOff"))
	if i < 0 {
		return nil
	}

	var out [][2]uint16
	for j := 0; j < onOffRecords; j++ {
		rec := i + j*onOffRecordSize
		if rec+onOffDefaultAt+2 > len(data) {
			break
		}
		out = append(out, [2]uint16{
			binary.LittleEndian.Uint16(data[rec+onOffMaxAt:]),
			binary.LittleEndian.Uint16(data[rec+onOffDefaultAt:]),
		})
	}
	return out
}
