package main

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Input is an externally tagged message: exactly one field is set.
type Input struct {
	Join     *string   `json:"Join,omitempty"`
	Position *Position `json:"Position,omitempty"`
}

func (in *Input) UnmarshalJSON(data []byte) error {
	type plain Input
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if (p.Join == nil) == (p.Position == nil) {
		return errors.New("input must have exactly one of Join or Position")
	}
	*in = Input(p)
	return nil
}

func (in Input) Kind() string {
	if in.Join != nil {
		return "join"
	}
	return "position"
}

func (in Input) String() string {
	if in.Join != nil {
		return fmt.Sprintf("Join(%s)", *in.Join)
	}
	return fmt.Sprintf("Position(%d, %d)", in.Position.X, in.Position.Y)
}

type Ack struct {
	Seq  uint64 `json:"seq"`
	Kind string `json:"kind"`
}
