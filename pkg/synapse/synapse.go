package synapse

import (
	"encoding/json"
	"fmt"

	"github.com/Robogera/kinematics/pkg/frame"
)

const (
	TypeFrameResult = "frame_result"
)

// Command is the envelope of every message published to the broker
type Command struct {
	Id        uint64   `json:"id"`
	Sender    string   `json:"sender"`
	Type      string   `json:"type"`
	Initiator string   `json:"initiator"`
	Subject   string   `json:"subject"`
	Message   *Message `json:"message"`
}

type Message struct {
	Frame *frame.FrameExport `json:"frame,omitempty"`
}

// NewFrameCommand wraps the analysis of one frame of the stream named subject
func NewFrameCommand(id uint64, sender, subject string, result *frame.FrameResult) *Command {
	exported := result.Export()
	return &Command{
		Id:        id,
		Sender:    sender,
		Type:      TypeFrameResult,
		Initiator: sender,
		Subject:   subject,
		Message:   &Message{Frame: &exported},
	}
}

func (c *Command) ToPayload() ([]byte, error) {
	return json.Marshal(c)
}

func FromPayload(data []byte) (*Command, error) {
	c := &Command{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("Can't decode command: %w", err)
	}
	return c, nil
}
