package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl    MessageType = "client_control"
	TypePipelineStage    MessageType = "pipeline_stage"
	TypePipelineComplete MessageType = "pipeline_complete"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// StageStatus is the lifecycle point a PipelineStage event reports.
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// PipelineStage reports a state transition of one chat request.
type PipelineStage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id"`
	Stage     string      `json:"stage"`
	Status    StageStatus `json:"status"`
	Category  string      `json:"category,omitempty"`
	LatencyMS int64       `json:"latency_ms,omitempty"`
	TSMs      int64       `json:"ts_ms"`
}

// PipelineComplete is the final event of a chat request.
type PipelineComplete struct {
	Type          MessageType `json:"type"`
	SessionID     string      `json:"session_id"`
	RequestID     string      `json:"request_id"`
	Success       bool        `json:"success"`
	FallbackUsed  bool        `json:"fallback_used"`
	Transcription string      `json:"transcription"`
	LLMResponse   string      `json:"llm_response"`
	MessageCount  int         `json:"message_count"`
	TSMs          int64       `json:"ts_ms"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
