package websocket

import (
	"bytes"
	"encoding/json"

	"chatrelay/pkg/types"
)

// envelope is one inbound frame: {"event": "...", "data": ..., "ref": "..."}.
type envelope struct {
	Event string          `json:"event" validate:"required,max=64"`
	Data  json.RawMessage `json:"data"`
	Ref   string          `json:"ref" validate:"max=128"`
}

type joinPayload struct {
	Username string `json:"username"`
}

type messagePayload struct {
	Text    string `json:"text"`
	ReplyTo string `json:"replyTo" validate:"max=128"`
}

type typingPayload struct {
	IsTyping bool `json:"isTyping"`
}

type privatePayload struct {
	To      string `json:"to" validate:"required,max=128"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

type filePayload struct {
	File     string `json:"file"`
	FileName string `json:"fileName" validate:"max=255"`
	FileType string `json:"fileType" validate:"max=255"`
}

type unreadPayload struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Count  int    `json:"count"`
}

type receiptPayload struct {
	MessageID string `json:"messageId" validate:"required,max=128"`
	SenderID  string `json:"senderId" validate:"required,max=128"`
}

// decodeInbound parses one text frame into a router command. The client
// reference is returned even when the payload is rejected so the error can
// echo it.
func decodeInbound(frame []byte) (string, types.Command, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, types.ErrInvalidPayload
	}
	if err := types.Validator().Struct(env); err != nil {
		return "", nil, types.ErrInvalidPayload
	}

	cmd, err := decodeCommand(env.Event, env.Data)
	return env.Ref, cmd, err
}

func decodeCommand(event string, data json.RawMessage) (types.Command, error) {
	switch event {
	case types.EventUserJoin:
		var p joinPayload
		if err := decodeStringOr(data, &p.Username, &p); err != nil {
			return nil, err
		}
		return types.Register{Name: p.Username}, nil

	case types.EventSendMessage:
		var p messagePayload
		if err := decodeStringOr(data, &p.Text, &p); err != nil {
			return nil, err
		}
		return types.SendMessage{Text: p.Text, ReplyTo: p.ReplyTo}, nil

	case types.EventTyping:
		var p typingPayload
		if err := json.Unmarshal(data, &p.IsTyping); err != nil {
			if err := decodeObject(data, &p); err != nil {
				return nil, err
			}
		}
		return types.SetTyping{IsTyping: p.IsTyping}, nil

	case types.EventPrivateMessage:
		var p privatePayload
		if err := decodeObject(data, &p); err != nil {
			return nil, err
		}
		text := p.Text
		if text == "" {
			text = p.Message
		}
		return types.PrivateMessage{To: p.To, Text: text}, nil

	case types.EventFileUpload:
		var p filePayload
		if err := decodeObject(data, &p); err != nil {
			return nil, err
		}
		return types.ShareFile{FileName: p.FileName, FileType: p.FileType, Data: p.File}, nil

	case types.EventMessageReceived:
		var p receiptPayload
		if err := decodeObject(data, &p); err != nil {
			return nil, err
		}
		return types.MarkRead{MessageID: p.MessageID, SenderID: types.ConnectionID(p.SenderID)}, nil

	case types.EventUpdateUnread:
		var p unreadPayload
		if err := decodeObject(data, &p); err != nil {
			return nil, err
		}
		return types.UpdateUnread{UserID: p.UserID, Count: p.Count}, nil

	default:
		return nil, types.ErrUnknownEvent
	}
}

// decodeStringOr accepts either a bare JSON string, stored in str, or an
// object decoded into obj.
func decodeStringOr(data json.RawMessage, str *string, obj any) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		if err := json.Unmarshal(data, str); err != nil {
			return types.ErrInvalidPayload
		}
		return nil
	}
	return decodeObject(data, obj)
}

func decodeObject(data json.RawMessage, obj any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.ErrInvalidPayload
	}
	if err := json.Unmarshal(trimmed, obj); err != nil {
		return types.ErrInvalidPayload
	}
	if err := types.Validator().Struct(obj); err != nil {
		return types.ErrInvalidPayload
	}
	return nil
}
