package model

type SessionStatus string

const SESSION_ACTIVE SessionStatus = "ACTIVE"
const SESSION_WAITING SessionStatus = "WAITING"
const SESSION_PAUSED SessionStatus = "PAUSED"
const SESSION_COMPLETED SessionStatus = "COMPLETED"
const SESSION_TIMEOUT SessionStatus = "TIMEOUT"
const SESSION_CANCELLED SessionStatus = "CANCELLED"

func (s SessionStatus) Terminal() bool {
	switch s {
	case SESSION_COMPLETED, SESSION_TIMEOUT, SESSION_CANCELLED:
		return true
	}
	return false
}

const WAIT_REASON_INPUT = "input"
const WAIT_REASON_DELAY = "delay"
const WAIT_REASON_EVENT = "event"

// FlowSession is the persisted cursor of one flow run against one
// conversation. It is mutated only by the engine under the session lock.
type FlowSession struct {
	Id             string        `json:"id"`
	FlowId         string        `json:"flowId"`
	FlowVersion    int           `json:"flowVersion"`
	ConversationId string        `json:"conversationId"`
	ContactId      string        `json:"contactId"`
	CompanyId      string        `json:"companyId"`
	ChannelId      string        `json:"channelId"`
	Status         SessionStatus `json:"status"`
	CurrentNodeId  string        `json:"currentNodeId"`
	WaitReason     string        `json:"waitReason,omitempty"`
	WaitEvent      string        `json:"waitEvent,omitempty"`
	LastError      string        `json:"lastError,omitempty"`
	StartedAt      int64         `json:"startedAt"`
	LastActivityAt int64         `json:"lastActivityAt"`
	CompletedAt    int64         `json:"completedAt,omitempty"`
}

// TriggerEvent is the inbound contract from a channel adapter.
type TriggerEvent struct {
	ConversationId string         `json:"conversationId"`
	ContactId      string         `json:"contactId"`
	CompanyId      string         `json:"companyId"`
	ChannelId      string         `json:"channelId"`
	ChannelType    string         `json:"channelType"`
	Payload        map[string]any `json:"payload"`
}

const OUTBOUND_TYPE_MESSAGE = "message"
const OUTBOUND_TYPE_HANDOFF = "handoff"

// OutboundMessage is the outbound contract to a channel adapter.
type OutboundMessage struct {
	ConversationId string `json:"conversationId"`
	ChannelId      string `json:"channelId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
}
