package model

type FlowStatus string

const FLOW_STATUS_DRAFT FlowStatus = "DRAFT"
const FLOW_STATUS_PUBLISHED FlowStatus = "PUBLISHED"

const (
	NODE_KIND_MESSAGE        = "message"
	NODE_KIND_CONDITION      = "condition"
	NODE_KIND_DATA_CAPTURE   = "data_capture"
	NODE_KIND_CODE_EXECUTION = "code_execution"
	NODE_KIND_DELAY          = "delay"
	NODE_KIND_HANDOFF        = "handoff"
	NODE_KIND_WEBHOOK        = "webhook"
)

type FlowDef struct {
	Id        string     `json:"id"`
	Name      string     `json:"name"`
	CompanyId string     `json:"companyId"`
	Status    FlowStatus `json:"status"`
	Version   int        `json:"version"`
	RootNode  string     `json:"rootNode"`
	Nodes     []NodeDef  `json:"nodes"`
}

// NodeDef is a closed tagged variant, one payload per kind.
type NodeDef struct {
	Id      string      `json:"id"`
	Kind    string      `json:"kind"`
	Next    string      `json:"next,omitempty"`
	Edges   []EdgeDef   `json:"edges,omitempty"`
	Message *MessageDef `json:"message,omitempty"`
	Capture *CaptureDef `json:"capture,omitempty"`
	Script  *ScriptDef  `json:"script,omitempty"`
	Delay   *DelayDef   `json:"delay,omitempty"`
	Webhook *WebhookDef `json:"webhook,omitempty"`
}

// EdgeDef guards a transition out of a condition node. Edges are evaluated
// in definition order, first match wins, Next on the node is the default.
type EdgeDef struct {
	Expression string `json:"expression"`
	Operator   string `json:"operator"`
	Value      any    `json:"value,omitempty"`
	Next       string `json:"next"`
}

type MessageDef struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

type CaptureDef struct {
	Fields []CaptureField `json:"fields"`
}

type CaptureField struct {
	Key        string   `json:"key"`
	Path       string   `json:"path,omitempty"`
	Required   bool     `json:"required"`
	Scope      VarScope `json:"scope,omitempty"`
	TTLSeconds int      `json:"ttlSeconds,omitempty"`
}

type ScriptDef struct {
	Source  string         `json:"source"`
	Outputs []ScriptOutput `json:"outputs,omitempty"`
}

type ScriptOutput struct {
	Name  string   `json:"name"`
	Scope VarScope `json:"scope,omitempty"`
}

type DelayDef struct {
	Seconds        int    `json:"seconds,omitempty"`
	Event          string `json:"event,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

type WebhookDef struct {
	Url            string            `json:"url"`
	Method         string            `json:"method,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           map[string]any    `json:"body,omitempty"`
	OutputKey      string            `json:"outputKey,omitempty"`
	OutputScope    VarScope          `json:"outputScope,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
	RetryCount     int               `json:"retryCount,omitempty"`
}

type FlowAssignment struct {
	Id        string `json:"id"`
	FlowId    string `json:"flowId"`
	ChannelId string `json:"channelId"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}
