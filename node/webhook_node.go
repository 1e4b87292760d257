package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/util"
)

const defaultWebhookTimeout = 10 * time.Second

var _ Node = new(webhookNode)

type webhookNode struct {
	baseNode
	def *model.WebhookDef
}

func NewWebhookNode(def model.NodeDef) *webhookNode {
	return &webhookNode{
		baseNode: newBaseNode(def),
		def:      def.Webhook,
	}
}

func (n *webhookNode) Validate() error {
	if n.def == nil || len(n.def.Url) == 0 {
		return fmt.Errorf("node %s: webhook url can not be empty", n.id)
	}
	if len(n.def.OutputScope) != 0 && !model.ValidScope(n.def.OutputScope) {
		return fmt.Errorf("node %s: webhook output scope %s is invalid", n.id, n.def.OutputScope)
	}
	return nil
}

func (n *webhookNode) RetryCount() int {
	return n.def.RetryCount
}

// Execute invokes the external endpoint once with a bounded timeout. Network
// failures, timeouts and 5xx responses surface as TransientExternalError so
// the engine applies its retry policy; a single attempt never retries here.
func (n *webhookNode) Execute(ctx Context) (*Result, error) {
	timeout := ctx.WebhookTimeout
	if n.def.TimeoutSeconds > 0 {
		timeout = time.Duration(n.def.TimeoutSeconds) * time.Second
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	method := strings.ToUpper(n.def.Method)
	if len(method) == 0 {
		method = http.MethodPost
	}

	var body io.Reader
	if n.def.Body != nil {
		resolved := util.ResolveParams(ctx.Vars, n.def.Body)
		data, err := json.Marshal(resolved)
		if err != nil {
			return nil, model.FatalNodeError{NodeId: n.id, Message: fmt.Sprintf("can not encode webhook body: %v", err)}
		}
		body = bytes.NewReader(data)
	}

	url := util.ResolveTemplate(ctx.Vars, n.def.Url)
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, model.FatalNodeError{NodeId: n.id, Message: fmt.Sprintf("invalid webhook request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.def.Headers {
		req.Header.Set(k, util.ResolveTemplate(ctx.Vars, v))
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, model.TransientExternalError{Message: fmt.Sprintf("node %s: %v", n.id, err)}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 500 {
		return nil, model.TransientExternalError{Message: fmt.Sprintf("node %s: endpoint returned %d", n.id, resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, model.FatalNodeError{NodeId: n.id, Message: fmt.Sprintf("endpoint returned %d", resp.StatusCode)}
	}

	result := &Result{NextNodeId: n.next}
	if len(n.def.OutputKey) != 0 {
		var parsed any
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			parsed = string(respBody)
		}
		scope := n.def.OutputScope
		if len(scope) == 0 {
			scope = model.SCOPE_FLOW
		}
		result.Effects = append(result.Effects, Effect{
			Kind: EFFECT_SET_VARIABLE,
			Variable: &VarWrite{
				Key:    n.def.OutputKey,
				Value:  parsed,
				Scope:  scope,
				NodeId: n.id,
			},
		})
	}
	return result, nil
}
