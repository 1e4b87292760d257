package node

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/convoflow/convoflow/model"
	"github.com/dop251/goja"
)

const defaultSandboxTimeout = 5 * time.Second

var _ Node = new(codeExecutionNode)

type codeExecutionNode struct {
	baseNode
	def *model.ScriptDef
}

func NewCodeExecutionNode(def model.NodeDef) *codeExecutionNode {
	return &codeExecutionNode{
		baseNode: newBaseNode(def),
		def:      def.Script,
	}
}

func (n *codeExecutionNode) Validate() error {
	if n.def == nil || len(n.def.Source) == 0 {
		return fmt.Errorf("node %s: script source can not be empty", n.id)
	}
	for _, out := range n.def.Outputs {
		if len(out.Name) == 0 {
			return fmt.Errorf("node %s: script output name can not be empty", n.id)
		}
		if len(out.Scope) != 0 && !model.ValidScope(out.Scope) {
			return fmt.Errorf("node %s: script output %s has invalid scope %s", n.id, out.Name, out.Scope)
		}
	}
	return nil
}

// Execute runs the user script in a fresh goja VM. The VM gets the variable
// snapshot as `vars`, the inbound payload as `input` and a timeout-bounded
// `httpGet`; it is hard-stopped through vm.Interrupt when the sandbox budget
// elapses. Declared outputs are read back from the VM globals.
func (n *codeExecutionNode) Execute(ctx Context) (*Result, error) {
	timeout := ctx.SandboxTimeout
	if timeout <= 0 {
		timeout = defaultSandboxTimeout
	}
	vm := goja.New()
	vm.Set("vars", ctx.Vars)
	vm.Set("input", ctx.Input)
	vm.Set("httpGet", sandboxHttpGet(timeout))

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("sandbox timeout")
	})
	defer timer.Stop()

	_, err := vm.RunString(n.def.Source)
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return nil, model.TransientExternalError{Message: fmt.Sprintf("node %s: script interrupted after %s", n.id, timeout)}
		}
		return nil, model.FatalNodeError{NodeId: n.id, Message: fmt.Sprintf("script error: %v", err)}
	}

	effects := make([]Effect, 0, len(n.def.Outputs))
	for _, out := range n.def.Outputs {
		v := vm.Get(out.Name)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			continue
		}
		scope := out.Scope
		if len(scope) == 0 {
			scope = model.SCOPE_FLOW
		}
		effects = append(effects, Effect{
			Kind: EFFECT_SET_VARIABLE,
			Variable: &VarWrite{
				Key:    out.Name,
				Value:  v.Export(),
				Scope:  scope,
				NodeId: n.id,
			},
		})
	}
	return &Result{NextNodeId: n.next, Effects: effects}, nil
}

func sandboxHttpGet(timeout time.Duration) func(url string) (string, error) {
	client := &http.Client{Timeout: timeout}
	return func(url string) (string, error) {
		resp, err := client.Get(url)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", err
		}
		return string(body), nil
	}
}
