package variable

import (
	"fmt"
	"time"

	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
)

// Store resolves scoped session variables with lexical-shadowing semantics:
// session → node (current) → flow → user → global, first defined wins.
// Session, node and flow partitions die with the session; user and global
// partitions are keyed by contact and company and outlive it.
type Store struct {
	dao persistence.VariableDao
}

func NewStore(dao persistence.VariableDao) *Store {
	return &Store{dao: dao}
}

func Partition(sess *model.FlowSession, scope model.VarScope, nodeId string) string {
	switch scope {
	case model.SCOPE_SESSION:
		return fmt.Sprintf("s:%s", sess.Id)
	case model.SCOPE_NODE:
		return fmt.Sprintf("n:%s:%s", sess.Id, nodeId)
	case model.SCOPE_FLOW:
		return fmt.Sprintf("f:%s", sess.Id)
	case model.SCOPE_USER:
		return fmt.Sprintf("u:%s", sess.ContactId)
	default:
		return fmt.Sprintf("g:%s", sess.CompanyId)
	}
}

func (s *Store) Get(sess *model.FlowSession, key string) (*model.Value, bool, error) {
	for _, scope := range model.ScopeChain {
		v, ok, err := s.dao.Get(Partition(sess, scope, sess.CurrentNodeId), key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

func (s *Store) Set(sess *model.FlowSession, key string, value any, scope model.VarScope, nodeId string, ttlSeconds int) error {
	if !model.ValidScope(scope) {
		return model.ValidationError{Message: fmt.Sprintf("invalid variable scope %s", scope)}
	}
	v := model.Value{
		Type: model.TypeOf(value),
		Data: value,
	}
	if ttlSeconds > 0 {
		v.ExpiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second).UnixMilli()
	}
	return s.dao.Set(Partition(sess, scope, nodeId), key, v)
}

// Snapshot merges all scopes into one map for template interpolation and
// predicates, widest scope first so narrower scopes shadow on collision.
func (s *Store) Snapshot(sess *model.FlowSession) (map[string]any, error) {
	out := make(map[string]any)
	for i := len(model.ScopeChain) - 1; i >= 0; i-- {
		scope := model.ScopeChain[i]
		vars, err := s.dao.All(Partition(sess, scope, sess.CurrentNodeId))
		if err != nil {
			return nil, err
		}
		for key, v := range vars {
			out[key] = v.Data
		}
	}
	return out, nil
}

func (s *Store) List(sess *model.FlowSession) (map[model.VarScope]map[string]model.Value, error) {
	out := make(map[model.VarScope]map[string]model.Value, len(model.ScopeChain))
	for _, scope := range model.ScopeChain {
		vars, err := s.dao.All(Partition(sess, scope, sess.CurrentNodeId))
		if err != nil {
			return nil, err
		}
		out[scope] = vars
	}
	return out, nil
}

// ClearNodeScope drops one node partition; cleanup after a terminal
// transition walks every node of the flow through it.
func (s *Store) ClearNodeScope(sess *model.FlowSession, nodeId string) error {
	return s.dao.ClearPartition(Partition(sess, model.SCOPE_NODE, nodeId))
}

func (s *Store) ClearScope(sess *model.FlowSession, scope model.VarScope) error {
	if !model.ValidScope(scope) {
		return model.ValidationError{Message: fmt.Sprintf("invalid variable scope %s", scope)}
	}
	return s.dao.ClearPartition(Partition(sess, scope, sess.CurrentNodeId))
}
