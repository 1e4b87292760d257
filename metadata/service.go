package metadata

import (
	"fmt"
	"time"

	"github.com/convoflow/convoflow/flow"
	"github.com/convoflow/convoflow/model"
	"github.com/convoflow/convoflow/persistence"
	c "github.com/patrickmn/go-cache"
)

// Service owns flow definitions and hands out compiled graph snapshots.
// Compiled flows are cached per (flowId, version); a graph is immutable once
// a session references it, so cached entries never invalidate.
type Service interface {
	SaveFlow(def *model.FlowDef) (*model.FlowDef, error)
	GetFlowDef(flowId string) (*model.FlowDef, error)
	PublishFlow(flowId string) (*model.FlowDef, error)
	DeleteFlow(flowId string) error
	ListFlows() ([]*model.FlowDef, error)
	// GetFlow compiles the pinned version of a flow; version 0 means latest.
	GetFlow(flowId string, version int) (*flow.Flow, error)
	GetPublished(flowId string) (*flow.Flow, *model.FlowDef, error)
}

type serviceImpl struct {
	dao   persistence.MetadataDao
	cache *c.Cache
}

func NewService(dao persistence.MetadataDao) Service {
	return &serviceImpl{
		dao:   dao,
		cache: c.New(c.NoExpiration, 10*time.Minute),
	}
}

func (s *serviceImpl) SaveFlow(def *model.FlowDef) (*model.FlowDef, error) {
	if err := flow.Validate(def); err != nil {
		return nil, err
	}
	if _, err := flow.Compile(def); err != nil {
		return nil, err
	}
	return s.dao.Save(def)
}

func (s *serviceImpl) GetFlowDef(flowId string) (*model.FlowDef, error) {
	return s.dao.Get(flowId)
}

func (s *serviceImpl) PublishFlow(flowId string) (*model.FlowDef, error) {
	return s.dao.Publish(flowId)
}

func (s *serviceImpl) DeleteFlow(flowId string) error {
	return s.dao.Delete(flowId)
}

func (s *serviceImpl) ListFlows() ([]*model.FlowDef, error) {
	return s.dao.List()
}

func (s *serviceImpl) GetFlow(flowId string, version int) (*flow.Flow, error) {
	var def *model.FlowDef
	var err error
	if version <= 0 {
		def, err = s.dao.Get(flowId)
	} else {
		cacheKey := fmt.Sprintf("%s:%d", flowId, version)
		if cached, found := s.cache.Get(cacheKey); found {
			return cached.(*flow.Flow), nil
		}
		def, err = s.dao.GetVersion(flowId, version)
	}
	if err != nil {
		return nil, err
	}
	compiled, err := flow.Compile(def)
	if err != nil {
		return nil, err
	}
	s.cache.Set(fmt.Sprintf("%s:%d", flowId, def.Version), compiled, c.NoExpiration)
	return compiled, nil
}

func (s *serviceImpl) GetPublished(flowId string) (*flow.Flow, *model.FlowDef, error) {
	def, err := s.dao.Get(flowId)
	if err != nil {
		return nil, nil, err
	}
	if def.Status != model.FLOW_STATUS_PUBLISHED {
		return nil, nil, model.ValidationError{Message: fmt.Sprintf("flow %s is not published", flowId)}
	}
	compiled, err := s.GetFlow(flowId, def.Version)
	if err != nil {
		return nil, nil, err
	}
	return compiled, def, nil
}
