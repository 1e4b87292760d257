package redis

import (
	"github.com/convoflow/convoflow/persistence"
	rd "github.com/redis/go-redis/v9"
)

// Storage bundles every redis DAO over one shared client.
type Storage struct {
	Sessions    persistence.SessionDao
	Locks       persistence.SessionLock
	Assignments persistence.AssignmentDao
	Variables   persistence.VariableDao
	Executions  persistence.ExecutionDao
	Metadata    persistence.MetadataDao
	DelayQueue  persistence.DelayQueue
}

func NewStorage(conf Config) *Storage {
	base := newBaseDao(conf)
	return newStorage(base)
}

// NewStorageWithClient is used by tests to run against miniredis.
func NewStorageWithClient(client rd.UniversalClient, namespace string) *Storage {
	base := newBaseDaoWithClient(client, namespace)
	return newStorage(base)
}

func newStorage(base *baseDao) *Storage {
	return &Storage{
		Sessions:    NewRedisSessionDao(*base),
		Locks:       NewRedisSessionLock(*base),
		Assignments: NewRedisAssignmentDao(*base),
		Variables:   NewRedisVariableDao(*base),
		Executions:  NewRedisExecutionDao(*base),
		Metadata:    NewRedisMetadataDao(*base),
		DelayQueue:  NewRedisDelayQueue(*base),
	}
}
