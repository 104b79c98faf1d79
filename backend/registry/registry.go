package registry

import (
	"errors"
	"sync"

	"github.com/camroulette/signaling/backend/model"
)

var (
	ErrNotFound = errors.New("connection is not found")
)

// Registry tracks live connections by connection id. It only records
// registration and removal; cascading cleanup of queue entries and rooms
// belongs to the lifecycle service.
type Registry struct {
	mx *sync.Mutex
	db map[string]*model.Connection
}

func New() *Registry {
	return &Registry{
		mx: &sync.Mutex{},
		db: make(map[string]*model.Connection),
	}
}

func (r *Registry) Register(connID, userID string) *model.Connection {
	r.mx.Lock()
	defer r.mx.Unlock()

	conn := model.NewConnection(connID, userID)
	r.db[connID] = conn
	return conn
}

func (r *Registry) Unregister(connID string) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.db[connID]; !ok {
		return ErrNotFound
	}
	delete(r.db, connID)
	return nil
}

func (r *Registry) Get(connID string) (*model.Connection, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	conn, ok := r.db[connID]
	if !ok {
		return nil, ErrNotFound
	}
	return conn, nil
}

// Connections returns a snapshot of all live connections.
func (r *Registry) Connections() []*model.Connection {
	r.mx.Lock()
	defer r.mx.Unlock()

	conns := make([]*model.Connection, 0, len(r.db))
	for _, conn := range r.db {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.db)
}
