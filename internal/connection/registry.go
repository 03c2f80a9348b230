package connection

import (
	"context"
	"sync"

	"github.com/ilguido/jidl/internal/datatype"
)

// Registry aliases DeviceClients across connections that declare
// themselves Shareable and share the same (type, address): the
// second connection's Client field is the first's, wrapped so the
// scheduler never drives two concurrent reads on the same underlying
// client.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*sharedClient
}

// NewRegistry constructs an empty aliasing registry. One registry is
// scoped to one logger.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*sharedClient)}
}

// Resolve returns the DeviceClient to use for a connection of typeTag
// at address. When shareable is false, build is always called to
// construct a fresh, unshared client. When shareable is true, the
// first caller for a given (typeTag, address) builds the client and
// every later caller for the same key receives a serialized alias of
// it instead of building its own.
func (reg *Registry) Resolve(typeTag, address string, shareable bool, build func() DeviceClient) DeviceClient {
	if !shareable {
		return build()
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := typeTag + "\x00" + address
	if existing, ok := reg.clients[key]; ok {
		return existing
	}

	sc := &sharedClient{DeviceClient: build(), mu: &sync.Mutex{}}
	reg.clients[key] = sc
	return sc
}

// sharedClient wraps an aliased DeviceClient with a mutex so reads and
// writes issued by distinct connections never race on the same
// underlying protocol session.
type sharedClient struct {
	DeviceClient
	mu *sync.Mutex
}

func (s *sharedClient) ReadTag(ctx context.Context, address string, dt datatype.DataType) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DeviceClient.ReadTag(ctx, address, dt)
}

func (s *sharedClient) WriteTag(ctx context.Context, address string, dt datatype.DataType, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DeviceClient.WriteTag(ctx, address, dt, value)
}

func (s *sharedClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeviceClient.IsConnected() {
		return nil
	}
	return s.DeviceClient.Connect(ctx)
}
