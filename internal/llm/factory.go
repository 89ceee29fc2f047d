package llm

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/httpclient"
)

// Factory builds an adapter for a provider. The client carries no timeout;
// per attempt deadlines come from the context.
type Factory func(cfg domain.ProviderConfig, client httpclient.HTTPClient) (Adapter, error)

var (
	mu        sync.RWMutex
	factories = make(map[domain.ProtocolType]Factory)
)

func Register(protocol domain.ProtocolType, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[protocol]; exists {
		panic(fmt.Sprintf("adapter factory %s already registered", protocol))
	}
	factories[protocol] = f
}

func Get(protocol domain.ProtocolType) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[protocol]
	if !ok {
		return nil, fmt.Errorf("adapter factory not found for protocol: %s", protocol)
	}
	return f, nil
}

// ProviderFactory creates adapters from provider configuration using a shared client.
type ProviderFactory struct {
	client httpclient.HTTPClient
}

func NewProviderFactory(client httpclient.HTTPClient) *ProviderFactory {
	if client == nil {
		client = DefaultClient()
	}
	return &ProviderFactory{client: client}
}

func (f *ProviderFactory) Create(cfg domain.ProviderConfig) (Adapter, error) {
	factoryFunc, err := Get(cfg.ProtocolType)
	if err != nil {
		return nil, fmt.Errorf("factory lookup failed for provider %s: %w", cfg.ID, err)
	}
	return factoryFunc(cfg, f.client)
}

// DefaultClient returns an http.Client tuned for many concurrent upstreams.
func DefaultClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
