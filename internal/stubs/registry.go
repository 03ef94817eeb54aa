package stubs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/recruiting-assistant/internal/resolver"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
)

const methodGetAgent = resolver.MethodGetAgent

type agentCard struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	URL     string `json:"url"`
}

// Register sets the address the registry hands out for name. An empty address
// removes the entry.
func (p *Platform) Register(name, address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if address == "" {
		delete(p.agents, name)
		return
	}
	p.agents[name] = address
}

func (p *Platform) getAgent(_ context.Context, params json.RawMessage) (any, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := rpc.DecodeParams(params, &in); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, rpc.NewInvalidParams("name is required")
	}

	p.mu.Lock()
	addr, ok := p.agents[in.Name]
	p.mu.Unlock()
	if !ok {
		return nil, rpc.NewBusinessError(fmt.Sprintf("agent %s is not registered", in.Name))
	}
	return agentCard{Name: in.Name, Address: addr, URL: addr}, nil
}
