package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/stripeapp-backend/pkg/errors"
)

// Registry routes /webhooks/{provider} to the provider's pipeline.
type Registry struct {
	pipelines map[string]*Pipeline
}

func NewRegistry(pipelines ...*Pipeline) (*Registry, error) {
	r := &Registry{pipelines: make(map[string]*Pipeline, len(pipelines))}
	for _, p := range pipelines {
		if p == nil {
			continue
		}
		if _, exists := r.pipelines[p.provider]; exists {
			return nil, fmt.Errorf("duplicate webhook pipeline for provider %q", p.provider)
		}
		r.pipelines[p.provider] = p
	}
	return r, nil
}

func (r *Registry) Lookup(provider string) (*Pipeline, bool) {
	p, ok := r.pipelines[strings.ToLower(strings.TrimSpace(provider))]
	return p, ok
}

// Process dispatches to the named provider's pipeline.
func (r *Registry) Process(ctx context.Context, provider string, body []byte, header http.Header) (Result, error) {
	p, ok := r.Lookup(provider)
	if !ok {
		return Result{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("unknown webhook provider %q", provider))
	}
	return p.Process(ctx, body, header)
}
