package scheduler

import (
	"testing"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/embedding"
)

func TestProviderFromConfigSelectsLocalByDefault(t *testing.T) {
	p := providerFromConfig(config.EmbeddingConfig{})
	if _, ok := p.(*embedding.LocalProvider); !ok {
		t.Errorf("expected *embedding.LocalProvider, got %T", p)
	}
}

func TestProviderFromConfigSelectsLMStudio(t *testing.T) {
	p := providerFromConfig(config.EmbeddingConfig{Provider: "lmstudio", BaseURL: "http://localhost:1234/v1", Model: "nomic-embed-text"})
	if _, ok := p.(*embedding.LMStudioProvider); !ok {
		t.Errorf("expected *embedding.LMStudioProvider, got %T", p)
	}
}
