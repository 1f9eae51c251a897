package tasks

import (
	"context"

	"github.com/aussiebroadwan/starter/pkg/slogx"
)

const (
	TypeAnalysis  = "analysis"
	TypeEmbedding = "embedding"
)

// RegisterDefaults installs the built-in task handlers on p.
func RegisterDefaults(p *Pool) {
	p.Handle(TypeAnalysis, Analysis)
	p.Handle(TypeEmbedding, Embedding)
}

// Analysis is a placeholder for document analysis jobs.
func Analysis(ctx context.Context, t Task) error {
	slogx.FromContext(ctx).Info("analysis task processed", "fields", len(t.Data))
	return nil
}

// Embedding is a placeholder for embedding generation jobs.
func Embedding(ctx context.Context, t Task) error {
	slogx.FromContext(ctx).Info("embedding task processed", "fields", len(t.Data))
	return nil
}
