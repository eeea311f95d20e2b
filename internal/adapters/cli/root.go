// Package cli exposes the persona engine as the personactl command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/ports"
)

// Backend is the part of the application the commands drive.
type Backend interface {
	ListPersonas(ctx context.Context) ([]string, error)
	ListCharacters(ctx context.Context) ([]string, error)
	Warm(ctx context.Context, identity string) (*domain.PersonaIndex, error)
	Session(user string) ports.PersonaSession
	EmbedderErr() error
	RerankerErr() error
	Close() error
}

type Options struct {
	LogLevel string
}

// Opener builds a Backend once flags are parsed.
type Opener func(ctx context.Context, options Options) (Backend, error)

type rootCommander struct {
	open    Opener
	options Options
	user    string
}

const rootLongDesc string = `Persona retrieval engine.

Loads persona documents, embeds them once into a persistent cache and retrieves
topic, style and timeline context for a query. Configuration is read from the
environment (OLLAMA_URL, EMBED_MODEL, RERANK_MODEL, PERSONAS_DIR, CACHE_DIR, ...).

Example:
  personactl list
  personactl warm himu misir
  personactl query himu "what do you do when it rains?"
  personactl chat himu`

func NewRootCmd(open Opener) *cobra.Command {
	root := &rootCommander{open: open}

	cmd := &cobra.Command{
		Use:           "personactl",
		Short:         "Retrieve persona context for role-play generation",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&root.options.LogLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&root.user, "user", "local", "Session key; each user gets an independent persona session")

	cmd.AddCommand(
		newListCmd(root),
		newWarmCmd(root),
		newQueryCmd(root),
		newChatCmd(root),
	)
	return cmd
}

// withBackend opens the backend for one command run and always closes it.
func (r *rootCommander) withBackend(ctx context.Context, fn func(Backend) error) (err error) {
	backend, err := r.open(ctx, r.options)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("shutdown engine: %w", closeErr)
		}
	}()
	return fn(backend)
}
