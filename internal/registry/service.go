package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const credentialPrefix = "ak_"

// Service implements agent registration and authentication on top of a
// Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register returns the credential for agentID, minting one if the agent
// has never been seen. Registration is idempotent: calling it again
// with a known agent ID returns the existing credential unchanged, so
// agents can safely register on every startup and after any auth
// failure.
func (s *Service) Register(ctx context.Context, agentID string) (string, error) {
	if agentID == "" {
		return "", ErrEmptyAgentID
	}

	existing, err := s.store.GetByID(ctx, agentID)
	if err == nil {
		return existing.Credential, nil
	}
	if !errors.Is(err, ErrAgentNotFound) {
		return "", fmt.Errorf("look up agent: %w", err)
	}

	credential, err := mintCredential()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	agent := Agent{
		ID:           agentID,
		Credential:   credential,
		RegisteredAt: now,
		LastContact:  now,
	}

	if err := s.store.Create(ctx, agent); err != nil {
		if errors.Is(err, ErrAgentExists) {
			// Lost a registration race; the first writer's credential wins.
			winner, getErr := s.store.GetByID(ctx, agentID)
			if getErr != nil {
				return "", fmt.Errorf("re-read agent after conflict: %w", getErr)
			}
			return winner.Credential, nil
		}
		return "", fmt.Errorf("create agent: %w", err)
	}

	slog.Info("Agent registered", "agent_id", agentID)
	return credential, nil
}

// Authenticate resolves a credential to its agent and refreshes
// last_contact. Returns ErrInvalidCredential when no agent owns the
// credential.
func (s *Service) Authenticate(ctx context.Context, credential string) (*Agent, error) {
	if credential == "" {
		return nil, ErrInvalidCredential
	}

	agent, err := s.store.GetByCredential(ctx, credential)
	if err != nil {
		return nil, err
	}

	if err := s.store.TouchLastContact(ctx, agent.ID); err != nil {
		slog.Warn("Failed to refresh last_contact", "agent_id", agent.ID, "error", err)
	}

	return agent, nil
}

// GetAgent returns a single agent by ID.
func (s *Service) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	return s.store.GetByID(ctx, agentID)
}

// ListAgents returns all registered agents.
func (s *Service) ListAgents(ctx context.Context) ([]Agent, error) {
	return s.store.List(ctx)
}

// DeleteAgent removes an agent and, through the store, all commands and
// telemetry it owns.
func (s *Service) DeleteAgent(ctx context.Context, agentID string) error {
	if err := s.store.Delete(ctx, agentID); err != nil {
		return err
	}
	slog.Info("Agent deleted", "agent_id", agentID)
	return nil
}

func mintCredential() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	return credentialPrefix + hex.EncodeToString(b), nil
}
