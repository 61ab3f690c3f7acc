package backup

import (
	"context"
	"strings"

	"github.com/chronos-inventory/chronos/internal/model"
)

// SafetyNet is the thin protocol the update workflow runs around an install:
// snapshot before installing, roll back after a detected install failure.
// The pre-update prefix acts as a reserved slot: creating a new snapshot
// supersedes the previous one as the rollback target.
type SafetyNet struct {
	repo   *Repository
	engine *Engine
}

func NewSafetyNet(repo *Repository, engine *Engine) *SafetyNet {
	return &SafetyNet{repo: repo, engine: engine}
}

// CreateSnapshot takes the pre-update snapshot of the active database.
func (n *SafetyNet) CreateSnapshot(ctx context.Context) (*model.BackupArtifact, error) {
	return n.repo.Create(ctx, PrefixPreUpdate)
}

// RestoreSnapshot restores the most recent pre-update snapshot.
func (n *SafetyNet) RestoreSnapshot(ctx context.Context) (*model.RestoreOutcome, error) {
	name, err := n.latestSnapshotName()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &OpError{Kind: KindNoPreUpdateSnapshot, Detail: "no pre-update snapshot available"}
	}
	return n.engine.Restore(ctx, name)
}

func (n *SafetyNet) latestSnapshotName() (string, error) {
	artifacts, err := n.repo.List()
	if err != nil {
		return "", err
	}
	for _, artifact := range artifacts {
		if strings.HasPrefix(artifact.Name, PrefixPreUpdate+"_") {
			return artifact.Name, nil
		}
	}
	return "", nil
}
