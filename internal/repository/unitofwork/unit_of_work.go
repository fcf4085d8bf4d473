package unitofwork

import (
	"context"

	"crewtalk-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	SessionRepository() contract.SessionRepository
	AgentRepository() contract.AgentRepository
	TurnRepository() contract.TurnRepository
	NotepadRepository() contract.NotepadRepository
}
