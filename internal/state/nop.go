package state

import "context"

// NopRepository never persists. Used by the check command so a dry run leaves
// no trace.
type NopRepository struct{}

func NewNopRepository() *NopRepository { return &NopRepository{} }

func (NopRepository) Load(context.Context) (Snapshot, error) { return Snapshot{}, nil }
func (NopRepository) Save(context.Context, Snapshot) error   { return nil }
func (NopRepository) Close() error                           { return nil }
