package session

import "context"

type Store interface {
	Get(ctx context.Context, id string) (*Screen, error)
	Save(ctx context.Context, s *Screen) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Screen, error)
}
