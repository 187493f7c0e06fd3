package memory

import "github.com/and161185/matchchat/internal/repository"

var (
	_ repository.UserRepository    = (*Users)(nil)
	_ repository.BlockRepository   = (*Blocks)(nil)
	_ repository.MatchRepository   = (*Matches)(nil)
	_ repository.MessageRepository = (*Messages)(nil)
)
