package vault

import "context"

func (s *Service) IndexNewDir(ctx context.Context, dir string) { s.indexNewDir(ctx, dir) }
