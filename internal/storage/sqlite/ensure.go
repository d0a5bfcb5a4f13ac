package sqlite

import (
	"github.com/felixgeelhaar/intervue/internal/quota"
	"github.com/felixgeelhaar/intervue/internal/session"
)

// Ensure SQLite stores implement the storage interfaces.
var (
	_ session.Store = (*InterviewStore)(nil)
	_ quota.Store   = (*QuotaStore)(nil)
)
