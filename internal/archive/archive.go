package archive

import (
	"context"

	"github.com/autopilot-ops/extraction-store/internal/models"
)

// Archiver preserves a session row before retention deletes it. The archive
// is the long-horizon audit trail: rows leave the ledger after the retention
// window but their archived copies stay.
type Archiver interface {
	ArchiveSession(ctx context.Context, rec *models.ProcessingSession) error
}
