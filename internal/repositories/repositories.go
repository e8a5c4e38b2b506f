// Package repositories assembles the PostgreSQL repositories behind the review workflow
// and the sync relay.
package repositories

import (
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/internal/repositories/fieldconflict"
	"github.com/Ramsey-B/sage/internal/repositories/lead"
	"github.com/Ramsey-B/sage/internal/repositories/reviewitem"
	"github.com/Ramsey-B/sage/internal/repositories/syncrequest"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/review"
)

type Repositories struct {
	Leads        *lead.Repository
	Conflicts    *fieldconflict.Repository
	ReviewItems  *reviewitem.Repository
	SyncRequests *syncrequest.Repository

	db database.DB
}

func New(db database.DB, logger ectologger.Logger) *Repositories {
	return &Repositories{
		Leads:        lead.NewRepository(db, logger),
		Conflicts:    fieldconflict.NewRepository(db, logger),
		ReviewItems:  reviewitem.NewRepository(db, logger),
		SyncRequests: syncrequest.NewRepository(db, logger),
		db:           db,
	}
}

// ReviewStores binds the workflow to these repositories; its transactions span all of them.
func (r *Repositories) ReviewStores() review.Stores {
	return review.Stores{
		Leads:     r.Leads,
		Conflicts: r.Conflicts,
		Items:     r.ReviewItems,
		Syncs:     r.SyncRequests,
		Tx:        database.NewTransactor(r.db),
	}
}
