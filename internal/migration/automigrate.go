package migration

import (
	futuredomain "github.com/netprofile/netbill/internal/futurepayment/domain"
	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	ratingdomain "github.com/netprofile/netbill/internal/rating/domain"
	"gorm.io/gorm"
)

// Models lists every table the engine owns, in dependency order.
func Models() []any {
	return []any{
		&BootstrapState{},
		&ledgerdomain.Currency{},
		&ledgerdomain.Stash{},
		&ledgerdomain.StashIOType{},
		&ledgerdomain.StashIO{},
		&ledgerdomain.StashOperation{},
		&futuredomain.FuturePayment{},
		&futuredomain.Event{},
		&ratedomain.RateClass{},
		&ratedomain.DestinationSet{},
		&ratedomain.Destination{},
		&ratedomain.FilterSet{},
		&ratedomain.Filter{},
		&ratedomain.BillingPeriod{},
		&ratedomain.Rate{},
		&ratedomain.RateModifierType{},
		&ratedomain.GlobalRateModifier{},
		&ratingdomain.AccessAccount{},
		&ratingdomain.RatingEvent{},
	}
}

// AutoMigrate creates the schema from the gorm models. It backs the sqlite
// and mysql drivers and the test suites; PostgreSQL deployments run the
// embedded SQL migrations instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
