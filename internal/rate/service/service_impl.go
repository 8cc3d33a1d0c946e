package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/netprofile/netbill/internal/clock"
	"github.com/netprofile/netbill/internal/config"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	"github.com/netprofile/netbill/internal/refcache"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	modifiersPrefix   = "rates_mods_global:"
	destinationsTable = "dest_def:set"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   ratedomain.Repository
	Cache  *refcache.Cache
	Clock  clock.Clock
	Config config.Config
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    ratedomain.Repository
	cache   *refcache.Cache
	clock   clock.Clock
	matcher *DestinationMatcher
	loc     *time.Location
}

func New(p Params) (ratedomain.Service, error) {
	loc, err := p.Config.Rating.Location()
	if err != nil {
		return nil, err
	}
	s := &Service{
		db:      p.DB,
		log:     p.Log.Named("rate.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		cache:   p.Cache,
		clock:   p.Clock,
		matcher: NewDestinationMatcher(),
		loc:     loc,
	}
	p.Cache.OnDrop(s.forgetPatterns)
	return s, nil
}

// forgetPatterns releases compiled destination patterns whenever their set
// leaves the cache, so removed or deactivated destinations are not retained.
func (s *Service) forgetPatterns(keys []string, prefix bool) {
	for _, key := range keys {
		if prefix {
			if strings.HasPrefix(key, destinationsTable) || strings.HasPrefix(destinationsTable, key) {
				s.matcher.Reset()
				return
			}
			continue
		}
		raw, ok := strings.CutPrefix(key, destinationsTable+":")
		if !ok {
			continue
		}
		if id, err := snowflake.ParseString(raw); err == nil {
			s.matcher.Forget(id)
		}
	}
}

func rateKey(id snowflake.ID) string          { return refcache.Key("rates_def", id) }
func destinationsKey(id snowflake.ID) string  { return refcache.Key(destinationsTable, id) }
func filtersKey(id snowflake.ID) string       { return refcache.Key("filters_def:set", id) }
func modifiersKey(rateID snowflake.ID) string { return refcache.Key(modifiersPrefix+"rate", rateID) }

func (s *Service) GetRate(ctx context.Context, id snowflake.ID) (*ratedomain.Rate, error) {
	if id == 0 {
		return nil, ratedomain.ErrInvalidID
	}
	rate, err := refcache.GetAs(ctx, s.cache, rateKey(id), func(ctx context.Context) (ratedomain.Rate, error) {
		found, err := s.repo.FindRate(ctx, s.db, id)
		if err != nil {
			return ratedomain.Rate{}, err
		}
		if found == nil {
			return ratedomain.Rate{}, ratedomain.ErrRateNotFound
		}
		return *found, nil
	})
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (s *Service) ListRates(ctx context.Context, filter ratedomain.ListRatesFilter) ([]ratedomain.Rate, error) {
	return s.repo.ListRates(ctx, s.db, filter)
}

func (s *Service) ResolveDestination(ctx context.Context, setID snowflake.ID, called string) (*ratedomain.Destination, error) {
	dests, err := refcache.GetAs(ctx, s.cache, destinationsKey(setID), func(ctx context.Context) ([]ratedomain.Destination, error) {
		return s.repo.ListDestinations(ctx, s.db, setID)
	})
	if err != nil {
		return nil, err
	}
	return s.matcher.Resolve(dests, called)
}

func (s *Service) ResolveFilter(ctx context.Context, setID snowflake.ID, attrs ratedomain.SessionAttributes) (*ratedomain.Filter, error) {
	filters, err := refcache.GetAs(ctx, s.cache, filtersKey(setID), func(ctx context.Context) ([]ratedomain.Filter, error) {
		return s.repo.ListFilters(ctx, s.db, setID)
	})
	if err != nil {
		return nil, err
	}
	return ResolveFilter(filters, attrs)
}

func (s *Service) EffectivePricing(ctx context.Context, rate *ratedomain.Rate, dest *ratedomain.Destination, at time.Time) (ratedomain.EffectivePricing, error) {
	if rate == nil {
		return ratedomain.EffectivePricing{}, ratedomain.ErrRateNotFound
	}
	mods, err := refcache.GetAs(ctx, s.cache, modifiersKey(rate.ID), func(ctx context.Context) ([]ratedomain.BoundModifier, error) {
		return s.loadModifiers(ctx, rate.ID)
	})
	if err != nil {
		return ratedomain.EffectivePricing{}, err
	}
	return PriceFor(*rate, dest, mods, at.In(s.loc))
}

func (s *Service) loadModifiers(ctx context.Context, rateID snowflake.ID) ([]ratedomain.BoundModifier, error) {
	mods, err := s.repo.ListGlobalModifiers(ctx, s.db, rateID)
	if err != nil || len(mods) == 0 {
		return nil, err
	}

	typeIDs := make([]snowflake.ID, 0, len(mods))
	for _, m := range mods {
		typeIDs = append(typeIDs, m.TypeID)
	}
	types, err := s.repo.ListModifierTypes(ctx, s.db, typeIDs)
	if err != nil {
		return nil, err
	}
	typeByID := make(map[snowflake.ID]ratedomain.RateModifierType, len(types))
	periodIDs := make([]snowflake.ID, 0, len(types))
	for _, t := range types {
		typeByID[t.ID] = t
		if t.BillingPeriodID != nil {
			periodIDs = append(periodIDs, *t.BillingPeriodID)
		}
	}

	periods, err := s.repo.ListBillingPeriods(ctx, s.db, periodIDs)
	if err != nil {
		return nil, err
	}
	periodByID := make(map[snowflake.ID]ratedomain.BillingPeriod, len(periods))
	for _, p := range periods {
		periodByID[p.ID] = p
	}

	bound := make([]ratedomain.BoundModifier, 0, len(mods))
	for _, m := range mods {
		t, ok := typeByID[m.TypeID]
		if !ok {
			return nil, fmt.Errorf("%w: modifier %s references missing type %s", ratedomain.ErrConfiguration, m.ID, m.TypeID)
		}
		b := ratedomain.BoundModifier{Modifier: m, Type: t}
		if t.BillingPeriodID != nil {
			if p, ok := periodByID[*t.BillingPeriodID]; ok {
				b.Period = &p
			}
		}
		bound = append(bound, b)
	}
	return bound, nil
}

func (s *Service) SaveRate(ctx context.Context, rate *ratedomain.Rate) error {
	if err := rate.Validate(); err != nil {
		return err
	}
	now := s.clock.Now(ctx).UTC()
	if rate.ID == 0 {
		rate.ID = s.genID.Generate()
		rate.CreatedAt = now
	}
	rate.UpdatedAt = now
	if err := s.repo.SaveRate(ctx, s.db, rate); err != nil {
		return err
	}
	s.invalidate(ctx, rateKey(rate.ID), modifiersKey(rate.ID))
	return nil
}

func (s *Service) SaveRateClass(ctx context.Context, class *ratedomain.RateClass) error {
	if class.ID == 0 {
		class.ID = s.genID.Generate()
	}
	return s.repo.SaveRateClass(ctx, s.db, class)
}

func (s *Service) SaveDestinationSet(ctx context.Context, set *ratedomain.DestinationSet) error {
	if set.ID == 0 {
		set.ID = s.genID.Generate()
	}
	if err := s.repo.SaveDestinationSet(ctx, s.db, set); err != nil {
		return err
	}
	s.invalidate(ctx, destinationsKey(set.ID))
	return nil
}

func (s *Service) SaveDestination(ctx context.Context, dest *ratedomain.Destination) error {
	if _, err := ratedomain.ParseDestinationType(string(dest.Type)); err != nil {
		return err
	}
	if _, err := ratedomain.ParseMatchType(string(dest.MatchType)); err != nil {
		return err
	}
	if dest.MatchType == ratedomain.MatchRegex {
		if _, err := regexp.Compile(dest.MatchString); err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ratedomain.ErrConfiguration, dest.MatchString, err)
		}
	}

	keys := []string{destinationsKey(dest.SetID)}
	if dest.ID == 0 {
		dest.ID = s.genID.Generate()
	} else {
		prev, err := s.repo.FindDestination(ctx, s.db, dest.ID)
		if err != nil {
			return err
		}
		if prev != nil && prev.SetID != dest.SetID {
			keys = append(keys, destinationsKey(prev.SetID))
		}
	}
	if err := s.repo.SaveDestination(ctx, s.db, dest); err != nil {
		return err
	}
	s.invalidate(ctx, keys...)
	return nil
}

func (s *Service) DeleteDestination(ctx context.Context, id snowflake.ID) error {
	prev, err := s.repo.FindDestination(ctx, s.db, id)
	if err != nil || prev == nil {
		return err
	}
	if err := s.repo.DeleteDestination(ctx, s.db, id); err != nil {
		return err
	}
	s.invalidate(ctx, destinationsKey(prev.SetID))
	return nil
}

func (s *Service) SaveFilterSet(ctx context.Context, set *ratedomain.FilterSet) error {
	if set.ID == 0 {
		set.ID = s.genID.Generate()
	}
	if err := s.repo.SaveFilterSet(ctx, s.db, set); err != nil {
		return err
	}
	s.invalidate(ctx, filtersKey(set.ID))
	return nil
}

func (s *Service) SaveFilter(ctx context.Context, filter *ratedomain.Filter) error {
	keys := []string{filtersKey(filter.SetID)}
	if filter.ID == 0 {
		filter.ID = s.genID.Generate()
	} else {
		prev, err := s.repo.FindFilter(ctx, s.db, filter.ID)
		if err != nil {
			return err
		}
		if prev != nil && prev.SetID != filter.SetID {
			keys = append(keys, filtersKey(prev.SetID))
		}
	}
	if err := s.repo.SaveFilter(ctx, s.db, filter); err != nil {
		return err
	}
	s.invalidate(ctx, keys...)
	return nil
}

func (s *Service) DeleteFilter(ctx context.Context, id snowflake.ID) error {
	prev, err := s.repo.FindFilter(ctx, s.db, id)
	if err != nil || prev == nil {
		return err
	}
	if err := s.repo.DeleteFilter(ctx, s.db, id); err != nil {
		return err
	}
	s.invalidate(ctx, filtersKey(prev.SetID))
	return nil
}

func (s *Service) SaveBillingPeriod(ctx context.Context, period *ratedomain.BillingPeriod) error {
	if err := period.Validate(); err != nil {
		return err
	}
	if period.ID == 0 {
		period.ID = s.genID.Generate()
	}
	if err := s.repo.SaveBillingPeriod(ctx, s.db, period); err != nil {
		return err
	}
	s.invalidatePrefix(ctx, modifiersPrefix)
	return nil
}

func (s *Service) SaveModifierType(ctx context.Context, modType *ratedomain.RateModifierType) error {
	if modType.ID == 0 {
		modType.ID = s.genID.Generate()
	}
	if err := s.repo.SaveModifierType(ctx, s.db, modType); err != nil {
		return err
	}
	s.invalidatePrefix(ctx, modifiersPrefix)
	return nil
}

func (s *Service) SaveGlobalModifier(ctx context.Context, mod *ratedomain.GlobalRateModifier) error {
	if mod.ID == 0 {
		mod.ID = s.genID.Generate()
		mod.CreatedAt = s.clock.Now(ctx).UTC()
	}
	if err := s.repo.SaveGlobalModifier(ctx, s.db, mod); err != nil {
		return err
	}
	s.invalidatePrefix(ctx, modifiersPrefix)
	return nil
}

// invalidate runs after the write has committed, so errors are only logged.
func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn("failed to broadcast cache invalidation", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *Service) invalidatePrefix(ctx context.Context, prefix string) {
	if err := s.cache.InvalidatePrefix(ctx, prefix); err != nil {
		s.log.Warn("failed to broadcast cache invalidation", zap.String("prefix", prefix), zap.Error(err))
	}
}
