package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/metrics"
)

const defaultOpportunityFetchConcurrency = 4

// OpportunityServiceImpl implements port.OpportunityService on top of a set
// of chain resolvers, an in-memory query cache and a normalized store of the
// latest results.
type OpportunityServiceImpl struct {
	resolvers   []port.OpportunityResolver
	portfolio   port.PortfolioReader
	logger      port.Logger
	cache       *gocache.Cache
	group       singleflight.Group
	concurrency int

	mu           sync.RWMutex
	metadata     map[entity.OpportunityID]entity.OpportunityMetadata
	userData     map[entity.AccountID]map[entity.OpportunityID]entity.UserStakingOpportunity
	issuedSeq    map[string]uint64
	committedSeq map[string]uint64
	now          func() time.Time
}

var _ port.OpportunityService = (*OpportunityServiceImpl)(nil)

// NewOpportunityService creates the service. cacheTTL bounds how long a user
// data query is served from cache without ForceRefetch.
func NewOpportunityService(
	resolvers []port.OpportunityResolver,
	portfolio port.PortfolioReader,
	cacheTTL time.Duration,
	concurrency int,
	l port.Logger,
) *OpportunityServiceImpl {
	if concurrency <= 0 {
		concurrency = defaultOpportunityFetchConcurrency
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &OpportunityServiceImpl{
		resolvers:    resolvers,
		portfolio:    portfolio,
		logger:       l.With("component", "OpportunityService"),
		cache:        gocache.New(cacheTTL, 2*cacheTTL),
		concurrency:  concurrency,
		metadata:     make(map[entity.OpportunityID]entity.OpportunityMetadata),
		userData:     make(map[entity.AccountID]map[entity.OpportunityID]entity.UserStakingOpportunity),
		issuedSeq:    make(map[string]uint64),
		committedSeq: make(map[string]uint64),
		now:          time.Now,
	}
}

// FetchAllOpportunitiesMetadata refreshes metadata from every resolver.
func (s *OpportunityServiceImpl) FetchAllOpportunitiesMetadata(ctx context.Context) error {
	return s.fetchMetadata(ctx, s.resolvers)
}

// FetchAllStakingOpportunitiesMetadata refreshes metadata from staking resolvers.
func (s *OpportunityServiceImpl) FetchAllStakingOpportunitiesMetadata(ctx context.Context) error {
	return s.fetchMetadata(ctx, s.resolversByType(entity.DefiTypeStaking))
}

// FetchAllOpportunitiesUserData refreshes every opportunity the account can hold.
func (s *OpportunityServiceImpl) FetchAllOpportunitiesUserData(ctx context.Context, accountID entity.AccountID, opts entity.FetchOptions) error {
	return s.fetchUserData(ctx, accountID, s.resolvers, opts)
}

// FetchAllStakingOpportunitiesUserData refreshes the account's staking positions.
func (s *OpportunityServiceImpl) FetchAllStakingOpportunitiesUserData(ctx context.Context, accountID entity.AccountID, opts entity.FetchOptions) error {
	return s.fetchUserData(ctx, accountID, s.resolversByType(entity.DefiTypeStaking), opts)
}

// GetOpportunityUserData serves one user-data query. Without ForceRefetch a
// cached entry is returned; with it, any in-flight request for the same key
// is abandoned and a fresh one issued. Results are committed most recent
// request wins, so a slow stale response never overwrites a newer one.
func (s *OpportunityServiceImpl) GetOpportunityUserData(ctx context.Context, req entity.UserDataRequest, opts entity.FetchOptions) (entity.UserStakingOpportunity, error) {
	key := userDataKey(req.AccountID, req.OpportunityID)

	if !opts.ForceRefetch {
		if v, ok := s.cache.Get(key); ok {
			return v.(entity.UserStakingOpportunity), nil
		}
	} else {
		s.cache.Delete(key)
		s.group.Forget(key)
	}

	resolver, err := s.resolverFor(req.OpportunityID)
	if err != nil {
		return entity.UserStakingOpportunity{}, err
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		seq := s.issue(key)
		data, err := resolver.UserData(ctx, req.AccountID, req.OpportunityID)
		if err != nil {
			return nil, err
		}
		data.UpdatedAt = s.now().Unix()
		return s.commit(key, seq, data), nil
	})
	if err != nil {
		metrics.OpportunityFetchErrors.WithLabelValues("user_data").Inc()
		return entity.UserStakingOpportunity{}, fmt.Errorf("user data for %s in %s: %w", req.AccountID, req.OpportunityID, err)
	}
	return v.(entity.UserStakingOpportunity), nil
}

// LpAccountIDs lists portfolio accounts on chains carrying lp opportunities.
func (s *OpportunityServiceImpl) LpAccountIDs() []entity.AccountID {
	return s.accountIDsFor(entity.DefiTypeLiquidityPool)
}

// StakingAccountIDs lists portfolio accounts on chains carrying staking opportunities.
func (s *OpportunityServiceImpl) StakingAccountIDs() []entity.AccountID {
	return s.accountIDsFor(entity.DefiTypeStaking)
}

// Metadata returns every known opportunity definition ordered by id.
func (s *OpportunityServiceImpl) Metadata() []entity.OpportunityMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.OpportunityMetadata, 0, len(s.metadata))
	for _, m := range s.metadata {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UserData returns the account's known positions ordered by opportunity id.
func (s *OpportunityServiceImpl) UserData(accountID entity.AccountID) []entity.UserStakingOpportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byOpp := s.userData[accountID]
	out := make([]entity.UserStakingOpportunity, 0, len(byOpp))
	for _, d := range byOpp {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpportunityID < out[j].OpportunityID })
	return out
}

func (s *OpportunityServiceImpl) fetchMetadata(ctx context.Context, resolvers []port.OpportunityResolver) error {
	var errs []error
	for _, r := range resolvers {
		// a resolver may return partial results alongside its error
		defs, err := r.Metadata(ctx)
		if err != nil {
			metrics.OpportunityFetchErrors.WithLabelValues("metadata").Inc()
			s.logger.Warn("Failed to fetch opportunity metadata", "type", r.Type(), "chainId", r.ChainID(), "error", err)
			errs = append(errs, fmt.Errorf("%s metadata on %s: %w", r.Type(), r.ChainID(), err))
		}
		s.mu.Lock()
		for _, d := range defs {
			s.metadata[d.ID] = d
		}
		s.mu.Unlock()
		s.logger.Debug("Opportunity metadata refreshed", "type", r.Type(), "count", len(defs))
	}
	return errors.Join(errs...)
}

func (s *OpportunityServiceImpl) fetchUserData(ctx context.Context, accountID entity.AccountID, resolvers []port.OpportunityResolver, opts entity.FetchOptions) error {
	chainID := accountID.ChainID()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var mu sync.Mutex
	var errs []error
	for _, r := range resolvers {
		if r.ChainID() != chainID {
			continue
		}
		for _, oppID := range r.OpportunityIDs() {
			req := entity.UserDataRequest{
				AccountID:       accountID,
				OpportunityID:   oppID,
				OpportunityType: r.Type(),
				DefiType:        r.Type(),
			}
			g.Go(func() error {
				if _, err := s.GetOpportunityUserData(gctx, req, opts); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	if opts.ForceRefetch {
		metrics.OpportunityRefetches.WithLabelValues("forced").Inc()
	}
	return errors.Join(errs...)
}

func (s *OpportunityServiceImpl) resolversByType(t entity.DefiType) []port.OpportunityResolver {
	var out []port.OpportunityResolver
	for _, r := range s.resolvers {
		if r.Type() == t {
			out = append(out, r)
		}
	}
	return out
}

func (s *OpportunityServiceImpl) resolverFor(id entity.OpportunityID) (port.OpportunityResolver, error) {
	for _, r := range s.resolvers {
		for _, candidate := range r.OpportunityIDs() {
			if candidate == id {
				return r, nil
			}
		}
	}
	return nil, fmt.Errorf("opportunity %s: %w", id, entity.ErrNotFound)
}

func (s *OpportunityServiceImpl) accountIDsFor(t entity.DefiType) []entity.AccountID {
	chains := make(map[entity.ChainID]struct{})
	for _, r := range s.resolversByType(t) {
		chains[r.ChainID()] = struct{}{}
	}
	var out []entity.AccountID
	for _, id := range s.portfolio.AccountIDs() {
		if _, ok := chains[id.ChainID()]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *OpportunityServiceImpl) issue(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuedSeq[key]++
	return s.issuedSeq[key]
}

// commit stores data if seq is newer than what is stored and returns the
// value now current for key.
func (s *OpportunityServiceImpl) commit(key string, seq uint64, data entity.UserStakingOpportunity) entity.UserStakingOpportunity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.committedSeq[key] {
		s.logger.Debug("Dropping stale opportunity user data", "key", key, "seq", seq, "committed", s.committedSeq[key])
		if current, ok := s.userData[data.AccountID][data.OpportunityID]; ok {
			return current
		}
		return data
	}
	s.committedSeq[key] = seq
	byOpp, ok := s.userData[data.AccountID]
	if !ok {
		byOpp = make(map[entity.OpportunityID]entity.UserStakingOpportunity)
		s.userData[data.AccountID] = byOpp
	}
	byOpp[data.OpportunityID] = data
	s.cache.SetDefault(key, data)
	return data
}

func userDataKey(accountID entity.AccountID, opportunityID entity.OpportunityID) string {
	return string(accountID) + "|" + string(opportunityID)
}
