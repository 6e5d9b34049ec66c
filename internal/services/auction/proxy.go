package auction

import (
	"sort"
	"time"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TieBreak decides which of two equal proxy ceilings prevails.
type TieBreak string

const (
	TieBreakEarliest TieBreak = "earliest"
	TieBreakLatest   TieBreak = "latest"
)

// ProxyResolver raises standing proxy bids until no proxy other than the
// leader's has a ceiling above the current price.
type ProxyResolver struct {
	Increment     decimal.Decimal
	TieBreak      TieBreak
	MaxIterations int
}

// outranks reports whether p beats o: higher ceiling first, then the
// tie-break policy on creation order.
func (r ProxyResolver) outranks(p, o models.ProxyBid) bool {
	if !p.Ceiling.Equal(o.Ceiling) {
		return p.Ceiling.GreaterThan(o.Ceiling)
	}
	if r.TieBreak == TieBreakLatest {
		return o.Before(p)
	}
	return p.Before(o)
}

// Resolve computes the auto bids that follow from a's current state. a is
// not modified. Every returned bid strictly exceeds the one before it and
// never exceeds its owner's ceiling. Either the whole cascade is returned
// or an error, never a prefix.
func (r ProxyResolver) Resolve(a *models.Auction, now time.Time) ([]models.Bid, error) {
	proxies := make([]models.ProxyBid, 0, len(a.ProxyBids))
	for _, pb := range a.ProxyBids {
		proxies = append(proxies, pb)
	}
	if len(proxies) == 0 {
		return nil, nil
	}
	sort.Slice(proxies, func(i, j int) bool { return proxies[i].Before(proxies[j]) })

	limit := r.MaxIterations
	if limit <= 0 {
		limit = 2*len(proxies) + 2
	}

	price := a.CurrentPrice
	leader := a.LeaderID()
	var out []models.Bid

	for i := 0; ; i++ {
		challenger, ok := r.bestChallenger(proxies, leader, price)
		if !ok {
			return out, nil
		}
		if i >= limit {
			return nil, auctionerr.ErrProxyNotConverged.Withf("proxy resolution for auction %s exceeded %d iterations", a.ID, limit)
		}

		// The leader's own proxy defends when it outranks the challenger:
		// it rises just enough to beat the challenger's ceiling.
		if own, has := a.ProxyBids[leader]; has && leader != "" && !r.outranks(challenger, own) {
			amount := decimal.Min(own.Ceiling, challenger.Ceiling.Add(r.Increment))
			out = append(out, r.autoBid(a.ID, leader, amount, now))
			price = amount
			continue
		}

		// The challenger takes the lead, bidding one increment over the
		// next-best standing interest, capped at its own ceiling.
		next := price
		for _, pb := range proxies {
			if pb.UserID != challenger.UserID && pb.Ceiling.GreaterThan(next) {
				next = pb.Ceiling
			}
		}
		amount := decimal.Min(challenger.Ceiling, decimal.Max(price.Add(r.Increment), next.Add(r.Increment)))
		out = append(out, r.autoBid(a.ID, challenger.UserID, amount, now))
		price = amount
		leader = challenger.UserID
	}
}

func (r ProxyResolver) bestChallenger(proxies []models.ProxyBid, leader string, price decimal.Decimal) (models.ProxyBid, bool) {
	var (
		best  models.ProxyBid
		found bool
	)
	for _, pb := range proxies {
		if pb.UserID == leader || !pb.Ceiling.GreaterThan(price) {
			continue
		}
		if !found || r.outranks(pb, best) {
			best, found = pb, true
		}
	}
	return best, found
}

func (r ProxyResolver) autoBid(auctionID, userID string, amount decimal.Decimal, now time.Time) models.Bid {
	return models.Bid{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		Kind:      models.BidKindAuto,
		CreatedAt: now,
	}
}
