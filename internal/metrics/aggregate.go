// Package metrics computes reporting rollups over one resolved import
// batch. All aggregation is in-memory and deterministic: map-backed
// accumulators are emitted in first-encounter order so chart payloads are
// stable across runs.
package metrics

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vendaops/salesync/internal/strutil"
)

// Sale is the typed row the aggregator consumes. The importer projects
// resolved rows into this shape so the aggregator never depends on the
// ingestion types.
type Sale struct {
	Date       time.Time
	Department string
	Procedure  string
	Client     string
	Seller     string
	SellerID   uuid.UUID
	TeamID     uuid.UUID
	AmountSold float64
	AmountPaid float64
	Matched    bool
}

// Rollup is one count/sold/paid accumulator keyed by a dimension value.
type Rollup struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Sold  float64 `json:"sold"`
	Paid  float64 `json:"paid"`
}

// SellerRollup extends Rollup with the distinct-client count.
type SellerRollup struct {
	Rollup
	SellerID        uuid.UUID `json:"sellerId,omitempty"`
	DistinctClients int       `json:"distinctClients"`
}

// TeamRollup is a Rollup scoped to rows whose resolved seller belongs to
// the team.
type TeamRollup struct {
	Rollup
	TeamID          uuid.UUID `json:"teamId"`
	DistinctClients int       `json:"distinctClients"`
}

// ClientRevenue is one entry of the top-clients ranking.
type ClientRevenue struct {
	Client      string  `json:"client"`
	Count       int     `json:"count"`
	RevenueSold float64 `json:"revenueSold"`
	RevenuePaid float64 `json:"revenuePaid"`
}

// BatchMetrics is the full rollup set for one batch.
type BatchMetrics struct {
	SaleCount        int     `json:"saleCount"`
	TotalSold        float64 `json:"totalSold"`
	TotalPaid        float64 `json:"totalPaid"`
	DistinctClients  int     `json:"distinctClients"`
	AvgTicketPerSale float64 `json:"averageTicketPerSale"`
	AvgTicketPerClient float64 `json:"averageTicketPerClient"`

	BySeller    []SellerRollup `json:"bySeller"`
	ByTeam      []TeamRollup   `json:"byTeam"`
	ByProcedure []Rollup       `json:"byProcedure"`

	// ByDepartment covers every department and feeds audit totals;
	// ByDepartmentDisplay excludes the configured denylist and feeds
	// chart-facing rollups only.
	ByDepartment        []Rollup `json:"byDepartment"`
	ByDepartmentDisplay []Rollup `json:"byDepartmentDisplay"`

	TopClients []ClientRevenue `json:"topClients"`
}

// Options configures aggregation.
type Options struct {
	// ExcludedDepartments is the display denylist, compared
	// case-insensitively against department names.
	ExcludedDepartments []string
	// TopClientLimit bounds the top-clients ranking. Zero means 10.
	TopClientLimit int
}

// DefaultExcludedDepartments is the stock display denylist.
func DefaultExcludedDepartments() []string {
	return []string{"devolução", "cancelamento", "perda", "outros", "não informado"}
}

type accumulator struct {
	keys   []string
	rollup map[string]*Rollup
}

func newAccumulator() *accumulator {
	return &accumulator{rollup: make(map[string]*Rollup)}
}

func (a *accumulator) add(key string, sold, paid float64) *Rollup {
	r, ok := a.rollup[key]
	if !ok {
		r = &Rollup{Key: key}
		a.rollup[key] = r
		a.keys = append(a.keys, key)
	}
	r.Count++
	r.Sold += sold
	r.Paid += paid
	return r
}

func (a *accumulator) list() []Rollup {
	out := make([]Rollup, 0, len(a.keys))
	for _, k := range a.keys {
		out = append(out, *a.rollup[k])
	}
	return out
}

// Aggregate computes the batch rollups over every non-error row (matched
// and unmatched alike).
func Aggregate(sales []Sale, opts Options) *BatchMetrics {
	limit := opts.TopClientLimit
	if limit <= 0 {
		limit = 10
	}
	denylist := make(map[string]bool, len(opts.ExcludedDepartments))
	for _, d := range opts.ExcludedDepartments {
		denylist[strings.ToLower(strings.TrimSpace(d))] = true
	}

	m := &BatchMetrics{}

	sellers := newAccumulator()
	sellerIDs := make(map[string]uuid.UUID)
	sellerClients := make(map[string]map[string]bool)

	teams := newAccumulator()
	teamClients := make(map[string]map[string]bool)

	departments := newAccumulator()
	procedures := newAccumulator()

	clientOrder := []string{}
	clientRevenue := make(map[string]*ClientRevenue)
	allClients := make(map[string]bool)

	for _, s := range sales {
		m.SaleCount++
		m.TotalSold += s.AmountSold
		m.TotalPaid += s.AmountPaid

		clientKey := normalizeClient(s.Client)

		sellerKey := s.Seller
		if sellerKey == "" {
			sellerKey = "não informado"
		}
		sellers.add(sellerKey, s.AmountSold, s.AmountPaid)
		if s.SellerID != uuid.Nil {
			sellerIDs[sellerKey] = s.SellerID
		}
		if clientKey != "" {
			set, ok := sellerClients[sellerKey]
			if !ok {
				set = make(map[string]bool)
				sellerClients[sellerKey] = set
			}
			set[clientKey] = true
			allClients[clientKey] = true
		}

		if s.Matched && s.TeamID != uuid.Nil {
			teamKey := s.TeamID.String()
			teams.add(teamKey, s.AmountSold, s.AmountPaid)
			if clientKey != "" {
				set, ok := teamClients[teamKey]
				if !ok {
					set = make(map[string]bool)
					teamClients[teamKey] = set
				}
				set[clientKey] = true
			}
		}

		dept := s.Department
		if dept == "" {
			dept = "não informado"
		}
		departments.add(dept, s.AmountSold, s.AmountPaid)

		if s.Procedure != "" {
			procedures.add(s.Procedure, s.AmountSold, s.AmountPaid)
		}

		if s.Client != "" {
			cr, ok := clientRevenue[clientKey]
			if !ok {
				cr = &ClientRevenue{Client: s.Client}
				clientRevenue[clientKey] = cr
				clientOrder = append(clientOrder, clientKey)
			}
			cr.Count++
			cr.RevenueSold += s.AmountSold
			cr.RevenuePaid += s.AmountPaid
		}
	}

	for _, r := range sellers.list() {
		m.BySeller = append(m.BySeller, SellerRollup{
			Rollup:          r,
			SellerID:        sellerIDs[r.Key],
			DistinctClients: len(sellerClients[r.Key]),
		})
	}
	for _, r := range teams.list() {
		id, _ := uuid.Parse(r.Key)
		m.ByTeam = append(m.ByTeam, TeamRollup{
			Rollup:          r,
			TeamID:          id,
			DistinctClients: len(teamClients[r.Key]),
		})
	}

	m.ByDepartment = departments.list()
	for _, r := range m.ByDepartment {
		if !denylist[strings.ToLower(strings.TrimSpace(r.Key))] {
			m.ByDepartmentDisplay = append(m.ByDepartmentDisplay, r)
		}
	}
	m.ByProcedure = procedures.list()

	ranking := make([]ClientRevenue, 0, len(clientOrder))
	for _, key := range clientOrder {
		ranking = append(ranking, *clientRevenue[key])
	}
	// Stable: ties keep first-encounter order.
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].RevenueSold > ranking[j].RevenueSold
	})
	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	m.TopClients = ranking

	m.DistinctClients = len(allClients)
	totalRevenue := m.TotalSold
	if m.SaleCount > 0 {
		m.AvgTicketPerSale = totalRevenue / float64(m.SaleCount)
	}
	if m.DistinctClients > 0 {
		m.AvgTicketPerClient = totalRevenue / float64(m.DistinctClients)
	}

	return m
}

// normalizeClient dedups clients across spelling variants the same way the
// entity resolver compares names.
func normalizeClient(s string) string {
	return strutil.NormalizeName(s)
}
