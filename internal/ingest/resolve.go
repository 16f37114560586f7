package ingest

import (
	"strings"

	"github.com/google/uuid"

	"github.com/vendaops/salesync/internal/store"
	"github.com/vendaops/salesync/internal/strutil"
)

// minNationalIDLen is the minimum digit count for a national ID to be
// considered usable as an identity key.
const minNationalIDLen = 11

// ClientKeys are the identity keys available for one client reference.
type ClientKeys struct {
	NationalID   string
	RecordNumber string
	Name         string
}

type sellerStrategy func(name string) (store.User, bool)

// Resolver links spreadsheet seller/client text to canonical identities.
// It is built once per import from immutable lookup tables and is safe for
// concurrent reads.
type Resolver struct {
	sellerStrategies []sellerStrategy

	clientsByNationalID map[string]store.ClientIdentity
	clientsByRecord     map[string]store.ClientIdentity
	clientsByName       map[string]store.ClientIdentity
}

// NewResolver indexes the directory tables for resolution.
func NewResolver(users []store.User, aliases []store.SellerAlias, clients []store.ClientIdentity) *Resolver {
	byAlias := make(map[string]store.User, len(aliases))
	byFullName := make(map[string]store.User, len(users))
	byFirstName := make(map[string]store.User, len(users))
	byID := make(map[uuid.UUID]store.User, len(users))

	for _, u := range users {
		byID[u.ID] = u
		byFullName[strutil.NormalizeName(u.FullName)] = u

		first := u.FirstName
		if first == "" {
			if fields := strings.Fields(u.FullName); len(fields) > 0 {
				first = fields[0]
			}
		}
		key := strutil.NormalizeName(first)
		if key == "" {
			continue
		}
		// An ambiguous first name resolves to nobody rather than to the
		// wrong person.
		if _, dup := byFirstName[key]; dup {
			byFirstName[key] = store.User{}
		} else {
			byFirstName[key] = u
		}
	}
	for _, a := range aliases {
		if u, ok := byID[a.UserID]; ok {
			byAlias[strutil.NormalizeName(a.Alias)] = u
		}
	}

	r := &Resolver{
		clientsByNationalID: make(map[string]store.ClientIdentity, len(clients)),
		clientsByRecord:     make(map[string]store.ClientIdentity, len(clients)),
		clientsByName:       make(map[string]store.ClientIdentity, len(clients)),
	}
	for _, c := range clients {
		if id := strutil.DigitsOnly(c.NationalID); len(id) >= minNationalIDLen {
			r.clientsByNationalID[id] = c
		}
		if rec := strings.TrimSpace(c.RecordNumber); rec != "" {
			r.clientsByRecord[rec] = c
		}
		if name := strutil.NormalizeName(c.Name); name != "" {
			r.clientsByName[name] = c
		}
	}

	// Ordered strategies, first success wins. Adding a new resolution rule
	// means appending a strategy, not growing a conditional tree.
	r.sellerStrategies = []sellerStrategy{
		func(name string) (store.User, bool) {
			u, ok := byAlias[strutil.NormalizeName(name)]
			return u, ok
		},
		func(name string) (store.User, bool) {
			u, ok := byFullName[strutil.NormalizeName(name)]
			return u, ok
		},
		func(name string) (store.User, bool) {
			fields := strings.Fields(strutil.NormalizeName(name))
			if len(fields) == 0 {
				return store.User{}, false
			}
			u, ok := byFirstName[fields[0]]
			if !ok || u.ID == uuid.Nil {
				return store.User{}, false
			}
			return u, true
		},
	}

	return r
}

// ResolveSeller tries each seller strategy in order and returns the first
// canonical user that matches.
func (r *Resolver) ResolveSeller(name string) (store.User, bool) {
	if strings.TrimSpace(name) == "" {
		return store.User{}, false
	}
	for _, strategy := range r.sellerStrategies {
		if u, ok := strategy(name); ok {
			return u, true
		}
	}
	return store.User{}, false
}

// ResolveClient tries national ID, record number, then normalized name.
// A miss is an expected outcome recorded in reconciliation stats, never an
// error.
func (r *Resolver) ResolveClient(keys ClientKeys) (store.ClientIdentity, bool) {
	if id := strutil.DigitsOnly(keys.NationalID); len(id) >= minNationalIDLen {
		if c, ok := r.clientsByNationalID[id]; ok {
			return c, true
		}
	}
	if rec := strings.TrimSpace(keys.RecordNumber); rec != "" {
		if c, ok := r.clientsByRecord[rec]; ok {
			return c, true
		}
	}
	if name := strutil.NormalizeName(keys.Name); name != "" {
		if c, ok := r.clientsByName[name]; ok {
			return c, true
		}
	}
	return store.ClientIdentity{}, false
}

// Resolve settles the status of a normalized sale: matched when the seller
// resolves to a canonical user, unmatched otherwise. Client resolution is
// attached when available but never blocks the row.
func (r *Resolver) Resolve(sale *ParsedSale) {
	if sale.Status == StatusError {
		return
	}

	if u, ok := r.ResolveSeller(sale.SellerName); ok {
		sale.Status = StatusMatched
		sale.MatchedUserID = u.ID
		sale.MatchedTeamID = u.TeamID
	} else {
		sale.Status = StatusUnmatched
	}

	if c, ok := r.ResolveClient(ClientKeys{Name: sale.ClientName}); ok {
		sale.ClientID = c.ID
		sale.ClientMatched = true
	}
}
