package valuation

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// GroupTotal is the valuation of one product group.
type GroupTotal struct {
	GroupID       id.ID          `json:"groupId"`
	ValueTotal    types.Money    `json:"valueTotal"`
	QuantityTotal types.Quantity `json:"quantityTotal"`
	// ProductCount is the number of distinct products summed into this group.
	ProductCount int `json:"productCount"`
}

// Rollup is the result of RollupByGroup.
type Rollup struct {
	AsOf   time.Time            `json:"asOf"`
	Groups map[id.ID]GroupTotal `json:"groups"`
	// TotalValue counts each distinct product once, even if it sits in several groups.
	TotalValue types.Money `json:"totalValue"`
	// TotalProducts is the size of the union of all groups.
	TotalProducts int `json:"totalProducts"`
}

// RollupSnapshots sums snapshot values per group. Counts are taken from the
// products actually summed; a member without a snapshot counts as zero stock.
func RollupSnapshots(asOf time.Time, membership map[id.ID][]id.ID, snaps map[id.ID]Snapshot) Rollup {
	r := Rollup{
		AsOf:       asOf,
		Groups:     make(map[id.ID]GroupTotal, len(membership)),
		TotalValue: types.Zero(),
	}

	union := make(map[id.ID]struct{})
	for groupID, members := range membership {
		total := GroupTotal{GroupID: groupID, ValueTotal: types.Zero()}
		seen := make(map[id.ID]struct{}, len(members))
		for _, pid := range members {
			if _, dup := seen[pid]; dup {
				continue
			}
			seen[pid] = struct{}{}

			s := snaps[pid]
			total.ValueTotal = total.ValueTotal.Add(s.CostBasisValue)
			total.QuantityTotal += s.Quantity
			total.ProductCount++

			if _, counted := union[pid]; !counted {
				union[pid] = struct{}{}
				r.TotalValue = r.TotalValue.Add(s.CostBasisValue)
			}
		}
		r.Groups[groupID] = total
	}
	r.TotalProducts = len(union)
	return r
}

// RollupByGroup snapshots every member product as of asOf and sums them per group.
func (e *Engine) RollupByGroup(ctx context.Context, asOf time.Time, membership map[id.ID][]id.ID) (Rollup, error) {
	var productIDs []id.ID
	seen := make(map[id.ID]struct{})
	for _, members := range membership {
		for _, pid := range members {
			if _, ok := seen[pid]; !ok {
				seen[pid] = struct{}{}
				productIDs = append(productIDs, pid)
			}
		}
	}
	if productIDs == nil {
		productIDs = []id.ID{}
	}

	list, err := e.Snapshots(ctx, asOf, productIDs)
	if err != nil {
		return Rollup{}, err
	}
	snaps := make(map[id.ID]Snapshot, len(list))
	for _, s := range list {
		snaps[s.ProductID] = s
	}
	return RollupSnapshots(asOf, membership, snaps), nil
}
