package services

import (
	"fmt"
	"slices"
	"time"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/repositories"
)

const orderTotalDateLayout = "20060102"

// orderTotalsUpdate describes one placement (Positive) or its reversal.
type orderTotalsUpdate struct {
	CustomerUID  string
	RestaurantID string
	OwnerUID     string
	Items        domain.LineQuantities
	PlacedAt     time.Time
	Positive     bool
	Location     *time.Location
}

// orderTotalDate returns the restaurant-local day key for the per-menu counters.
func orderTotalDate(placedAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return placedAt.In(loc).Format(orderTotalDateLayout)
}

// applyOrderTotals maintains the per-day menu counters and the customer log inside tx. All
// reads are issued before the first write; callers must finish their own reads beforehand
// and write the order afterwards.
func applyOrderTotals(tx repositories.OrderTx, update orderTotalsUpdate) error {
	date := orderTotalDate(update.PlacedAt, update.Location)

	menuIDs := make([]string, 0, len(update.Items))
	for id := range update.Items {
		menuIDs = append(menuIDs, id)
	}
	slices.Sort(menuIDs)

	type counterState struct {
		total domain.OrderTotal
		found bool
	}
	counters := make([]counterState, len(menuIDs))
	for i, id := range menuIDs {
		total, found, err := tx.GetOrderTotal(update.RestaurantID, id, date)
		if err != nil {
			return fmt.Errorf("read order total %s/%s: %w", id, date, err)
		}
		counters[i] = counterState{total: total, found: found}
	}
	log, logFound, err := tx.GetCustomerLog(update.RestaurantID, update.CustomerUID)
	if err != nil {
		return fmt.Errorf("read customer log: %w", err)
	}

	for i, id := range menuIDs {
		quantity := sumQuantities(update.Items[id])
		state := counters[i]
		total := state.total
		if !state.found {
			total = domain.OrderTotal{
				RestaurantID: update.RestaurantID,
				MenuID:       id,
				Date:         date,
				OwnerUID:     update.OwnerUID,
				Count:        quantity,
			}
		} else if update.Positive {
			total.Count += quantity
		} else {
			total.Count -= quantity
		}
		if err := tx.SetOrderTotal(total); err != nil {
			return fmt.Errorf("write order total %s/%s: %w", id, date, err)
		}
	}

	placedAt := update.PlacedAt
	if !logFound {
		log = domain.CustomerLog{
			RestaurantID: update.RestaurantID,
			UID:          update.CustomerUID,
			OwnerUID:     update.OwnerUID,
			CurrentOrder: placedAt,
		}
		if update.Positive {
			log.Counter = 1
		} else {
			log.CancelCounter = 1
		}
	} else {
		if update.Positive {
			log.Counter++
		} else {
			log.CancelCounter++
		}
		last := log.CurrentOrder
		if last.IsZero() {
			last = placedAt
		}
		log.LastOrder = &last
		log.CurrentOrder = placedAt
	}
	if err := tx.SetCustomerLog(log); err != nil {
		return fmt.Errorf("write customer log: %w", err)
	}
	return nil
}

func sumQuantities(quantities []float64) int64 {
	var total int64
	for _, q := range quantities {
		total += int64(q)
	}
	return total
}

// reversalUpdate undoes the counters applied when order was placed. The day key follows the
// original placement time.
func reversalUpdate(order Order, ownerUID string, loc *time.Location, now time.Time) orderTotalsUpdate {
	placedAt := now
	switch {
	case order.TimePlaced != nil:
		placedAt = *order.TimePlaced
	case order.OrderPlacedAt != nil:
		placedAt = *order.OrderPlacedAt
	}
	return orderTotalsUpdate{
		CustomerUID:  order.UID,
		RestaurantID: order.RestaurantID,
		OwnerUID:     ownerUID,
		Items:        order.Items,
		PlacedAt:     placedAt,
		Positive:     false,
		Location:     loc,
	}
}
