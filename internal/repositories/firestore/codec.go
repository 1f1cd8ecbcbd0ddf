package firestore

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/repositories"
)

// Documents are decoded from raw maps rather than tagged structs: quantities may be stored as a
// scalar or a list, statuses as numbers, and option selections as index keyed maps because
// Firestore cannot nest arrays.

type fields map[string]any

func invalid(path, field, format string, args ...any) error {
	return fmt.Errorf("%w: %s.%s: %s", repositories.ErrInvalidDocument, path, field, fmt.Sprintf(format, args...))
}

func (f fields) str(path, key string) (string, error) {
	switch v := f[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", invalid(path, key, "expected string, got %T", v)
	}
}

func (f fields) boolean(path, key string) (bool, error) {
	switch v := f[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, invalid(path, key, "expected bool, got %T", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func (f fields) number(path, key string) (float64, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return 0, nil
	}
	n, ok := toFloat(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, invalid(path, key, "expected number, got %T", v)
	}
	return n, nil
}

func (f fields) integer(path, key string) (int64, error) {
	n, err := f.number(path, key)
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) {
		return 0, invalid(path, key, "expected integer, got %v", n)
	}
	return int64(n), nil
}

func (f fields) timestamp(path, key string) (*time.Time, error) {
	switch v := f[key].(type) {
	case nil:
		return nil, nil
	case time.Time:
		t := v.UTC()
		return &t, nil
	default:
		return nil, invalid(path, key, "expected timestamp, got %T", v)
	}
}

func (f fields) object(path, key string) (fields, error) {
	switch v := f[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return fields(v), nil
	default:
		return nil, invalid(path, key, "expected map, got %T", v)
	}
}

func decodeRestaurant(id string, data fields) (domain.Restaurant, error) {
	const path = "restaurant"
	r := domain.Restaurant{ID: id}
	var err error
	if r.UID, err = data.str(path, "uid"); err != nil {
		return r, err
	}
	if r.RestaurantName, err = data.str(path, "restaurantName"); err != nil {
		return r, err
	}
	if r.InclusiveTax, err = data.boolean(path, "inclusiveTax"); err != nil {
		return r, err
	}
	if r.FoodTax, err = data.number(path, "foodTax"); err != nil {
		return r, err
	}
	if r.AlcoholTax, err = data.number(path, "alcoholTax"); err != nil {
		return r, err
	}
	if r.OrderCount, err = data.integer(path, "orderCount"); err != nil {
		return r, err
	}
	if r.PublicFlag, err = data.boolean(path, "publicFlag"); err != nil {
		return r, err
	}
	if r.DeletedFlag, err = data.boolean(path, "deletedFlag"); err != nil {
		return r, err
	}
	if r.UID == "" {
		return r, invalid(path, "uid", "owner is required")
	}
	if r.FoodTax < 0 || r.AlcoholTax < 0 {
		return r, invalid(path, "foodTax", "tax rates must not be negative")
	}
	return r, nil
}

func decodeMenuItem(id string, data fields) (domain.MenuItem, error) {
	const path = "menu"
	m := domain.MenuItem{ID: id}
	var err error
	if m.ItemName, err = data.str(path, "itemName"); err != nil {
		return m, err
	}
	if m.Price, err = data.number(path, "price"); err != nil {
		return m, err
	}
	tax, err := data.str(path, "tax")
	if err != nil {
		return m, err
	}
	m.Tax = domain.TaxCategory(tax)
	if m.Tax != domain.TaxCategoryAlcohol {
		m.Tax = domain.TaxCategoryFood
	}
	for key, target := range map[string]*string{
		"itemPhoto":       &m.ItemPhoto,
		"itemAliasesName": &m.ItemAliasesName,
		"category1":       &m.Category1,
		"category2":       &m.Category2,
	} {
		if *target, err = data.str(path, key); err != nil {
			return m, err
		}
	}
	if m.DeletedFlag, err = data.boolean(path, "deletedFlag"); err != nil {
		return m, err
	}
	switch raw := data["itemOptionCheckbox"].(type) {
	case nil:
	case []any:
		for i, entry := range raw {
			s, ok := entry.(string)
			if !ok {
				return m, invalid(path, "itemOptionCheckbox", "entry %d is %T", i, entry)
			}
			m.ItemOptionCheckbox = append(m.ItemOptionCheckbox, s)
		}
	default:
		return m, invalid(path, "itemOptionCheckbox", "expected list, got %T", raw)
	}
	if m.Price < 0 {
		return m, invalid(path, "price", "must not be negative")
	}
	return m, nil
}

// decodeQuantities accepts {menuId: n} as well as {menuId: [n, ...]}.
func decodeQuantities(path string, raw fields) (domain.LineQuantities, error) {
	out := make(domain.LineQuantities, len(raw))
	for id, value := range raw {
		switch v := value.(type) {
		case []any:
			lines := make([]float64, 0, len(v))
			for i, entry := range v {
				n, ok := toFloat(entry)
				if !ok {
					return nil, invalid(path, "order", "%s[%d] is %T", id, i, entry)
				}
				lines = append(lines, n)
			}
			out[id] = lines
		default:
			n, ok := toFloat(v)
			if !ok {
				return nil, invalid(path, "order", "%s is %T", id, v)
			}
			out[id] = []float64{n}
		}
	}
	return out, nil
}

func decodeIndexes(path, id string, value any) ([]int, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, invalid(path, "rawOptions", "%s is %T", id, value)
	}
	out := make([]int, 0, len(list))
	for _, entry := range list {
		n, ok := toFloat(entry)
		if !ok || n != math.Trunc(n) {
			return nil, invalid(path, "rawOptions", "%s has non-integer option %v", id, entry)
		}
		out = append(out, int(n))
	}
	return out, nil
}

// decodeOptions reads {menuId: {"0": [..], "1": [..]}}. A bare list is the selection of line 0.
func decodeOptions(path string, raw fields) (domain.OptionSelections, error) {
	out := make(domain.OptionSelections, len(raw))
	for id, value := range raw {
		switch v := value.(type) {
		case []any:
			line, err := decodeIndexes(path, id, v)
			if err != nil {
				return nil, err
			}
			out[id] = [][]int{line}
		case map[string]any:
			lines := make([][]int, 0, len(v))
			for key, entry := range v {
				index, err := strconv.Atoi(key)
				if err != nil || index < 0 || index > 1000 {
					return nil, invalid(path, "rawOptions", "%s has line key %q", id, key)
				}
				for len(lines) <= index {
					lines = append(lines, nil)
				}
				if lines[index], err = decodeIndexes(path, id, entry); err != nil {
					return nil, err
				}
			}
			out[id] = lines
		default:
			return nil, invalid(path, "rawOptions", "%s is %T", id, value)
		}
	}
	return out, nil
}

func encodeOptions(options domain.OptionSelections) map[string]any {
	out := make(map[string]any, len(options))
	for id, lines := range options {
		byLine := make(map[string]any, len(lines))
		for i, line := range lines {
			byLine[strconv.Itoa(i)] = line
		}
		out[id] = byLine
	}
	return out
}

func decodePrices(path string, raw fields) (map[string][]float64, error) {
	out := make(map[string][]float64, len(raw))
	for id, value := range raw {
		list, ok := value.([]any)
		if !ok {
			return nil, invalid(path, "prices", "%s is %T", id, value)
		}
		for i, entry := range list {
			n, ok := toFloat(entry)
			if !ok {
				return nil, invalid(path, "prices", "%s[%d] is %T", id, i, entry)
			}
			out[id] = append(out[id], n)
		}
	}
	return out, nil
}

func decodeMenuSnapshots(path string, raw fields) (map[string]domain.OrderMenuItem, error) {
	out := make(map[string]domain.OrderMenuItem, len(raw))
	for id, value := range raw {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, invalid(path, "menuItems", "%s is %T", id, value)
		}
		item, err := decodeMenuItem(id, fields(m))
		if err != nil {
			return nil, err
		}
		out[id] = item.Snapshot()
	}
	return out, nil
}

func decodeAccounting(path string, raw fields) (*domain.Accounting, error) {
	if raw == nil {
		return nil, nil
	}
	category := func(key string) (domain.CategoryAccounting, error) {
		obj, err := raw.object(path, key)
		if err != nil || obj == nil {
			return domain.CategoryAccounting{}, err
		}
		revenue, err := obj.number(path+"."+key, "revenue")
		if err != nil {
			return domain.CategoryAccounting{}, err
		}
		tax, err := obj.number(path+"."+key, "tax")
		return domain.CategoryAccounting{Revenue: revenue, Tax: tax}, err
	}
	food, err := category("food")
	if err != nil {
		return nil, err
	}
	alcohol, err := category("alcohol")
	if err != nil {
		return nil, err
	}
	return &domain.Accounting{Food: food, Alcohol: alcohol}, nil
}

func decodeOrder(restaurantID, id string, data fields) (domain.Order, error) {
	const path = "order"
	o := domain.Order{ID: id, RestaurantID: restaurantID}
	var err error

	if o.UID, err = data.str(path, "uid"); err != nil {
		return o, err
	}
	if o.UID == "" {
		return o, invalid(path, "uid", "customer is required")
	}
	rawStatus, err := data.integer(path, "status")
	if err != nil {
		return o, err
	}
	o.Status = domain.OrderStatus(rawStatus)
	if !o.Status.Valid() {
		return o, invalid(path, "status", "unknown status %d", rawStatus)
	}

	items, err := data.object(path, "order")
	if err != nil {
		return o, err
	}
	if o.Items, err = decodeQuantities(path, items); err != nil {
		return o, err
	}
	rawOptions, err := data.object(path, "rawOptions")
	if err != nil {
		return o, err
	}
	if rawOptions != nil {
		if o.RawOptions, err = decodeOptions(path, rawOptions); err != nil {
			return o, err
		}
	}
	prices, err := data.object(path, "prices")
	if err != nil {
		return o, err
	}
	if prices != nil {
		if o.Prices, err = decodePrices(path, prices); err != nil {
			return o, err
		}
	}
	menuItems, err := data.object(path, "menuItems")
	if err != nil {
		return o, err
	}
	if menuItems != nil {
		if o.MenuItems, err = decodeMenuSnapshots(path, menuItems); err != nil {
			return o, err
		}
	}
	accounting, err := data.object(path, "accounting")
	if err != nil {
		return o, err
	}
	if o.Accounting, err = decodeAccounting(path, accounting); err != nil {
		return o, err
	}

	for key, target := range map[string]*float64{
		"sub_total":   &o.SubTotal,
		"tax":         &o.Tax,
		"total":       &o.Total,
		"totalCharge": &o.TotalCharge,
		"tip":         &o.Tip,
	} {
		if *target, err = data.number(path, key); err != nil {
			return o, err
		}
	}
	if o.Number, err = data.integer(path, "number"); err != nil {
		return o, err
	}
	for key, target := range map[string]*bool{
		"inclusiveTax": &o.InclusiveTax,
		"sendSMS":      &o.SendSMS,
	} {
		if *target, err = data.boolean(path, key); err != nil {
			return o, err
		}
	}
	for key, target := range map[string]*string{
		"memo":        &o.Memo,
		"phoneNumber": &o.PhoneNumber,
	} {
		if *target, err = data.str(path, key); err != nil {
			return o, err
		}
	}

	payment, err := data.object(path, "payment")
	if err != nil {
		return o, err
	}
	if payment != nil {
		state, err := payment.str(path+".payment", "stripe")
		if err != nil {
			return o, err
		}
		o.Payment.Stripe = domain.PaymentState(state)
		if !o.Payment.Stripe.Valid() {
			return o, invalid(path, "payment.stripe", "unknown payment state %q", state)
		}
	}

	for key, target := range map[string]**time.Time{
		"timePlaced":       &o.TimePlaced,
		"timeEstimated":    &o.TimeEstimated,
		"timeConfirmed":    &o.TimeConfirmed,
		"orderPlacedAt":    &o.OrderPlacedAt,
		"orderAcceptedAt":  &o.OrderAcceptedAt,
		"readyToPickupAt":  &o.ReadyToPickupAt,
		"orderCompletedAt": &o.OrderCompletedAt,
		"orderCanceledAt":  &o.OrderCanceledAt,
		"updatedAt":        &o.UpdatedAt,
	} {
		if *target, err = data.timestamp(path, key); err != nil {
			return o, err
		}
	}
	return o, nil
}

// encodeOrder returns the order fields owned by the lifecycle. Callers merge it by top-level
// field so client-owned fields survive and each written field is replaced whole.
func encodeOrder(o domain.Order) map[string]any {
	items := make(map[string]any, len(o.Items))
	for id, lines := range o.Items {
		items[id] = lines
	}
	doc := map[string]any{
		"uid":          o.UID,
		"status":       int64(o.Status),
		"order":        items,
		"sub_total":    o.SubTotal,
		"tax":          o.Tax,
		"inclusiveTax": o.InclusiveTax,
		"total":        o.Total,
		"totalCharge":  o.TotalCharge,
		"tip":          o.Tip,
		"number":       o.Number,
		"sendSMS":      o.SendSMS,
		"memo":         o.Memo,
		"phoneNumber":  o.PhoneNumber,
	}
	if o.RawOptions != nil {
		doc["rawOptions"] = encodeOptions(o.RawOptions)
	}
	if o.Prices != nil {
		prices := make(map[string]any, len(o.Prices))
		for id, lines := range o.Prices {
			prices[id] = lines
		}
		doc["prices"] = prices
	}
	if o.MenuItems != nil {
		menus := make(map[string]any, len(o.MenuItems))
		for id, m := range o.MenuItems {
			menus[id] = map[string]any{
				"price":           m.Price,
				"itemName":        m.ItemName,
				"itemPhoto":       m.ItemPhoto,
				"itemAliasesName": m.ItemAliasesName,
				"category1":       m.Category1,
				"category2":       m.Category2,
			}
		}
		doc["menuItems"] = menus
	}
	if o.Accounting != nil {
		doc["accounting"] = map[string]any{
			"food":    map[string]any{"revenue": o.Accounting.Food.Revenue, "tax": o.Accounting.Food.Tax},
			"alcohol": map[string]any{"revenue": o.Accounting.Alcohol.Revenue, "tax": o.Accounting.Alcohol.Tax},
		}
	}
	if o.Payment.Stripe != domain.PaymentStateNone {
		doc["payment"] = map[string]any{"stripe": string(o.Payment.Stripe)}
	}
	for key, value := range map[string]*time.Time{
		"timePlaced":       o.TimePlaced,
		"timeEstimated":    o.TimeEstimated,
		"timeConfirmed":    o.TimeConfirmed,
		"orderPlacedAt":    o.OrderPlacedAt,
		"orderAcceptedAt":  o.OrderAcceptedAt,
		"readyToPickupAt":  o.ReadyToPickupAt,
		"orderCompletedAt": o.OrderCompletedAt,
		"orderCanceledAt":  o.OrderCanceledAt,
		"updatedAt":        o.UpdatedAt,
	} {
		if value != nil {
			doc[key] = value.UTC()
		}
	}
	return doc
}

func decodeOrderTotal(data fields) (domain.OrderTotal, error) {
	const path = "orderTotal"
	var t domain.OrderTotal
	var err error
	if t.OwnerUID, err = data.str(path, "uid"); err != nil {
		return t, err
	}
	if t.RestaurantID, err = data.str(path, "restaurantId"); err != nil {
		return t, err
	}
	if t.MenuID, err = data.str(path, "menuId"); err != nil {
		return t, err
	}
	if t.Date, err = data.str(path, "date"); err != nil {
		return t, err
	}
	t.Count, err = data.integer(path, "count")
	return t, err
}

func encodeOrderTotal(t domain.OrderTotal) map[string]any {
	return map[string]any{
		"uid":          t.OwnerUID,
		"restaurantId": t.RestaurantID,
		"menuId":       t.MenuID,
		"date":         t.Date,
		"count":        t.Count,
	}
}

func decodeCustomerLog(data fields) (domain.CustomerLog, error) {
	const path = "userLog"
	var l domain.CustomerLog
	var err error
	if l.UID, err = data.str(path, "uid"); err != nil {
		return l, err
	}
	if l.OwnerUID, err = data.str(path, "ownerUid"); err != nil {
		return l, err
	}
	if l.RestaurantID, err = data.str(path, "restaurantId"); err != nil {
		return l, err
	}
	if l.Counter, err = data.integer(path, "counter"); err != nil {
		return l, err
	}
	if l.CancelCounter, err = data.integer(path, "cancelCounter"); err != nil {
		return l, err
	}
	current, err := data.timestamp(path, "currentOrder")
	if err != nil {
		return l, err
	}
	if current != nil {
		l.CurrentOrder = *current
	}
	l.LastOrder, err = data.timestamp(path, "lastOrder")
	return l, err
}

func encodeCustomerLog(l domain.CustomerLog) map[string]any {
	doc := map[string]any{
		"uid":           l.UID,
		"ownerUid":      l.OwnerUID,
		"restaurantId":  l.RestaurantID,
		"counter":       l.Counter,
		"cancelCounter": l.CancelCounter,
		"currentOrder":  l.CurrentOrder.UTC(),
	}
	if l.LastOrder != nil {
		doc["lastOrder"] = l.LastOrder.UTC()
	}
	return doc
}

func decodePaymentRecord(restaurantID, orderID string, data fields) (domain.PaymentRecord, error) {
	const path = "system/stripe"
	record := domain.PaymentRecord{RestaurantID: restaurantID, OrderID: orderID}
	intent, err := data.object(path, "paymentIntent")
	if err != nil {
		return record, err
	}
	if intent == nil {
		return record, invalid(path, "paymentIntent", "missing")
	}
	if record.PaymentIntentID, err = intent.str(path+".paymentIntent", "id"); err != nil {
		return record, err
	}
	if record.PaymentIntentID == "" {
		return record, invalid(path, "paymentIntent.id", "missing")
	}
	if created, err := data.timestamp(path, "createdAt"); err != nil {
		return record, err
	} else if created != nil {
		record.CreatedAt = *created
	}
	return record, nil
}

func snapshotFields(snap *firestore.DocumentSnapshot) fields {
	data := snap.Data()
	if data == nil {
		data = map[string]any{}
	}
	return fields(data)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
