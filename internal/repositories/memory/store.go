// Package memory provides an in-process OrderStore with optimistic transactions. It backs
// local runs without Firestore credentials and the service tests.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	domain "github.com/ukisoft/ownplate/internal/domain"
	"github.com/ukisoft/ownplate/internal/repositories"
)

const defaultMaxAttempts = 5

var errTooManyAttempts = errors.New("memory: transaction retry limit reached")

type entry struct {
	value   any
	version uint64
}

// Store keeps documents keyed by their Firestore-style path. Each committed write bumps the
// document version; a transaction commits only if every document it read is unchanged.
type Store struct {
	mu          sync.Mutex
	docs        map[string]entry
	maxAttempts int
}

var _ repositories.OrderStore = (*Store)(nil)

// Option customises the store.
type Option func(*Store)

// WithMaxAttempts overrides how many times a conflicting transaction is retried.
func WithMaxAttempts(attempts int) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		docs:        make(map[string]entry),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunTransaction executes fn with optimistic concurrency control.
func (s *Store) RunTransaction(ctx context.Context, fn repositories.TxFunc) error {
	if fn == nil {
		return errors.New("memory: transaction function is required")
	}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &transaction{store: s, reads: make(map[string]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		committed, err := s.commit(tx)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
		if attempt >= s.maxAttempts {
			return repositories.NewStoreError("commit", "", repositories.StoreErrorConflict, errTooManyAttempts)
		}
	}
}

func (s *Store) commit(tx *transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, version := range tx.reads {
		if s.docs[path].version != version {
			return false, nil
		}
	}
	// Apply into a scratch map first so a failing mutation leaves the store untouched.
	staged := make(map[string]entry, len(tx.writes))
	for _, w := range tx.writes {
		current, ok := staged[w.path]
		if !ok {
			current = s.docs[w.path]
		}
		value, err := w.apply(current.value)
		if err != nil {
			return false, err
		}
		staged[w.path] = entry{value: value, version: current.version + 1}
	}
	maps.Copy(s.docs, staged)
	return true, nil
}

func (s *Store) load(path string) (entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[path]
	return e, ok
}

func (s *Store) put(path string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.docs[path]
	s.docs[path] = entry{value: value, version: e.version + 1}
}

func notFound(op, path string) error {
	return repositories.NewStoreError(op, path, repositories.StoreErrorNotFound, nil)
}

func (s *Store) GetRestaurant(_ context.Context, restaurantID string) (domain.Restaurant, error) {
	path := repositories.RestaurantPath(restaurantID)
	e, ok := s.load(path)
	if !ok {
		return domain.Restaurant{}, notFound("get", path)
	}
	return e.value.(domain.Restaurant), nil
}

func (s *Store) GetOrder(_ context.Context, restaurantID, orderID string) (domain.Order, error) {
	path := repositories.OrderPath(restaurantID, orderID)
	e, ok := s.load(path)
	if !ok {
		return domain.Order{}, notFound("get", path)
	}
	return cloneOrder(e.value.(domain.Order)), nil
}

func (s *Store) GetMenuItems(_ context.Context, restaurantID string, menuIDs []string) (map[string]domain.MenuItem, error) {
	items := make(map[string]domain.MenuItem, len(menuIDs))
	for _, id := range menuIDs {
		if e, ok := s.load(repositories.MenuPath(restaurantID, id)); ok {
			item := e.value.(domain.MenuItem)
			item.ItemOptionCheckbox = slices.Clone(item.ItemOptionCheckbox)
			items[id] = item
		}
	}
	return items, nil
}

func (s *Store) GetPaymentRecord(_ context.Context, restaurantID, orderID string) (domain.PaymentRecord, error) {
	path := repositories.PaymentRecordPath(restaurantID, orderID)
	e, ok := s.load(path)
	if !ok {
		return domain.PaymentRecord{}, notFound("get", path)
	}
	return e.value.(domain.PaymentRecord), nil
}

func (s *Store) GetPaymentAccount(_ context.Context, ownerUID string) (string, error) {
	path := repositories.PaymentAccountPath(ownerUID)
	e, ok := s.load(path)
	if !ok {
		return "", notFound("get", path)
	}
	return e.value.(string), nil
}

// PutRestaurant stores a restaurant document.
func (s *Store) PutRestaurant(restaurant domain.Restaurant) {
	s.put(repositories.RestaurantPath(restaurant.ID), restaurant)
}

// PutMenuItem stores a menu document.
func (s *Store) PutMenuItem(restaurantID string, item domain.MenuItem) {
	item.ItemOptionCheckbox = slices.Clone(item.ItemOptionCheckbox)
	s.put(repositories.MenuPath(restaurantID, item.ID), item)
}

// PutOrder stores an order document.
func (s *Store) PutOrder(order domain.Order) {
	s.put(repositories.OrderPath(order.RestaurantID, order.ID), cloneOrder(order))
}

// PutPaymentRecord stores the authorization record of an order.
func (s *Store) PutPaymentRecord(record domain.PaymentRecord) {
	s.put(repositories.PaymentRecordPath(record.RestaurantID, record.OrderID), record)
}

// PutPaymentAccount stores the connected account of an owner.
func (s *Store) PutPaymentAccount(ownerUID, account string) {
	s.put(repositories.PaymentAccountPath(ownerUID), account)
}

// OrderTotal returns a day counter for assertions.
func (s *Store) OrderTotal(restaurantID, menuID, date string) (domain.OrderTotal, bool) {
	e, ok := s.load(repositories.OrderTotalPath(restaurantID, menuID, date))
	if !ok {
		return domain.OrderTotal{}, false
	}
	return e.value.(domain.OrderTotal), true
}

// CustomerLog returns a customer log for assertions.
func (s *Store) CustomerLog(restaurantID, uid string) (domain.CustomerLog, bool) {
	e, ok := s.load(repositories.CustomerLogPath(restaurantID, uid))
	if !ok {
		return domain.CustomerLog{}, false
	}
	return cloneCustomerLog(e.value.(domain.CustomerLog)), true
}

type write struct {
	path  string
	apply func(current any) (any, error)
}

type transaction struct {
	store  *Store
	reads  map[string]uint64
	writes []write
}

func (t *transaction) read(path string) (entry, bool, error) {
	if len(t.writes) > 0 {
		return entry{}, false, repositories.ErrReadAfterWrite
	}
	e, ok := t.store.load(path)
	t.reads[path] = e.version
	return e, ok, nil
}

func (t *transaction) set(path string, value any) error {
	t.writes = append(t.writes, write{path: path, apply: func(any) (any, error) { return value, nil }})
	return nil
}

func (t *transaction) GetRestaurant(restaurantID string) (domain.Restaurant, error) {
	path := repositories.RestaurantPath(restaurantID)
	e, ok, err := t.read(path)
	if err != nil {
		return domain.Restaurant{}, err
	}
	if !ok {
		return domain.Restaurant{}, notFound("get", path)
	}
	return e.value.(domain.Restaurant), nil
}

func (t *transaction) GetOrder(restaurantID, orderID string) (domain.Order, error) {
	path := repositories.OrderPath(restaurantID, orderID)
	e, ok, err := t.read(path)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, notFound("get", path)
	}
	return cloneOrder(e.value.(domain.Order)), nil
}

func (t *transaction) GetPaymentRecord(restaurantID, orderID string) (domain.PaymentRecord, error) {
	path := repositories.PaymentRecordPath(restaurantID, orderID)
	e, ok, err := t.read(path)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if !ok {
		return domain.PaymentRecord{}, notFound("get", path)
	}
	return e.value.(domain.PaymentRecord), nil
}

func (t *transaction) GetOrderTotal(restaurantID, menuID, date string) (domain.OrderTotal, bool, error) {
	e, ok, err := t.read(repositories.OrderTotalPath(restaurantID, menuID, date))
	if err != nil || !ok {
		return domain.OrderTotal{}, false, err
	}
	return e.value.(domain.OrderTotal), true, nil
}

func (t *transaction) GetCustomerLog(restaurantID, uid string) (domain.CustomerLog, bool, error) {
	e, ok, err := t.read(repositories.CustomerLogPath(restaurantID, uid))
	if err != nil || !ok {
		return domain.CustomerLog{}, false, err
	}
	return cloneCustomerLog(e.value.(domain.CustomerLog)), true, nil
}

func (t *transaction) SetOrder(order domain.Order) error {
	return t.set(repositories.OrderPath(order.RestaurantID, order.ID), cloneOrder(order))
}

func (t *transaction) SetRestaurantOrderCount(restaurantID string, count int64) error {
	path := repositories.RestaurantPath(restaurantID)
	t.writes = append(t.writes, write{path: path, apply: func(current any) (any, error) {
		restaurant, ok := current.(domain.Restaurant)
		if !ok {
			return nil, notFound("update", path)
		}
		restaurant.OrderCount = count
		return restaurant, nil
	}})
	return nil
}

func (t *transaction) SetOrderTotal(total domain.OrderTotal) error {
	return t.set(repositories.OrderTotalPath(total.RestaurantID, total.MenuID, total.Date), total)
}

func (t *transaction) SetCustomerLog(log domain.CustomerLog) error {
	return t.set(repositories.CustomerLogPath(log.RestaurantID, log.UID), cloneCustomerLog(log))
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	if order.Items != nil {
		out.Items = make(domain.LineQuantities, len(order.Items))
		for k, v := range order.Items {
			out.Items[k] = slices.Clone(v)
		}
	}
	if order.RawOptions != nil {
		out.RawOptions = make(domain.OptionSelections, len(order.RawOptions))
		for k, lines := range order.RawOptions {
			copied := make([][]int, len(lines))
			for i, line := range lines {
				copied[i] = slices.Clone(line)
			}
			out.RawOptions[k] = copied
		}
	}
	out.MenuItems = maps.Clone(order.MenuItems)
	if order.Prices != nil {
		out.Prices = make(map[string][]float64, len(order.Prices))
		for k, v := range order.Prices {
			out.Prices[k] = slices.Clone(v)
		}
	}
	if order.Accounting != nil {
		accounting := *order.Accounting
		out.Accounting = &accounting
	}
	return out
}

func cloneCustomerLog(log domain.CustomerLog) domain.CustomerLog {
	if log.LastOrder != nil {
		last := *log.LastOrder
		log.LastOrder = &last
	}
	return log
}
