package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/ukisoft/ownplate/internal/domain"
	pfirestore "github.com/ukisoft/ownplate/internal/platform/firestore"
	"github.com/ukisoft/ownplate/internal/repositories"
)

// OrderStore implements repositories.OrderStore on top of Firestore.
type OrderStore struct {
	provider *pfirestore.Provider
	txOpts   []pfirestore.TxOption
}

var _ repositories.OrderStore = (*OrderStore)(nil)

// NewOrderStore constructs a Firestore-backed order store.
func NewOrderStore(provider *pfirestore.Provider, opts ...pfirestore.TxOption) (*OrderStore, error) {
	if provider == nil {
		return nil, errors.New("order store requires firestore provider")
	}
	return &OrderStore{provider: provider, txOpts: opts}, nil
}

// RunTransaction runs fn in a Firestore transaction. Firestore retries the body on contention.
func (s *OrderStore) RunTransaction(ctx context.Context, fn repositories.TxFunc) error {
	if fn == nil {
		return errors.New("order store: transaction function is required")
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	return pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &orderTx{client: client, tx: tx})
	}, s.txOpts...)
}

func (s *OrderStore) get(ctx context.Context, path string) (fields, error) {
	return pfirestore.Get(ctx, s.provider, path, func(snap *firestore.DocumentSnapshot) (fields, error) {
		return snapshotFields(snap), nil
	})
}

func (s *OrderStore) GetRestaurant(ctx context.Context, restaurantID string) (domain.Restaurant, error) {
	data, err := s.get(ctx, repositories.RestaurantPath(restaurantID))
	if err != nil {
		return domain.Restaurant{}, err
	}
	return decodeRestaurant(restaurantID, data)
}

func (s *OrderStore) GetOrder(ctx context.Context, restaurantID, orderID string) (domain.Order, error) {
	data, err := s.get(ctx, repositories.OrderPath(restaurantID, orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(restaurantID, orderID, data)
}

func (s *OrderStore) GetMenuItems(ctx context.Context, restaurantID string, menuIDs []string) (map[string]domain.MenuItem, error) {
	out := make(map[string]domain.MenuItem, len(menuIDs))
	if len(menuIDs) == 0 {
		return out, nil
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(menuIDs))
	for _, id := range menuIDs {
		ref := client.Doc(repositories.MenuPath(restaurantID, id))
		if ref == nil {
			return nil, fmt.Errorf("%w: invalid menu id %q", repositories.ErrInvalidDocument, id)
		}
		refs = append(refs, ref)
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("menus.getAll", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		item, err := decodeMenuItem(snap.Ref.ID, snapshotFields(snap))
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	return out, nil
}

func (s *OrderStore) GetPaymentRecord(ctx context.Context, restaurantID, orderID string) (domain.PaymentRecord, error) {
	data, err := s.get(ctx, repositories.PaymentRecordPath(restaurantID, orderID))
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return decodePaymentRecord(restaurantID, orderID, data)
}

func (s *OrderStore) GetPaymentAccount(ctx context.Context, ownerUID string) (string, error) {
	path := repositories.PaymentAccountPath(ownerUID)
	data, err := s.get(ctx, path)
	if err != nil {
		return "", err
	}
	account, err := data.str("payment", "stripe")
	if err != nil {
		return "", err
	}
	if account == "" {
		return "", repositories.NewStoreError("get", path, repositories.StoreErrorNotFound, errors.New("no connected account"))
	}
	return account, nil
}

// orderTx adapts a Firestore transaction to repositories.OrderTx.
type orderTx struct {
	client *firestore.Client
	tx     *firestore.Transaction
	wrote  bool
}

func (t *orderTx) ref(path string) (*firestore.DocumentRef, error) {
	ref := t.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: invalid document path %q", repositories.ErrInvalidDocument, path)
	}
	return ref, nil
}

// read loads path and reports found=false for missing documents.
func (t *orderTx) read(path string) (fields, bool, error) {
	if t.wrote {
		return nil, false, repositories.ErrReadAfterWrite
	}
	ref, err := t.ref(path)
	if err != nil {
		return nil, false, err
	}
	return pfirestore.TxGet(t.tx, ref, func(snap *firestore.DocumentSnapshot) (fields, error) {
		return snapshotFields(snap), nil
	})
}

func (t *orderTx) mustRead(path string) (fields, error) {
	data, found, err := t.read(path)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, repositories.NewStoreError("tx get", path, repositories.StoreErrorNotFound, nil)
	}
	return data, nil
}

func (t *orderTx) GetRestaurant(restaurantID string) (domain.Restaurant, error) {
	data, err := t.mustRead(repositories.RestaurantPath(restaurantID))
	if err != nil {
		return domain.Restaurant{}, err
	}
	return decodeRestaurant(restaurantID, data)
}

func (t *orderTx) GetOrder(restaurantID, orderID string) (domain.Order, error) {
	data, err := t.mustRead(repositories.OrderPath(restaurantID, orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(restaurantID, orderID, data)
}

func (t *orderTx) GetPaymentRecord(restaurantID, orderID string) (domain.PaymentRecord, error) {
	data, err := t.mustRead(repositories.PaymentRecordPath(restaurantID, orderID))
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return decodePaymentRecord(restaurantID, orderID, data)
}

func (t *orderTx) GetOrderTotal(restaurantID, menuID, date string) (domain.OrderTotal, bool, error) {
	data, found, err := t.read(repositories.OrderTotalPath(restaurantID, menuID, date))
	if err != nil || !found {
		return domain.OrderTotal{}, false, err
	}
	total, err := decodeOrderTotal(data)
	return total, err == nil, err
}

func (t *orderTx) GetCustomerLog(restaurantID, uid string) (domain.CustomerLog, bool, error) {
	data, found, err := t.read(repositories.CustomerLogPath(restaurantID, uid))
	if err != nil || !found {
		return domain.CustomerLog{}, false, err
	}
	log, err := decodeCustomerLog(data)
	return log, err == nil, err
}

// mergeSet writes doc, replacing each of its top-level fields and leaving other fields alone.
func (t *orderTx) mergeSet(path string, doc map[string]any) error {
	ref, err := t.ref(path)
	if err != nil {
		return err
	}
	paths := make([]firestore.FieldPath, 0, len(doc))
	for _, key := range sortedKeys(doc) {
		paths = append(paths, firestore.FieldPath{key})
	}
	t.wrote = true
	return t.tx.Set(ref, doc, firestore.Merge(paths...))
}

func (t *orderTx) SetOrder(order domain.Order) error {
	return t.mergeSet(repositories.OrderPath(order.RestaurantID, order.ID), encodeOrder(order))
}

func (t *orderTx) SetRestaurantOrderCount(restaurantID string, count int64) error {
	ref, err := t.ref(repositories.RestaurantPath(restaurantID))
	if err != nil {
		return err
	}
	t.wrote = true
	return t.tx.Update(ref, []firestore.Update{{Path: "orderCount", Value: count}})
}

func (t *orderTx) SetOrderTotal(total domain.OrderTotal) error {
	return t.mergeSet(repositories.OrderTotalPath(total.RestaurantID, total.MenuID, total.Date), encodeOrderTotal(total))
}

func (t *orderTx) SetCustomerLog(log domain.CustomerLog) error {
	return t.mergeSet(repositories.CustomerLogPath(log.RestaurantID, log.UID), encodeCustomerLog(log))
}
