package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/store"
	"github.com/shopspring/decimal"
)

func (s *Store) order(id string) *firestore.DocumentRef {
	return s.client.Collection(ordersCollection).Doc(id)
}

func (s *Store) user(email string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(email)
}

// PlaceOrder reads the user and the medicine, then creates the order,
// decrements stock and indexes the order under the user in one transaction.
func (s *Store) PlaceOrder(ctx context.Context, req store.PlaceOrderRequest) (*models.Order, error) {
	if req.Quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	name := models.NormalizeMedicineName(req.MedicineName)
	var placed *models.Order

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef := s.user(req.UserEmail)
		if _, err := tx.Get(userRef); err != nil {
			if notFound(err) {
				return database.ErrUserNotFound
			}
			return err
		}

		medRef := s.medicine(name)
		snap, err := tx.Get(medRef)
		if err != nil {
			if notFound(err) {
				return database.ErrMedicineNotFound
			}
			return err
		}
		var med medicineDoc
		if err := snap.DataTo(&med); err != nil {
			return err
		}
		if int(med.Stock) < req.Quantity {
			return &database.StockError{Medicine: name, Available: int(med.Stock), Requested: req.Quantity}
		}

		m := med.model()
		now := s.now()
		id := uuid.NewString()
		doc := orderDoc{
			UserEmail:    req.UserEmail,
			MedicineName: name,
			Quantity:     int64(req.Quantity),
			UnitPrice:    med.UnitPrice,
			TotalPrice:   m.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))).InexactFloat64(),
			Status:       models.OrderStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := tx.Create(s.order(id), doc); err != nil {
			return err
		}
		if err := tx.Update(medRef, []firestore.Update{
			{Path: "stock", Value: firestore.Increment(-req.Quantity)},
			{Path: "updated_at", Value: now},
		}); err != nil {
			return err
		}
		if err := tx.Update(userRef, []firestore.Update{
			{FieldPath: firestore.FieldPath{"orders", id}, Value: name},
		}); err != nil {
			return err
		}

		placed = doc.model(id)
		return nil
	})
	if err != nil {
		return nil, wrapTxErr("place order", err)
	}

	return placed, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrOrderNotFound
	}

	snap, err := s.order(id).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	var doc orderDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode order: %w", err)
	}
	return doc.model(id), nil
}

func (s *Store) ListOrders(ctx context.Context, userEmail, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	c, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := s.client.Collection(ordersCollection).
		Where("user_email", "==", userEmail).
		OrderBy("created_at", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if cursor != "" {
		q = q.StartAfter(c.CreatedAt, c.ID)
	}

	snaps, err := q.Limit(limit + 1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]models.Order, 0, len(snaps))
	for _, snap := range snaps {
		var doc orderDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		orders = append(orders, *doc.model(snap.Ref.ID))
	}

	return store.Paginate(orders, limit, func(o models.Order) store.OrderCursor {
		return store.OrderCursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (s *Store) CancelOrder(ctx context.Context, id, owner string) (*models.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrOrderNotFound
	}

	var cancelled *models.Order
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		o, err := s.cancelInTx(tx, id, owner)
		cancelled = o
		return err
	})
	if err != nil {
		return nil, wrapTxErr("cancel order", err)
	}
	return cancelled, nil
}

func (s *Store) cancelInTx(tx *firestore.Transaction, id, owner string) (*models.Order, error) {
	ref := s.order(id)
	doc, err := getOrderInTx(tx, ref)
	if err != nil {
		return nil, err
	}
	if owner != "" && doc.UserEmail != owner {
		return nil, database.ErrOrderNotOwned
	}
	if !models.IsCancellable(doc.Status) {
		return nil, &database.TransitionError{OrderID: id, From: doc.Status, To: models.OrderStatusCancelled}
	}

	medRef := s.medicine(doc.MedicineName)
	_, err = tx.Get(medRef)
	medicineGone := notFound(err)
	if err != nil && !medicineGone {
		return nil, err
	}

	now := s.now()
	if !medicineGone {
		if err := tx.Update(medRef, []firestore.Update{
			{Path: "stock", Value: firestore.Increment(doc.Quantity)},
			{Path: "updated_at", Value: now},
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Update(ref, []firestore.Update{
		{Path: "status", Value: models.OrderStatusCancelled},
		{Path: "updated_at", Value: now},
	}); err != nil {
		return nil, err
	}

	doc.Status = models.OrderStatusCancelled
	doc.UpdatedAt = now
	return doc.model(id), nil
}

func getOrderInTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (*orderDoc, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if notFound(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, err
	}
	var doc orderDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string) (*models.Order, error) {
	if !models.IsValidOrderStatus(status) {
		return nil, database.ErrInvalidStatus
	}
	if status == models.OrderStatusCancelled {
		return s.CancelOrder(ctx, id, "")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, database.ErrOrderNotFound
	}

	var updated *models.Order
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.order(id)
		doc, err := getOrderInTx(tx, ref)
		if err != nil {
			return err
		}
		if !models.CanTransition(doc.Status, status) {
			return &database.TransitionError{OrderID: id, From: doc.Status, To: status}
		}

		now := s.now()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: status},
			{Path: "updated_at", Value: now},
		}); err != nil {
			return err
		}

		doc.Status = status
		doc.UpdatedAt = now
		updated = doc.model(id)
		return nil
	})
	if err != nil {
		return nil, wrapTxErr("update order status", err)
	}
	return updated, nil
}

func (s *Store) CountOrdersByStatus(ctx context.Context, status string) (int64, error) {
	n, err := count(ctx, s.client.Collection(ordersCollection).Where("status", "==", status))
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}
