package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/store"
)

func (s *Store) medicine(name string) *firestore.DocumentRef {
	return s.client.Collection(medicinesCollection).Doc(models.NormalizeMedicineName(name))
}

func (s *Store) CreateMedicine(ctx context.Context, m *models.Medicine) (*models.Medicine, error) {
	name := models.NormalizeMedicineName(m.Name)
	if name == "" {
		return nil, database.ErrInvalidMedicineName
	}
	if m.Stock < 0 {
		return nil, database.ErrInvalidQuantity
	}

	now := s.now()
	doc := medicineDoc{
		Name:        name,
		UnitPrice:   m.UnitPrice.Round(2).InexactFloat64(),
		Stock:       int64(m.Stock),
		MadeIn:      m.MadeIn,
		Category:    m.Category,
		Description: m.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.medicine(doc.Name).Create(ctx, doc); err != nil {
		if alreadyExists(err) {
			return nil, database.ErrMedicineExists
		}
		return nil, fmt.Errorf("failed to create medicine: %w", err)
	}

	return doc.model(), nil
}

func (s *Store) GetMedicine(ctx context.Context, name string) (*models.Medicine, error) {
	snap, err := s.medicine(name).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, database.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("failed to get medicine: %w", err)
	}

	var doc medicineDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode medicine: %w", err)
	}
	return doc.model(), nil
}

func (s *Store) ListMedicines(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Medicine], error) {
	page, pageSize = store.NormalizePage(page, pageSize)

	total, err := s.CountMedicines(ctx)
	if err != nil {
		return nil, err
	}

	snaps, err := s.client.Collection(medicinesCollection).
		OrderBy("created_at", firestore.Desc).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list medicines: %w", err)
	}

	items := make([]models.Medicine, 0, len(snaps))
	for _, snap := range snaps {
		var doc medicineDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode medicine: %w", err)
		}
		items = append(items, *doc.model())
	}

	return store.NewOffsetPage(items, total, page, pageSize), nil
}

func (s *Store) SetStock(ctx context.Context, name string, stock int) (*models.Medicine, error) {
	if stock < 0 {
		return nil, database.ErrInvalidQuantity
	}
	return s.updateStock(ctx, name, stock)
}

func (s *Store) AddStock(ctx context.Context, name string, quantity int) (*models.Medicine, error) {
	if quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}
	return s.updateStock(ctx, name, firestore.Increment(quantity))
}

func (s *Store) updateStock(ctx context.Context, name string, value interface{}) (*models.Medicine, error) {
	ref := s.medicine(name)

	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "stock", Value: value},
		{Path: "updated_at", Value: s.now()},
	})
	if err != nil {
		if notFound(err) {
			return nil, database.ErrMedicineNotFound
		}
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	return s.GetMedicine(ctx, name)
}

func (s *Store) DeleteMedicine(ctx context.Context, name string) error {
	ref := s.medicine(name)
	_, err := ref.Delete(ctx, firestore.Exists)
	if err != nil {
		if notFound(err) {
			return database.ErrMedicineNotFound
		}
		return fmt.Errorf("failed to delete medicine: %w", err)
	}
	return nil
}

func (s *Store) CountMedicines(ctx context.Context) (int64, error) {
	n, err := count(ctx, s.client.Collection(medicinesCollection).Query)
	if err != nil {
		return 0, fmt.Errorf("failed to count medicines: %w", err)
	}
	return n, nil
}
