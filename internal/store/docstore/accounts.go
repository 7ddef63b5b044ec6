package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) (*models.User, error) {
	doc := userDoc{
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		Age:          int64(u.Age),
		Orders:       map[string]string{},
		ChatHistory:  []chatTurnDoc{},
		CreatedAt:    s.now(),
	}

	if _, err := s.user(u.Email).Create(ctx, doc); err != nil {
		if alreadyExists(err) {
			return nil, database.ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return doc.model(), nil
}

func (s *Store) getUserDoc(ctx context.Context, email string) (*userDoc, error) {
	snap, err := s.user(email).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &doc, nil
}

func (s *Store) GetUser(ctx context.Context, email string) (*models.User, error) {
	doc, err := s.getUserDoc(ctx, email)
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

func (s *Store) CreateAdmin(ctx context.Context, a *models.Admin) (*models.Admin, error) {
	doc := adminDoc{Email: a.Email, PasswordHash: a.PasswordHash, CreatedAt: s.now()}

	if _, err := s.client.Collection(adminsCollection).Doc(a.Email).Create(ctx, doc); err != nil {
		if alreadyExists(err) {
			return nil, database.ErrAdminExists
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	return &models.Admin{Email: doc.Email, PasswordHash: doc.PasswordHash, CreatedAt: doc.CreatedAt}, nil
}

func (s *Store) GetAdmin(ctx context.Context, email string) (*models.Admin, error) {
	snap, err := s.client.Collection(adminsCollection).Doc(email).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, database.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	var doc adminDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode admin: %w", err)
	}
	return &models.Admin{Email: doc.Email, PasswordHash: doc.PasswordHash, CreatedAt: doc.CreatedAt}, nil
}

// AppendChatTurns adds the turns to the user's chat_history array.
func (s *Store) AppendChatTurns(ctx context.Context, email string, turns []models.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}

	_, err := s.user(email).Update(ctx, []firestore.Update{
		{Path: "chat_history", Value: firestore.ArrayUnion(turnDocs(turns)...)},
	})
	if err != nil {
		if notFound(err) {
			return database.ErrUserNotFound
		}
		return fmt.Errorf("failed to append chat history: %w", err)
	}
	return nil
}

func (s *Store) ChatHistory(ctx context.Context, email string, limit int) ([]models.ChatTurn, error) {
	doc, err := s.getUserDoc(ctx, email)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.ChatTurn{}, nil
	}

	all := doc.ChatHistory
	if len(all) > limit {
		all = all[len(all)-limit:]
	}

	out := make([]models.ChatTurn, 0, len(all))
	for _, t := range all {
		out = append(out, t.model())
	}
	return out, nil
}
