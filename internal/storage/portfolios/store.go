// Package portfolios persists one portfolio document per user.
package portfolios

import (
	"fmt"

	"github.com/valutatrade/valutahub/internal/domain"
	"github.com/valutatrade/valutahub/internal/storage/docstore"
)

// Store loads and saves whole portfolio documents. It performs no
// locking of its own: the ledger engine serializes the read-modify-write
// cycle per user.
type Store struct {
	db          *docstore.Store
	precisionOf func(code string) int32
}

// New creates a portfolio store. precisionOf supplies the quantization
// precision per currency code when rehydrating balances.
func New(db *docstore.Store, precisionOf func(code string) int32) *Store {
	return &Store{db: db, precisionOf: precisionOf}
}

// Load returns the user's portfolio, or a fresh empty one if none is stored.
func (s *Store) Load(userID int64) (*domain.Portfolio, error) {
	var doc domain.PortfolioDocument
	ok, err := s.db.Read(docName(userID), &doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return domain.NewPortfolio(userID), nil
	}
	return domain.PortfolioFromDocument(doc, s.precisionOf)
}

// Save replaces the user's portfolio document.
func (s *Store) Save(p *domain.Portfolio) error {
	return s.db.Write(docName(p.UserID), p.Document())
}

func docName(userID int64) string {
	return fmt.Sprintf("portfolio_%d.json", userID)
}
