package service

import (
	"context"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
	vendorRepo ports.VendorRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
	vendorRepo ports.VendorRepository,
) ports.ReportingService {
	return &reportingService{
		txRepo:     txRepo,
		walletRepo: walletRepo,
		vendorRepo: vendorRepo,
	}
}

func (s *reportingService) ListWallets(ctx context.Context, p domain.Principal) ([]domain.Wallet, error) {
	wallets, err := s.walletRepo.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}
	return wallets, nil
}

// ListTransactions returns the caller's own transactions, newest first.
func (s *reportingService) ListTransactions(ctx context.Context, p domain.Principal, filter ports.TransactionFilter) ([]domain.Transaction, int64, error) {
	page, size := filter.PageBounds()
	txns, total, err := s.txRepo.List(ctx, ports.TransactionListParams{
		UserID:   p.UserID,
		Status:   filter.Status,
		Type:     filter.Type,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, total, nil
}

func (s *reportingService) GetVendor(ctx context.Context, id uuid.UUID) (*domain.Vendor, error) {
	vendor, err := s.vendorRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vendor: %w", err))
	}
	if vendor == nil {
		return nil, apperror.ErrVendorNotFound()
	}
	return vendor, nil
}

// MyVendor returns the vendor profile owned by the caller.
func (s *reportingService) MyVendor(ctx context.Context, p domain.Principal) (*domain.Vendor, error) {
	vendor, err := s.vendorRepo.GetByUserID(ctx, p.UserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get vendor: %w", err))
	}
	if vendor == nil {
		return nil, apperror.ErrVendorNotFound()
	}
	return vendor, nil
}

// VendorReceipts is the vendor's view of payments made to it. Vendor
// balances are never credited, so this query is the only record.
func (s *reportingService) VendorReceipts(ctx context.Context, p domain.Principal, filter ports.TransactionFilter) (*ports.VendorReceipts, error) {
	vendor, err := s.MyVendor(ctx, p)
	if err != nil {
		return nil, err
	}

	page, size := filter.PageBounds()
	paymentType := domain.TransactionTypePayment
	txns, total, err := s.txRepo.List(ctx, ports.TransactionListParams{
		VendorID: &vendor.ID,
		Status:   filter.Status,
		Type:     &paymentType,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list receipts: %w", err))
	}

	totals, err := s.txRepo.SumCompletedByVendor(ctx, vendor.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("sum receipts: %w", err))
	}

	return &ports.VendorReceipts{
		Vendor:       vendor,
		Transactions: txns,
		Total:        total,
		Totals:       totals,
	}, nil
}

func (s *reportingService) AdminStats(ctx context.Context, p domain.Principal) (*ports.AdminStats, error) {
	if !p.IsAdmin() {
		return nil, apperror.ErrForbidden()
	}

	users, err := s.walletRepo.CountOwners(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count wallet owners: %w", err))
	}
	vendors, err := s.vendorRepo.Counts(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count vendors: %w", err))
	}
	txns, err := s.txRepo.Count(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count transactions: %w", err))
	}

	return &ports.AdminStats{
		TotalUsers:        users,
		TotalVendors:      vendors.Total,
		PendingVendors:    vendors.Pending,
		TotalTransactions: txns,
	}, nil
}
