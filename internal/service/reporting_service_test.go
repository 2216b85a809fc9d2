package service

import (
	"context"
	"errors"
	"testing"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reportingMocks struct {
	txRepo     *mocks.MockTransactionRepository
	walletRepo *mocks.MockWalletRepository
	vendorRepo *mocks.MockVendorRepository
}

func newReportingUnderTest(t *testing.T) (ports.ReportingService, *reportingMocks) {
	ctrl := gomock.NewController(t)
	m := &reportingMocks{
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		vendorRepo: mocks.NewMockVendorRepository(ctrl),
	}
	return NewReportingService(m.txRepo, m.walletRepo, m.vendorRepo), m
}

func TestReportingService_ListWallets(t *testing.T) {
	svc, m := newReportingUnderTest(t)
	expected := []domain.Wallet{*wallet("LAK", "1000"), *wallet("USD", "5")}

	m.walletRepo.EXPECT().ListByUser(gomock.Any(), "user-1").Return(expected, nil)

	wallets, err := svc.ListWallets(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, expected, wallets)
}

func TestReportingService_ListTransactions_ScopesToCaller(t *testing.T) {
	tests := []struct {
		name             string
		filter           ports.TransactionFilter
		wantPage, wantSz int
	}{
		{"defaults", ports.TransactionFilter{}, 1, 20},
		{"explicit", ports.TransactionFilter{Page: 3, PageSize: 50}, 3, 50},
		{"clamped", ports.TransactionFilter{Page: -2, PageSize: 500}, 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newReportingUnderTest(t)
			m.txRepo.EXPECT().List(gomock.Any(), ports.TransactionListParams{
				UserID:   "user-1",
				Page:     tt.wantPage,
				PageSize: tt.wantSz,
			}).Return([]domain.Transaction{}, int64(0), nil)

			_, total, err := svc.ListTransactions(context.Background(), alice, tt.filter)
			require.NoError(t, err)
			assert.Zero(t, total)
		})
	}
}

func TestReportingService_ListTransactions_RepoError(t *testing.T) {
	svc, m := newReportingUnderTest(t)
	m.txRepo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, int64(0), errors.New("db down"))

	_, _, err := svc.ListTransactions(context.Background(), alice, ports.TransactionFilter{})
	assert.True(t, apperror.IsCode(err, "SYS_001"))
}

func TestReportingService_GetVendor(t *testing.T) {
	svc, m := newReportingUnderTest(t)
	v := verifiedVendor()

	m.vendorRepo.EXPECT().GetByID(gomock.Any(), v.ID).Return(v, nil)
	got, err := svc.GetVendor(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	missing := uuid.New()
	m.vendorRepo.EXPECT().GetByID(gomock.Any(), missing).Return(nil, nil)
	_, err = svc.GetVendor(context.Background(), missing)
	assert.True(t, apperror.IsCode(err, apperror.CodeVendorNotFound))
}

func TestReportingService_MyVendor(t *testing.T) {
	svc, m := newReportingUnderTest(t)
	v := verifiedVendor()
	owner := domain.Principal{UserID: v.UserID, Role: domain.RoleUser}

	m.vendorRepo.EXPECT().GetByUserID(gomock.Any(), v.UserID).Return(v, nil)
	got, err := svc.MyVendor(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	m.vendorRepo.EXPECT().GetByUserID(gomock.Any(), "user-1").Return(nil, nil)
	_, err = svc.MyVendor(context.Background(), alice)
	assert.True(t, apperror.IsCode(err, apperror.CodeVendorNotFound))

	m.vendorRepo.EXPECT().GetByUserID(gomock.Any(), "user-1").Return(nil, errors.New("conn reset"))
	_, err = svc.MyVendor(context.Background(), alice)
	assert.True(t, apperror.IsCode(err, "SYS_001"))
}

func TestReportingService_VendorReceipts(t *testing.T) {
	svc, m := newReportingUnderTest(t)
	v := verifiedVendor()
	owner := domain.Principal{UserID: v.UserID, Role: domain.RoleUser}
	payment := domain.TransactionTypePayment
	receipts := []domain.Transaction{{ID: uuid.New(), VendorID: &v.ID, Type: payment, Amount: dec("20000")}}
	totals := []ports.CurrencyTotal{{Currency: "LAK", Total: dec("20000"), Count: 1}}

	m.vendorRepo.EXPECT().GetByUserID(gomock.Any(), v.UserID).Return(v, nil)
	m.txRepo.EXPECT().List(gomock.Any(), ports.TransactionListParams{
		VendorID: &v.ID,
		Type:     &payment,
		Page:     1,
		PageSize: 20,
	}).Return(receipts, int64(1), nil)
	m.txRepo.EXPECT().SumCompletedByVendor(gomock.Any(), v.ID).Return(totals, nil)

	res, err := svc.VendorReceipts(context.Background(), owner, ports.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, v, res.Vendor)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, receipts, res.Transactions)
	assert.Equal(t, totals, res.Totals)
}

func TestReportingService_VendorReceipts_NotAVendor(t *testing.T) {
	svc, m := newReportingUnderTest(t)
	m.vendorRepo.EXPECT().GetByUserID(gomock.Any(), "user-1").Return(nil, nil)

	_, err := svc.VendorReceipts(context.Background(), alice, ports.TransactionFilter{})
	assert.True(t, apperror.IsCode(err, apperror.CodeVendorNotFound))
}

func TestReportingService_AdminStats(t *testing.T) {
	svc, m := newReportingUnderTest(t)
	admin := domain.Principal{UserID: "root", Role: domain.RoleAdmin}

	m.walletRepo.EXPECT().CountOwners(gomock.Any()).Return(int64(12), nil)
	m.vendorRepo.EXPECT().Counts(gomock.Any()).Return(&ports.VendorCounts{Total: 4, Pending: 1}, nil)
	m.txRepo.EXPECT().Count(gomock.Any()).Return(int64(99), nil)

	stats, err := svc.AdminStats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, &ports.AdminStats{TotalUsers: 12, TotalVendors: 4, PendingVendors: 1, TotalTransactions: 99}, stats)
}

func TestReportingService_AdminStats_Forbidden(t *testing.T) {
	svc, _ := newReportingUnderTest(t)
	_, err := svc.AdminStats(context.Background(), alice)
	assert.True(t, apperror.IsCode(err, "AUTH_005"))
}
