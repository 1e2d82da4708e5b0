package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/data"
	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/mocks"
)

var investNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestInvestmentService(t *testing.T) (*InvestmentService, *mocks.MockInvestmentRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockInvestmentRepository(ctrl)
	svc := NewInvestmentService(InvestmentServiceOptions{Repo: repo, Now: func() time.Time { return investNow }})
	return svc, repo
}

func sampleInvestments() []*model.Investment {
	return []*model.Investment{
		{ID: "i1", UserID: "u1", DepositAmount: 1000, ProjectedReturn: 1120, Status: model.InvestmentStatusActive},
		{ID: "i2", UserID: "u2", DepositAmount: 500, ProjectedReturn: 560, Status: model.InvestmentStatusPending},
		{ID: "i3", UserID: "u1", DepositAmount: 250, ProjectedReturn: 280, Status: model.InvestmentStatusWithdrawn},
	}
}

func TestInvestmentService_CreateStampsOwner(t *testing.T) {
	svc, repo := newTestInvestmentService(t)
	owner := domainauth.Principal{ID: "u1", Email: "u1@example.com"}

	repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateInvestmentRequest) (*model.Investment, error) {
			assert.Equal(t, "u1", req.UserID)
			assert.Equal(t, "u1@example.com", req.UserEmail)
			assert.Equal(t, model.InvestmentStatusActive, req.Status)
			return &model.Investment{ID: "i1", UserID: req.UserID}, nil
		})

	inv, err := svc.Create(context.Background(), owner, &model.CreateInvestmentRequest{
		UserID:         "someone-else",
		DepositAmount:  1000,
		WithdrawalDate: investNow.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "i1", inv.ID)
}

func TestInvestmentService_CreateValidation(t *testing.T) {
	svc, _ := newTestInvestmentService(t)
	owner := domainauth.Principal{ID: "u1"}

	tests := []struct {
		name string
		req  *model.CreateInvestmentRequest
	}{
		{"nil request", nil},
		{"zero amount", &model.CreateInvestmentRequest{WithdrawalDate: investNow.AddDate(0, 1, 0)}},
		{"over limit", &model.CreateInvestmentRequest{DepositAmount: 10_000_001, WithdrawalDate: investNow.AddDate(0, 1, 0)}},
		{"past date", &model.CreateInvestmentRequest{DepositAmount: 100, WithdrawalDate: investNow.AddDate(0, 0, -1)}},
		{"bad status", &model.CreateInvestmentRequest{DepositAmount: 100, WithdrawalDate: investNow.AddDate(0, 1, 0), Status: "frozen"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), owner, tt.req)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestInvestmentService_ListForUser(t *testing.T) {
	svc, repo := newTestInvestmentService(t)
	repo.EXPECT().List(gomock.Any(), core.InvestmentListOptions{UserID: "u1"}).Return(sampleInvestments(), nil)

	portfolio, err := svc.ListForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, portfolio.Investments, 3)
	assert.InDelta(t, 1750.0, portfolio.Stats.TotalInvested, 0.001)
	assert.Equal(t, 1, portfolio.Stats.ActiveCount)
	assert.Equal(t, 1, portfolio.Stats.WithdrawnCount)

	_, err = svc.ListForUser(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestInvestmentService_ListAllFilter(t *testing.T) {
	ctx := context.Background()

	t.Run("no filter", func(t *testing.T) {
		svc, repo := newTestInvestmentService(t)
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(sampleInvestments(), nil)
		items, err := svc.ListAll(ctx, core.InvestmentListOptions{}, "  ")
		require.NoError(t, err)
		assert.Len(t, items, 3)
	})

	t.Run("selects by status", func(t *testing.T) {
		svc, repo := newTestInvestmentService(t)
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(sampleInvestments(), nil)
		items, err := svc.ListAll(ctx, core.InvestmentListOptions{}, "[?status=='pending']")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "i2", items[0].ID)
	})

	t.Run("numeric comparison", func(t *testing.T) {
		svc, repo := newTestInvestmentService(t)
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(sampleInvestments(), nil)
		items, err := svc.ListAll(ctx, core.InvestmentListOptions{}, "[?deposit_amount > `400`]")
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("invalid expression never reaches the repository", func(t *testing.T) {
		svc, _ := newTestInvestmentService(t)
		_, err := svc.ListAll(ctx, core.InvestmentListOptions{}, "[?status==")
		require.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "filter", apperrors.GetField(err))
	})

	t.Run("projection is rejected", func(t *testing.T) {
		svc, repo := newTestInvestmentService(t)
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(sampleInvestments(), nil)
		_, err := svc.ListAll(ctx, core.InvestmentListOptions{}, "[].deposit_amount")
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("scalar result is rejected", func(t *testing.T) {
		svc, repo := newTestInvestmentService(t)
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(sampleInvestments(), nil)
		_, err := svc.ListAll(ctx, core.InvestmentListOptions{}, "length(@)")
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("repository error", func(t *testing.T) {
		svc, repo := newTestInvestmentService(t)
		repo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
		_, err := svc.ListAll(ctx, core.InvestmentListOptions{}, "")
		assert.ErrorContains(t, err, "list investments")
	})
}

func TestInvestmentService_Update(t *testing.T) {
	ctx := context.Background()
	withdrawn := model.InvestmentStatusWithdrawn

	t.Run("applies edit", func(t *testing.T) {
		svc, repo := newTestInvestmentService(t)
		repo.EXPECT().Update(gomock.Any(), "i1", gomock.Any()).Return(&model.Investment{ID: "i1", Status: withdrawn}, nil)
		inv, err := svc.Update(ctx, "i1", model.UpdateInvestmentRequest{Status: &withdrawn})
		require.NoError(t, err)
		assert.Equal(t, withdrawn, inv.Status)
	})

	t.Run("empty edit", func(t *testing.T) {
		svc, _ := newTestInvestmentService(t)
		_, err := svc.Update(ctx, "i1", model.UpdateInvestmentRequest{})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("missing investment", func(t *testing.T) {
		svc, repo := newTestInvestmentService(t)
		repo.EXPECT().Update(gomock.Any(), "nope", gomock.Any()).Return(nil, data.ErrInvestmentNotFound)
		_, err := svc.Update(ctx, "nope", model.UpdateInvestmentRequest{Status: &withdrawn})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestInvestmentService_Delete(t *testing.T) {
	svc, repo := newTestInvestmentService(t)
	repo.EXPECT().Delete(gomock.Any(), "i1").Return(true, nil)
	ok, err := svc.Delete(context.Background(), "i1")
	require.NoError(t, err)
	assert.True(t, ok)
}
