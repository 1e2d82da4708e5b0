package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/data"
	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// InvestmentServiceOptions groups dependencies for InvestmentService.
type InvestmentServiceOptions struct {
	Repo      core.InvestmentRepository
	Evaluator JMESPathEvaluator // optional; defaults to go-jmespath
	Now       func() time.Time  // optional
}

// InvestmentService records deposits for signed-in users and serves the admin listing.
type InvestmentService struct {
	repo core.InvestmentRepository
	jems JMESPathEvaluator
	now  func() time.Time
}

// NewInvestmentService constructs a new InvestmentService.
func NewInvestmentService(opts InvestmentServiceOptions) *InvestmentService {
	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &InvestmentService{repo: opts.Repo, jems: jems, now: now}
}

// Create records an investment owned by p.
func (s *InvestmentService) Create(
	ctx context.Context,
	p domainauth.Principal,
	req *model.CreateInvestmentRequest,
) (*model.Investment, error) {
	if req == nil {
		return nil, apperrors.Validation("investment is required")
	}
	req.UserID = p.ID
	req.UserEmail = p.Email
	if err := req.Validate(s.now()); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	return s.repo.Create(ctx, req)
}

// UserPortfolio is a user's investments with their dashboard totals.
type UserPortfolio struct {
	Investments []*model.Investment
	Stats       model.InvestmentStats
}

// ListForUser returns userID's investments, newest first, with totals.
func (s *InvestmentService) ListForUser(ctx context.Context, userID string) (*UserPortfolio, error) {
	if userID == "" {
		return nil, apperrors.Validation("user id is required")
	}
	items, err := s.repo.List(ctx, core.InvestmentListOptions{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	return &UserPortfolio{Investments: items, Stats: model.ComputeInvestmentStats(items)}, nil
}

// ListAll returns every user's investments. A non-empty filter is a JMESPath expression
// applied to the JSON listing, e.g. "[?status=='pending']".
func (s *InvestmentService) ListAll(
	ctx context.Context,
	opts core.InvestmentListOptions,
	filter string,
) ([]*model.Investment, error) {
	filter = strings.TrimSpace(filter)
	if err := s.jems.Validate(filter); err != nil {
		return nil, apperrors.ValidationField("filter", fmt.Sprintf("invalid filter expression: %v", err))
	}

	items, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	if filter == "" {
		return items, nil
	}
	return s.applyFilter(items, filter)
}

func (s *InvestmentService) applyFilter(items []*model.Investment, filter string) ([]*model.Investment, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode investments: %w", err)
	}
	var doc []any
	if err = json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode investments: %w", err)
	}

	result, err := s.jems.Evaluate(filter, doc)
	if err != nil {
		return nil, apperrors.ValidationField("filter", fmt.Sprintf("filter failed: %v", err))
	}
	if result == nil {
		return []*model.Investment{}, nil
	}
	if _, ok := result.([]any); !ok {
		return nil, apperrors.ValidationField("filter", "filter must select a list of investments")
	}

	raw, err = json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode filter result: %w", err)
	}
	var out []*model.Investment
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.ValidationField("filter", "filter must select whole investment records")
	}
	return out, nil
}

// Update applies an admin edit.
func (s *InvestmentService) Update(ctx context.Context, id string, req model.UpdateInvestmentRequest) (*model.Investment, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	inv, err := s.repo.Update(ctx, id, req)
	if err != nil {
		if errors.Is(err, data.ErrInvestmentNotFound) {
			return nil, apperrors.NotFoundf("investment %s not found", id)
		}
		return nil, err
	}
	return inv, nil
}

// Delete removes an investment.
func (s *InvestmentService) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}
