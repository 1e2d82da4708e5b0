// Package mocks provides gomock implementations of the core repository contracts.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	admins := mocks.NewMockAdminRepository(ctrl)
//	admins.EXPECT().Get(gomock.Any(), "u1").Return(nil, data.ErrAdminNotFound)
//
// Hand-written fakes for the auth ports live in the auth subpackage.
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=admin_repository_mock.go github.com/dhanmatrix/dhanmatrix/internal/core AdminRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_repository_mock.go github.com/dhanmatrix/dhanmatrix/internal/core UserRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_repository_mock.go github.com/dhanmatrix/dhanmatrix/internal/core CredentialRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=investment_repository_mock.go github.com/dhanmatrix/dhanmatrix/internal/core InvestmentRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/dhanmatrix/dhanmatrix/internal/core CacheRepository
