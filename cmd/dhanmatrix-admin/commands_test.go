package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanmatrix/dhanmatrix/internal/data"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
)

type fakeAdmins struct {
	admins   []*model.AdminMembership
	promoted []string
	demoted  []string
	err      error
}

func (f *fakeAdmins) PromoteByEmail(_ context.Context, email, promotedBy string) (*model.AdminMembership, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.promoted = append(f.promoted, email+"|"+promotedBy)
	return &model.AdminMembership{UserID: "u-" + strings.Split(email, "@")[0], Email: email, PromotedBy: promotedBy}, nil
}

func (f *fakeAdmins) Demote(_ context.Context, userID string) (bool, error) {
	f.demoted = append(f.demoted, userID)
	return userID == "u-alice", nil
}

func (f *fakeAdmins) ListAdmins(context.Context) ([]*model.AdminMembership, error) {
	return f.admins, f.err
}

type fakePasswords struct {
	email, password string
}

func (f *fakePasswords) SetPassword(_ context.Context, email, password string) error {
	f.email, f.password = email, password
	return nil
}

type fakeUsers map[string]string

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*model.UserProfile, error) {
	id, ok := f[email]
	if !ok {
		return nil, data.ErrUserNotFound
	}
	return &model.UserProfile{UserID: id, Email: email}, nil
}

type cliFixture struct {
	admins    *fakeAdmins
	passwords *fakePasswords
	dbHost    string
	migrated  int
	seeded    int
	closed    int
}

func newCLIFixture() *cliFixture {
	return &cliFixture{admins: &fakeAdmins{}, passwords: &fakePasswords{}}
}

func (f *cliFixture) open(context.Context) (*cliEnv, error) {
	return &cliEnv{
		Admin:     f.admins,
		Passwords: f.passwords,
		Users:     fakeUsers{"alice@example.com": "u-alice"},
		Migrate: func(context.Context) error {
			f.migrated++
			return nil
		},
		Seed: func(context.Context) error {
			f.seeded++
			return nil
		},
		DBHost: f.dbHost,
		Close: func() error {
			f.closed++
			return nil
		},
	}, nil
}

func (f *cliFixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	root := newRootCmd(f.open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAdminsList(t *testing.T) {
	f := newCLIFixture()

	out, err := f.run(t, "", "admins", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No administrators yet")

	f.admins.admins = []*model.AdminMembership{{
		UserID:     "u-alice",
		Email:      "alice@example.com",
		PromotedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		PromotedBy: model.PromotedBySelfSetup,
	}}
	out, err = f.run(t, "", "admins", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Administrators (1)")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Equal(t, 2, f.closed)
}

func TestAdminsPromote(t *testing.T) {
	f := newCLIFixture()

	out, err := f.run(t, "", "admins", "promote", "bob@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "bob@example.com (u-bob) is now an administrator")
	assert.Equal(t, []string{"bob@example.com|" + model.PromotedByCLI}, f.admins.promoted)

	f.admins.err = errors.New("no user registered with carol@example.com")
	_, err = f.run(t, "", "admins", "promote", "carol@example.com")
	require.ErrorContains(t, err, "promote carol@example.com")

	_, err = f.run(t, "", "admins", "promote")
	require.Error(t, err)
}

func TestAdminsDemote(t *testing.T) {
	f := newCLIFixture()

	out, err := f.run(t, "", "admins", "demote", "Alice@Example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "is no longer an administrator")

	out, err = f.run(t, "", "admins", "demote", "u-zed")
	require.NoError(t, err)
	assert.Contains(t, out, "u-zed was not an administrator")
	assert.Equal(t, []string{"u-alice", "u-zed"}, f.admins.demoted)

	_, err = f.run(t, "", "admins", "demote", "ghost@example.com")
	require.ErrorContains(t, err, "no user registered with ghost@example.com")
}

func TestPasswordSet(t *testing.T) {
	f := newCLIFixture()

	out, err := f.run(t, "n3w-secret\n", "password", "set", " Alice@Example.com ")
	require.NoError(t, err)
	assert.Contains(t, out, "Password updated")
	assert.Equal(t, "alice@example.com", f.passwords.email)
	assert.Equal(t, "n3w-secret", f.passwords.password)

	_, err = f.run(t, "", "password", "set", "alice@example.com")
	require.ErrorContains(t, err, "no input")
	_, err = f.run(t, "\n", "password", "set", "alice@example.com")
	require.ErrorContains(t, err, "must not be empty")
	assert.Equal(t, 1, f.closed, "no connection is opened without a password")
}

func TestMigrate(t *testing.T) {
	f := newCLIFixture()

	out, err := f.run(t, "", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations completed")
	assert.Equal(t, 1, f.migrated)
	assert.Equal(t, 1, f.closed)
}

func TestSeed(t *testing.T) {
	f := newCLIFixture()
	f.dbHost = "localhost"

	out, err := f.run(t, "", "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "Demo data loaded")
	assert.Contains(t, out, "dhanmatrix-dev")

	f.dbHost = "prod-db.internal"
	_, err = f.run(t, "", "seed")
	require.ErrorContains(t, err, "--allow-remote")

	_, err = f.run(t, "", "seed", "--allow-remote")
	require.NoError(t, err)
	assert.Equal(t, 2, f.seeded)
}

func TestOpenFailure(t *testing.T) {
	root := newRootCmd(func(context.Context) (*cliEnv, error) { return nil, errors.New("connect db: refused") })
	root.SetArgs([]string{"migrate"})
	root.SetOut(&bytes.Buffer{})

	require.ErrorContains(t, root.Execute(), "connect db")
}

func TestIsLocalHost(t *testing.T) {
	for _, h := range []string{"", "localhost", "127.0.0.1", "::1", "postgres", " DB "} {
		assert.True(t, isLocalHost(h), h)
	}
	assert.False(t, isLocalHost("10.0.0.5"))
}
