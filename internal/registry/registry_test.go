package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgden/pgden/internal/instance"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func testInstance(name string) *instance.Instance {
	return &instance.Instance{
		Name:     name,
		Port:     5432,
		Username: "postgres",
		Password: "postgres",
		Database: "postgres",
		DataDir:  "/data/" + name,
		Version:  "18.1.0",
		Settings: []instance.Setting{
			{Key: "shared_buffers", Value: "256MB"},
			{Key: "work_mem", Value: "64MB"},
		},
		Status: instance.StatusStopped,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	r1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r1.Close())

	r2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r2.Close())
}

func TestSaveGetRoundtrip(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	want := testInstance("default")
	require.NoError(t, r.Save(ctx, want))

	got, err := r.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name)
	assert.Equal(t, 5432, got.Port)
	assert.Equal(t, "/data/default", got.DataDir)
	assert.Equal(t, instance.StatusStopped, got.Status)
	assert.Equal(t, want.Settings, got.Settings, "settings keep their order")
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	r := openTestRegistry(t)

	_, err := r.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveUpsertPreservesCreatedAt(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	inst := testInstance("default")
	require.NoError(t, r.Save(ctx, inst))

	first, err := r.Get(ctx, "default")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	inst.Port = 5433
	inst.PID = 99
	inst.Status = instance.StatusRunning
	require.NoError(t, r.Save(ctx, inst))

	second, err := r.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 5433, second.Port)
	assert.Equal(t, 99, second.PID)
	assert.Equal(t, instance.StatusRunning, second.Status)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestSaveNeverPersistsCrashed(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	inst := testInstance("default")
	inst.Status = instance.StatusCrashed
	require.NoError(t, r.Save(ctx, inst))

	got, err := r.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, instance.StatusStopped, got.Status)
}

func TestListOrderedByName(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Save(ctx, testInstance(name)))
	}

	instances, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 3)
	assert.Equal(t, "alpha", instances[0].Name)
	assert.Equal(t, "mid", instances[1].Name)
	assert.Equal(t, "zeta", instances[2].Name)
}

func TestListEmpty(t *testing.T) {
	r := openTestRegistry(t)

	instances, err := r.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, instances)
	assert.Empty(t, instances)
}

func TestSetState(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, testInstance("default")))
	require.NoError(t, r.SetState(ctx, "default", 4242, instance.StatusRunning))

	got, err := r.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 4242, got.PID)
	assert.Equal(t, instance.StatusRunning, got.Status)

	require.NoError(t, r.SetState(ctx, "default", 0, instance.StatusStopped))
	got, err = r.Get(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, got.PID)
	assert.Equal(t, instance.StatusStopped, got.Status)
}

func TestSetStateMissing(t *testing.T) {
	r := openTestRegistry(t)
	err := r.SetState(context.Background(), "ghost", 1, instance.StatusRunning)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, testInstance("default")))
	require.NoError(t, r.Delete(ctx, "default"))

	_, err := r.Get(ctx, "default")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error.
	require.NoError(t, r.Delete(ctx, "default"))
}

func TestDataDirExclusiveOwnership(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	a := testInstance("a")
	require.NoError(t, r.Save(ctx, a))

	b := testInstance("b")
	b.DataDir = a.DataDir
	err := r.Save(ctx, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already belongs")
}

func TestInstallations(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	_, ok, err := r.Installation(ctx, "18.1.0", "x86_64-unknown-linux-gnu")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.PutInstallation(ctx, "18.1.0", "x86_64-unknown-linux-gnu", "/inst/18.1.0/gnu"))

	dir, ok, err := r.Installation(ctx, "18.1.0", "x86_64-unknown-linux-gnu")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/inst/18.1.0/gnu", dir)

	// Refreshing the same installation is fine.
	require.NoError(t, r.PutInstallation(ctx, "18.1.0", "x86_64-unknown-linux-gnu", "/inst/18.1.0/gnu"))
}

func TestEmptySettingsRoundtrip(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	inst := testInstance("plain")
	inst.Settings = nil
	require.NoError(t, r.Save(ctx, inst))

	got, err := r.Get(ctx, "plain")
	require.NoError(t, err)
	assert.Empty(t, got.Settings)
}
