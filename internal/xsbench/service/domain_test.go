package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jjd27/xenstore-clients/internal/xsbench/entity"
	"github.com/jjd27/xenstore-clients/pkg/xenstore"
)

func TestDomainService_Make(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)
	require.NoError(t, env.domains.Make(ctx, 3))

	root := env.layout.DomainPath(3)
	vm := env.layout.VMPath(entity.VMUUID(3))
	vss := env.layout.VSSPath(entity.VMUUID(3))

	values := []struct {
		path entity.Path
		want string
	}{
		{path: root.Child("name"), want: "bench-3"},
		{path: root.Child("domid"), want: "3"},
		{path: root.Child("vm"), want: vm.String()},
		{path: root.Child("vss"), want: vss.String()},
		{path: root.Child("action-request"), want: "poweroff"},
		{path: root.Child("control", "platform-feature-multiprocessor-suspend"), want: "1"},
		{path: root.Child("platform", "acpi"), want: "1"},
		{path: vm.Child("uuid"), want: entity.VMUUID(3)},
		{path: vm.Child("domains").Int(3), want: root.String()},
	}
	for _, tc := range values {
		v, err := env.store.Read(ctx, tc.path.String())
		require.NoError(t, err, tc.path.String())
		assert.Equal(t, tc.want, v, tc.path.String())
	}

	id, err := env.store.Read(ctx, root.Child("unique-domain-id").String())
	require.NoError(t, err)
	assert.Len(t, id, 36)

	perms := []struct {
		path entity.Path
		want xenstore.ACL
	}{
		{path: root, want: entity.ReadOnlyTo(3)},
		{path: root.Child("cpu"), want: entity.ReadOnlyTo(3)},
		{path: root.Child("memory"), want: entity.ReadOnlyTo(3)},
		{path: vss, want: entity.OwnedBy(0)},
	}
	for _, dir := range readWriteDirs {
		perms = append(perms, struct {
			path entity.Path
			want xenstore.ACL
		}{path: root.Child(dir), want: entity.OwnedBy(3)})
	}
	for _, tc := range perms {
		acl, err := env.store.GetPermissions(ctx, tc.path.String())
		require.NoError(t, err, tc.path.String())
		assert.Equal(t, tc.want, acl, tc.path.String())
	}

	ok, err := env.domains.Exists(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDomainService_MakeIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)

	require.NoError(t, env.domains.Make(ctx, 1))
	once := env.store.Snapshot()

	// 遗留数据会被清理
	require.NoError(t, env.store.Write(ctx, env.layout.DomainPath(1).Child("data", "leftover").String(), "x"))
	require.NoError(t, env.domains.Make(ctx, 1))
	twice := env.store.Snapshot()

	ignoreID := cmpopts.IgnoreMapEntries(func(k, _ string) bool {
		return strings.HasSuffix(k, "/unique-domain-id")
	})
	if diff := cmp.Diff(once, twice, ignoreID); diff != "" {
		t.Errorf("make twice differs from make once (-once +twice):\n%s", diff)
	}
	assert.Contains(t, twice, env.layout.DomainPath(1).Child("unique-domain-id").String())
}

func TestDomainService_Shutdown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)

	before := env.store.Snapshot()
	ok, err := env.domains.Shutdown(ctx, 9, ShutdownPoweroff)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, env.store.Snapshot())

	require.NoError(t, env.domains.Make(ctx, 9))
	ok, err = env.domains.Shutdown(ctx, 9, ShutdownReboot)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := env.store.Read(ctx, env.layout.DomainPath(9).Child("control", "shutdown").String())
	require.NoError(t, err)
	assert.Equal(t, "reboot", v)
}

func TestDomainService_Destroy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)
	require.NoError(t, env.bench.VMStart(ctx, 2))

	// dom0 中没有对应前端的遗留后端
	stray := env.layout.BackendRoot(0).Child("pci").Int(2).Int(0)
	require.NoError(t, env.store.Write(ctx, stray.Child("state").String(), "4"))

	devices, err := env.devices.ListFrontends(ctx, 2)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	require.NoError(t, env.domains.Destroy(ctx, 2))

	snapshot := env.store.Snapshot()
	assert.Empty(t, under(snapshot, env.layout.DomainPath(2)))
	assert.Empty(t, under(snapshot, env.layout.VMPath(entity.VMUUID(2))))
	assert.Empty(t, under(snapshot, env.layout.VSSPath(entity.VMUUID(2))))
	assert.Empty(t, under(snapshot, env.layout.DomainPrivateRoot(2)))
	for _, kind := range []string{"vbd", "vif", "pci"} {
		assert.Empty(t, under(snapshot, env.layout.BackendRoot(0).Child(kind).Int(2)))
	}
	for _, dev := range devices {
		assert.Empty(t, under(snapshot, env.layout.BackendErrorPath(dev)))
		assert.Empty(t, under(snapshot, env.layout.FrontendErrorPath(dev).Parent()))
		assert.NotEmpty(t, under(snapshot, env.layout.HotplugPath(dev)))
	}

	ok, err := env.domains.Exists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, env.domains.Destroy(ctx, 2))
	assert.Equal(t, snapshot, env.store.Snapshot())
}

func TestDomainService_DestroyPrunesBackendDomain(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name        string
		backend     int
		makeBackend bool
		wantRoot    bool
	}{
		{name: "scaffolding dom0", backend: 0},
		{name: "live dom0", backend: 0, makeBackend: true, wantRoot: true},
		{name: "driver domain scaffolding", backend: 5},
		{name: "live driver domain", backend: 5, makeBackend: true, wantRoot: true},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			env := setupTestEnv(t)
			bench := NewBenchService(env.domains, env.devices, WithDeviceTemplates([]entity.DeviceTemplate{
				{Kind: entity.KindVBD, DeviceID: 51712, BackendDomainID: tc.backend},
				{Kind: entity.KindVIF, DeviceID: 0, BackendDomainID: tc.backend},
			}))

			if tc.makeBackend {
				require.NoError(t, env.domains.Make(ctx, tc.backend))
			}
			require.NoError(t, bench.VMStart(ctx, 1))
			require.NoError(t, bench.VMStart(ctx, 2))
			require.NoError(t, bench.VMShutdown(ctx, 1))

			// 另一个 domain 的后端仍在，backend 目录保留
			assert.True(t, exists(t, env.store, env.layout.BackendRoot(tc.backend)))
			assert.False(t, exists(t, env.store, env.layout.BackendRoot(tc.backend).Child("vbd").Int(1)))

			require.NoError(t, bench.VMShutdown(ctx, 2))
			assert.False(t, exists(t, env.store, env.layout.BackendRoot(tc.backend)))

			ok, err := env.domains.Exists(ctx, tc.backend)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRoot, ok)
			if tc.wantRoot {
				name, err := env.domains.Name(ctx, tc.backend)
				require.NoError(t, err)
				assert.Equal(t, entity.VMName(tc.backend), name)
			}
		})
	}
}

func TestDomainService_DestroyKeepsSharedVM(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := setupTestEnv(t)
	require.NoError(t, env.domains.Make(ctx, 4))

	// 迁移中的另一个 domain 仍引用同一个 VM
	vm := env.layout.VMPath(entity.VMUUID(4))
	require.NoError(t, env.store.Write(ctx, vm.Child("domains").Int(40).String(), "/bench/local/domain/40"))

	require.NoError(t, env.domains.Destroy(ctx, 4))
	assert.True(t, exists(t, env.store, vm))
	assert.True(t, exists(t, env.store, env.layout.VSSPath(entity.VMUUID(4))))
	assert.False(t, exists(t, env.store, vm.Child("domains").Int(4)))

	require.NoError(t, env.store.Remove(ctx, vm.Child("domains").Int(40).String()))
	require.NoError(t, env.domains.Make(ctx, 4))
	require.NoError(t, env.domains.Destroy(ctx, 4))
	assert.False(t, exists(t, env.store, vm))
	assert.False(t, exists(t, env.store, env.layout.VSSPath(entity.VMUUID(4))))
}

func TestDomainService_DestroyNeverCreated(t *testing.T) {
	t.Parallel()

	env := setupTestEnv(t)
	require.NoError(t, env.domains.Destroy(context.Background(), 77))
	assert.Empty(t, env.store.Snapshot())
}

func TestDomainService_MakePurgeFailure(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name      string
		removeErr error
		wantErr   error
	}{
		{
			name:      "absent domain is purged",
			removeErr: xenstore.ErrNotFound,
			wantErr:   xenstore.ErrQuota,
		},
		{
			name:      "permission error propagates",
			removeErr: xenstore.ErrPermission,
			wantErr:   xenstore.ErrPermission,
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			m := xenstore.NewMockClient()
			m.On("Remove", mock.Anything, "/bench/local/domain/1").Return(tc.removeErr)
			m.On("Transaction", mock.Anything).Return(xenstore.ErrQuota)

			layout := entity.DefaultLayout()
			svc := NewDomainService(m, layout, NewDeviceService(m, layout, nil), nil)
			err := svc.Make(context.Background(), 1)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
