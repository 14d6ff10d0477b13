package duplicates

import (
	"context"
	"errors"
	"testing"
	"time"

	"braintacle/database"
	"braintacle/lock"
	"braintacle/model"
	"braintacle/testutil"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener goroutine per open pool
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func newService(t *testing.T) (*Service, *sqlx.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	return NewService(db, lock.FixedValidity(time.Hour), nil), db
}

func clientExists(t *testing.T, db *sqlx.DB, id int64) bool {
	t.Helper()
	_, err := database.GetClient(db, id)
	if errors.Is(err, database.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestCount(t *testing.T) {
	s, db := newService(t)
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc1", Macs: []string{"00:00:5E:00:53:01"}, Serial: "S1", AssetTag: "A1"})
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc1", Macs: []string{"00:00:5E:00:53:01"}, Serial: "S2", AssetTag: "A1"})
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc2", Macs: []string{"00:00:5E:00:53:02"}, Serial: "S2"})
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc3", Serial: "S3"})
	testutil.AddClient(t, db, testutil.ClientSpec{Name: ""})
	testutil.AddClient(t, db, testutil.ClientSpec{Name: ""})

	counts, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		model.CriterionName:       2,
		model.CriterionMacAddress: 2,
		model.CriterionSerial:     2,
		model.CriterionAssetTag:   2,
	}, counts)
}

func TestCountIgnoresAllowedValues(t *testing.T) {
	s, db := newService(t)
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "a", Macs: []string{"00:00:5E:00:53:01"}, Serial: "To be filled by O.E.M."})
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "b", Macs: []string{"00:00:5E:00:53:01"}, Serial: "To be filled by O.E.M."})

	require.NoError(t, s.Allow(model.CriterionMacAddress, "00:00:5E:00:53:01"))
	require.NoError(t, s.Allow(model.CriterionSerial, " To be filled by O.E.M. "))
	// allowing twice is harmless
	require.NoError(t, s.Allow(model.CriterionSerial, "To be filled by O.E.M."))

	counts, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counts[model.CriterionMacAddress])
	assert.Equal(t, 0, counts[model.CriterionSerial])

	allowed, err := s.Allowed(model.CriterionSerial)
	require.NoError(t, err)
	assert.Equal(t, []string{"To be filled by O.E.M."}, allowed)
}

func TestAllowInvalid(t *testing.T) {
	s, _ := newService(t)
	assert.True(t, errors.Is(s.Allow(model.CriterionName, "pc1"), ErrInvalidCriterion))
	assert.True(t, errors.Is(s.Allow("Color", "red"), ErrInvalidCriterion))
	assert.True(t, errors.Is(s.Allow(model.CriterionAssetTag, "  "), ErrInvalidValue))
	_, err := s.Allowed(model.CriterionName)
	assert.True(t, errors.Is(err, ErrInvalidCriterion))
}

func TestFind(t *testing.T) {
	s, db := newService(t)
	a := testutil.AddClient(t, db, testutil.ClientSpec{Name: "a", Macs: []string{"00:00:5E:00:53:02", "00:00:5E:00:53:09"}, LastContact: testutil.Date(2024, 3, 1)})
	b := testutil.AddClient(t, db, testutil.ClientSpec{Name: "b", Macs: []string{"00:00:5E:00:53:01"}, LastContact: testutil.Date(2024, 1, 1)})
	c := testutil.AddClient(t, db, testutil.ClientSpec{Name: "c", Macs: []string{"00:00:5E:00:53:01", "00:00:5E:00:53:02"}, LastContact: testutil.Date(2024, 2, 1)})
	testutil.AddClient(t, db, testutil.ClientSpec{Name: "d", Macs: []string{"00:00:5E:00:53:03"}})

	found, err := s.Find(model.CriterionMacAddress, "", "")
	require.NoError(t, err)
	require.Len(t, found, 4)
	// grouped by colliding address, then id
	assert.Equal(t, []int64{b, c, a, c}, ids(found))
	assert.Equal(t, "00:00:5E:00:53:01", found[0].MacAddress)
	assert.Equal(t, "00:00:5E:00:53:02", found[2].MacAddress)

	found, err = s.Find(model.CriterionMacAddress, "LastContactDate", "desc")
	require.NoError(t, err)
	assert.Equal(t, []int64{a, c, c, b}, ids(found))
	assert.True(t, found[0].LastContactDate.Equal(testutil.Date(2024, 3, 1)))
}

func TestFindBySerialShowsFirstMac(t *testing.T) {
	s, db := newService(t)
	a := testutil.AddClient(t, db, testutil.ClientSpec{Name: "a", Macs: []string{"00:00:5E:00:53:09", "00:00:5E:00:53:01"}, Serial: "X"})
	b := testutil.AddClient(t, db, testutil.ClientSpec{Name: "b", Serial: "X", AssetTag: "T"})

	found, err := s.Find(model.CriterionSerial, "Id", "asc")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a, found[0].ID)
	assert.Equal(t, "00:00:5E:00:53:01", found[0].MacAddress)
	assert.Equal(t, b, found[1].ID)
	assert.Equal(t, "", found[1].MacAddress)
	assert.Equal(t, "T", found[1].AssetTag)
}

func TestFindInvalid(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Find("Color", "", "")
	assert.True(t, errors.Is(err, ErrInvalidCriterion))
	_, err = s.Find(model.CriterionName, "Color", "")
	assert.True(t, errors.Is(err, ErrInvalidOrder))
	_, err = s.Find(model.CriterionName, "Id", "sideways")
	assert.True(t, errors.Is(err, ErrInvalidOrder))
}

func ids(clients []model.DuplicateClient) []int64 {
	out := make([]int64, len(clients))
	for i, c := range clients {
		out[i] = c.ID
	}
	return out
}

func TestMergeKeepsNewest(t *testing.T) {
	s, db := newService(t)
	old := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2023, 1, 1)})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})
	middle := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2023, 6, 1)})

	result, err := s.Merge([]int64{newest, old, middle, old}, MergeOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, newest, result.Survivor)
	assert.Equal(t, []int64{old, middle}, result.Deleted)

	assert.True(t, clientExists(t, db, newest))
	assert.False(t, clientExists(t, db, old))
	assert.False(t, clientExists(t, db, middle))

	var locks int
	require.NoError(t, db.Get(&locks, `SELECT COUNT(*) FROM locks`))
	assert.Equal(t, 0, locks)
}

func TestMergeTieBrokenByID(t *testing.T) {
	s, db := newService(t)
	when := testutil.Date(2024, 1, 1)
	first := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: when})
	second := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: when})

	result, err := s.Merge([]int64{second, first}, MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, second, result.Survivor)
	assert.Equal(t, []int64{first}, result.Deleted)
}

func TestMergeNoop(t *testing.T) {
	s, db := newService(t)
	id := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})

	result, err := s.Merge([]int64{id, id}, MergeOptions{})
	require.NoError(t, err)
	assert.Nil(t, result)

	result, err = s.Merge(nil, MergeOptions{})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.True(t, clientExists(t, db, id))
}

func TestMergeLockedClient(t *testing.T) {
	s, db := newService(t)
	a := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2023, 1, 1)})
	b := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})

	other := lock.NewLocker(db, lock.FixedValidity(time.Hour))
	require.NoError(t, other.MustLock(b))

	_, err := s.Merge([]int64{a, b}, MergeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lock.ErrLocked))

	assert.True(t, clientExists(t, db, a))
	assert.True(t, clientExists(t, db, b))

	// the lock on a was released, the foreign lock on b is intact
	since, err := database.GetLockSince(db, a)
	require.NoError(t, err)
	assert.Nil(t, since)
	locked, err := other.IsLocked(b)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestMergeMissingClientChangesNothing(t *testing.T) {
	s, db := newService(t)
	a := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc"})

	_, err := s.Merge([]int64{a, 4711}, MergeOptions{})
	assert.True(t, errors.Is(err, database.ErrNotFound))
	assert.True(t, clientExists(t, db, a))

	var locks int
	require.NoError(t, db.Get(&locks, `SELECT COUNT(*) FROM locks`))
	assert.Equal(t, 0, locks)
}

func TestMergeRollsBackOnFailure(t *testing.T) {
	s, db := newService(t)
	old := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2023, 1, 1), Windows: true})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1), Windows: true})
	require.NoError(t, database.SetCustomFields(db, old, map[string]string{"TAG": "old"}))
	require.NoError(t, database.SetManualProductKey(db, old, "KEY"))

	// make the product key step fail after custom fields were merged
	_, err := db.Exec(`CREATE TRIGGER fail_key BEFORE UPDATE ON windows_installations
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	require.NoError(t, err)

	_, err = s.Merge([]int64{old, newest}, MergeOptions{CustomFields: true, ProductKey: true})
	require.Error(t, err)

	assert.True(t, clientExists(t, db, old))
	fields, err := database.GetCustomFields(db, newest)
	require.NoError(t, err)
	assert.Empty(t, fields)

	var locks int
	require.NoError(t, db.Get(&locks, `SELECT COUNT(*) FROM locks`))
	assert.Equal(t, 0, locks)
}

func TestMergeCustomFieldsFromOldest(t *testing.T) {
	s, db := newService(t)
	oldest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1)})
	middle := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2023, 1, 1)})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})
	require.NoError(t, database.SetCustomFields(db, oldest, map[string]string{"TAG": "Accounting", "Room": "12"}))
	require.NoError(t, database.SetCustomFields(db, middle, map[string]string{"TAG": "Sales"}))
	require.NoError(t, database.SetCustomFields(db, newest, map[string]string{"TAG": "", "Phone": "123"}))

	_, err := s.Merge([]int64{oldest, middle, newest}, MergeOptions{CustomFields: true})
	require.NoError(t, err)

	fields, err := database.GetCustomFields(db, newest)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"TAG": "Accounting", "Room": "12"}, fields)
}

func TestMergeWithoutCustomFieldsKeepsSurvivors(t *testing.T) {
	s, db := newService(t)
	old := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1)})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})
	require.NoError(t, database.SetCustomFields(db, old, map[string]string{"TAG": "old"}))
	require.NoError(t, database.SetCustomFields(db, newest, map[string]string{"TAG": "new"}))

	_, err := s.Merge([]int64{old, newest}, MergeOptions{})
	require.NoError(t, err)

	fields, err := database.GetCustomFields(db, newest)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"TAG": "new"}, fields)
}

func intPtr(i int64) *int64 { return &i }

func TestMergeConfig(t *testing.T) {
	s, db := newService(t)
	oldest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1)})
	middle := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2023, 1, 1)})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})

	set := func(client int64, option string, v int64) {
		require.NoError(t, database.SetClientConfig(db, model.ConfigValue{ClientID: client, Option: option, IValue: intPtr(v)}))
	}
	set(oldest, "inventoryInterval", 1)
	set(oldest, "contactInterval", 1)
	set(oldest, "packageDeployment", 0)
	set(middle, "inventoryInterval", 2)
	set(newest, "contactInterval", 3)

	_, err := s.Merge([]int64{oldest, middle, newest}, MergeOptions{Config: true})
	require.NoError(t, err)

	values, err := database.GetClientConfig(db, newest)
	require.NoError(t, err)
	got := map[string]int64{}
	for _, v := range values {
		got[v.Option] = *v.IValue
	}
	assert.Equal(t, map[string]int64{
		"contactInterval":   3,
		"inventoryInterval": 2,
		"packageDeployment": 0,
	}, got)
}

func TestMergeGroups(t *testing.T) {
	s, db := newService(t)
	oldest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1)})
	middle := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2023, 1, 1)})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})

	group := func(name string) int64 {
		id, err := database.CreateGroup(db, &model.Group{Name: name, CreationDate: testutil.Date(2020, 1, 1)})
		require.NoError(t, err)
		return id
	}
	g1, g2, g3, g4 := group("g1"), group("g2"), group("g3"), group("g4")

	require.NoError(t, database.SetMembership(db, oldest, g1, model.MembershipManual))
	require.NoError(t, database.SetMembership(db, oldest, g2, model.MembershipManual))
	require.NoError(t, database.SetMembership(db, middle, g2, model.MembershipNever))
	require.NoError(t, database.SetMembership(db, middle, g3, model.MembershipAutomatic))
	require.NoError(t, database.SetMembership(db, oldest, g4, model.MembershipNever))
	require.NoError(t, database.SetMembership(db, newest, g4, model.MembershipManual))

	_, err := s.Merge([]int64{oldest, middle, newest}, MergeOptions{Groups: true})
	require.NoError(t, err)

	memberships, err := database.GetClientMemberships(db, newest)
	require.NoError(t, err)
	got := map[int64]int{}
	for _, m := range memberships {
		got[m.GroupID] = m.MembershipType
	}
	assert.Equal(t, map[int64]int{
		g1: model.MembershipManual,
		g2: model.MembershipNever,
		g4: model.MembershipManual,
	}, got)
}

func TestMergePackages(t *testing.T) {
	s, db := newService(t)
	old := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1)})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})

	pkg := func(id int64, name string) int64 {
		require.NoError(t, database.InsertPackage(db, &model.Package{ID: id, Name: name, CreatedAt: testutil.Date(2020, 1, 1)}))
		return id
	}
	p1, p2 := pkg(1, "p1"), pkg(2, "p2")
	now := testutil.Date(2023, 1, 1)
	require.NoError(t, database.AssignPackage(db, old, p1, now))
	require.NoError(t, database.AssignPackage(db, old, p2, now))
	require.NoError(t, database.SetAssignmentStatus(db, old, p2, model.StatusSuccess))
	require.NoError(t, database.AssignPackage(db, newest, p2, now))

	_, err := s.Merge([]int64{old, newest}, MergeOptions{Packages: true})
	require.NoError(t, err)

	assignments, err := database.GetClientAssignments(db, newest)
	require.NoError(t, err)
	got := map[int64]string{}
	for _, a := range assignments {
		got[a.PackageID] = a.Status
	}
	assert.Equal(t, map[int64]string{p1: model.StatusPending, p2: model.StatusPending}, got)
}

func TestMergeWithoutPackagesDropsOldAssignments(t *testing.T) {
	s, db := newService(t)
	old := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1)})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})
	require.NoError(t, database.InsertPackage(db, &model.Package{ID: 1, Name: "p1", CreatedAt: testutil.Date(2020, 1, 1)}))
	require.NoError(t, database.AssignPackage(db, old, 1, testutil.Date(2023, 1, 1)))

	_, err := s.Merge([]int64{old, newest}, MergeOptions{})
	require.NoError(t, err)

	assignments, err := database.GetPackageAssignments(db, 1)
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestMergeProductKey(t *testing.T) {
	s, db := newService(t)
	oldest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1), Windows: true})
	middle := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2023, 1, 1), Windows: true})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1), Windows: true})
	require.NoError(t, database.SetManualProductKey(db, oldest, "OLDEST"))
	require.NoError(t, database.SetManualProductKey(db, middle, "MIDDLE"))

	_, err := s.Merge([]int64{oldest, middle, newest}, MergeOptions{ProductKey: true})
	require.NoError(t, err)

	w, err := database.GetWindowsInstallation(db, newest)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "MIDDLE", w.ManualProductKey)
}

func TestMergeProductKeyKeepsSurvivorKey(t *testing.T) {
	s, db := newService(t)
	old := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1), Windows: true})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1), Windows: true})
	require.NoError(t, database.SetManualProductKey(db, old, "OLD"))
	require.NoError(t, database.SetManualProductKey(db, newest, "NEW"))

	_, err := s.Merge([]int64{old, newest}, MergeOptions{ProductKey: true})
	require.NoError(t, err)

	w, err := database.GetWindowsInstallation(db, newest)
	require.NoError(t, err)
	assert.Equal(t, "NEW", w.ManualProductKey)
}

func TestMergeProductKeyNonWindowsSurvivor(t *testing.T) {
	s, db := newService(t)
	old := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2022, 1, 1), Windows: true})
	newest := testutil.AddClient(t, db, testutil.ClientSpec{Name: "pc", LastContact: testutil.Date(2024, 1, 1)})
	require.NoError(t, database.SetManualProductKey(db, old, "OLD"))

	_, err := s.Merge([]int64{old, newest}, MergeOptions{ProductKey: true})
	require.NoError(t, err)

	w, err := database.GetWindowsInstallation(db, newest)
	require.NoError(t, err)
	assert.Nil(t, w)
}
