package permissions

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasRequiresAllBits(t *testing.T) {
	s := ViewOrders | ManageProducts

	assert.True(t, s.Has(ViewOrders))
	assert.True(t, s.Has(ViewOrders|ManageProducts))
	assert.False(t, s.Has(ViewOrders|ManageOrders))
	assert.True(t, s.HasAny(ViewOrders|ManageOrders))
	assert.False(t, s.HasAny(SendMarketing))
}

func TestOwnerImpliesEverything(t *testing.T) {
	s := Owner
	for flag := range names {
		assert.Truef(t, s.Has(flag), "owner should have %s", names[flag])
	}
	assert.True(t, s.IsOwner())
	assert.False(t, RoleManager.IsOwner())
}

func TestAddRemove(t *testing.T) {
	s := Set(0).Add(ManageOrders).Add(ViewOrders)
	require.True(t, s.Has(ManageOrders|ViewOrders))

	s = s.Remove(ManageOrders)
	assert.False(t, s.Has(ManageOrders))
	assert.True(t, s.Has(ViewOrders))
}

func TestNamesSorted(t *testing.T) {
	got := (ViewOrders | ManageBrand | SendMarketing).Names()
	want := []string{"manage_brand", "send_marketing", "view_orders"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	assert.Equal(t, "none", Set(0).String())
}

func TestParse(t *testing.T) {
	s, err := Parse([]string{"view_orders", " Manage_Orders ", ""})
	require.NoError(t, err)
	assert.Equal(t, ViewOrders|ManageOrders, s)

	s, err = Parse([]string{"staff"})
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, s)

	_, err = Parse([]string{"launch_rockets"})
	assert.Error(t, err)
}

func TestPresets(t *testing.T) {
	assert.False(t, RoleManager.Has(ManageMembers))
	assert.True(t, RoleManager.Has(SendMarketing))
	assert.True(t, RoleStaff.Has(ManageShipping))
	assert.False(t, RoleViewer.Has(ManageOrders))
}

func TestJSONIsInteger(t *testing.T) {
	data, err := json.Marshal(struct {
		P Set `json:"p"`
	}{P: ViewOrders | ManageOrders})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":3}`, string(data))

	var out struct {
		P Set `json:"p"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"p":5}`), &out))
	assert.Equal(t, ViewOrders|ManageProducts, out.P)

	assert.Error(t, json.Unmarshal([]byte(`{"p":"x"}`), &out))
}

func TestFromInt64(t *testing.T) {
	s, err := FromInt64(RoleOwner.Int64())
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, s)

	_, err = FromInt64(-1)
	assert.Error(t, err)
}
