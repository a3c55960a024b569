package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducts_Text(t *testing.T) {
	out, err := execute(t, "products", "../productspec/testdata/valid")
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "gold_pack")
	assert.Contains(t, out, "gold-500")
	assert.Contains(t, out, "non_consumable")
	assert.Contains(t, out, "3 products from 1 files")
}

func TestProducts_JSON(t *testing.T) {
	out, err := execute(t, "products", "../productspec/testdata/valid", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   ProductsResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.FileCount)
	require.Len(t, resp.Data.Products, 3)

	byName := map[string]ProductInfo{}
	for _, p := range resp.Data.Products {
		byName[p.Name] = p
	}
	assert.Equal(t, "gold-500", byName["gold_pack"].StoreID)
	assert.Equal(t, "sword", byName["sword"].StoreID)
	assert.Equal(t, "subscription", byName["vip_pass"].Type)
}

func TestProducts_Invalid(t *testing.T) {
	out, err := execute(t, "products", "../productspec/testdata/invalid", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeLoadFailed, resp.Error.Code)
}

func TestProducts_DirectoryNotFound(t *testing.T) {
	out, err := execute(t, "products", "testdata/does-not-exist")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestProductsResult_String(t *testing.T) {
	r := ProductsResult{
		Products:  []ProductInfo{{Name: "gem", StoreID: "gem", Type: "consumable"}},
		FileCount: 2,
	}
	s := r.String()
	assert.Contains(t, s, "STORE ID")
	assert.Contains(t, s, "gem")
	assert.Contains(t, s, "1 products from 2 files")
}
