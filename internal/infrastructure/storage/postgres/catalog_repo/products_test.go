package catalog_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalog"
)

const productSelect = "SELECT id, code, name, group_id, group_name, updated_at FROM products"

func TestProductListQuery(t *testing.T) {
	repo := NewProductRepo(nil)
	groups := []id.ID{id.New(), id.New()}

	tests := []struct {
		name     string
		filter   catalog.ListFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "all products",
			filter:  catalog.ListFilter{},
			wantSQL: productSelect + " ORDER BY code, id",
		},
		{
			name:     "by groups with paging",
			filter:   catalog.ListFilter{GroupIDs: groups, Limit: 20, Offset: 40},
			wantSQL:  productSelect + " WHERE group_id = ANY($1) ORDER BY code, id LIMIT 20 OFFSET 40",
			wantArgs: []any{groups},
		},
		{
			name:     "by ids",
			filter:   catalog.ListFilter{ProductIDs: groups[:1]},
			wantSQL:  productSelect + " WHERE id = ANY($1) ORDER BY code, id",
			wantArgs: []any{groups[:1]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.listQuery(tt.filter).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			if tt.wantArgs == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}
