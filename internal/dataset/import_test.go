package dataset

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportJSON(t *testing.T) {
	s := newTestStore(t)
	// 乱序输入，导入后按 ts 排序入库
	doc := `[
		{"ts": 3000, "price": 99.5, "iv": 0.19},
		{"ts": 1000, "price": 100.0, "iv": 0.2},
		{"ts": 2000, "price": 101.2}
	]`
	n, err := ImportJSON(context.Background(), s, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := s.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1000), all[0].TS)
	assert.Zero(t, all[1].IV) // iv 缺省为 0
}

func TestImportJSONRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"非 JSON", `not json`},
		{"非数组", `{"ts": 1, "price": 2}`},
		{"空数组", `[]`},
		{"缺 price", `[{"ts": 1000}]`},
		{"价格为零", `[{"ts": 1000, "price": 0}]`},
		{"负时间戳", `[{"ts": -1, "price": 100}]`},
		{"未知字段", `[{"ts": 1000, "price": 100, "volume": 5}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := ImportJSON(context.Background(), s, strings.NewReader(tt.doc))
			require.Error(t, err)
			count, err := s.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, count, "失败导入不应写入任何记录")
		})
	}
}
