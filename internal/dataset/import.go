package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"hedgesim/internal/logger"
)

// recordSchema 约束导入文档：时间升序由导入后排序保证，数值范围在此兜底。
const recordSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["ts", "price"],
		"properties": {
			"ts":    {"type": "integer", "minimum": 0},
			"price": {"type": "number", "exclusiveMinimum": 0},
			"iv":    {"type": "number", "minimum": 0}
		},
		"additionalProperties": false
	}
}`

var compiledSchema = jsonschema.MustCompileString("records.json", recordSchema)

// ImportJSON 校验并写入一份 JSON 观测文档，返回写入条数。
// 不符合 schema 的文档整体拒绝，不做部分导入。
func ImportJSON(ctx context.Context, store *Store, r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("解析导入文档失败: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return 0, fmt.Errorf("导入文档不符合 schema: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return 0, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TS < records[j].TS })
	n, err := store.InsertRecords(ctx, records)
	if err != nil {
		return 0, err
	}
	logger.Infof("dataset 导入完成：%d 条观测", n)
	return n, nil
}
