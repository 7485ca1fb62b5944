package services

import "strings"

// Logical CSV fields.
const (
	fieldSKU         = "sku"
	fieldName        = "name"
	fieldDescription = "description"
	fieldPrice       = "price"
	fieldQuantity    = "quantity"
)

// fieldAliases lists, per field, the header names accepted for it in priority order.
// Matching is case-insensitive and ignores surrounding whitespace.
var fieldAliases = []struct {
	field   string
	aliases []string
}{
	{fieldSKU, []string{"sku", "product_sku"}},
	{fieldName, []string{"name", "product_name"}},
	{fieldDescription, []string{"description"}},
	{fieldPrice, []string{"price"}},
	{fieldQuantity, []string{"quantity", "qty"}},
}

// TemplateHeader is the header row of the downloadable CSV template.
var TemplateHeader = []string{fieldSKU, fieldName, fieldDescription, fieldPrice, fieldQuantity}

// columnMap resolves logical fields to column positions of one header row.
type columnMap map[string]int

func newColumnMap(header []string) columnMap {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	cols := make(columnMap, len(fieldAliases))
	for _, fa := range fieldAliases {
	aliases:
		for _, alias := range fa.aliases {
			for i, h := range normalized {
				if h == alias {
					cols[fa.field] = i
					break aliases
				}
			}
		}
	}
	return cols
}

func (c columnMap) has(field string) bool {
	_, ok := c[field]
	return ok
}

// value returns the cell for field, or "" when the column or cell is absent.
func (c columnMap) value(record []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}
