// Package refdata holds the country and product reference tables.
//
// A Table is built once and never mutated afterwards, so it can be shared
// by every request goroutine without locking. Callers that need a mutable
// view get a copy.
package refdata

import (
	"fmt"
	"sort"
	"strings"
)

// Country is an ISO 3166 alpha-2 code with its display name.
type Country struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

// Product is an HS6 subheading.
type Product struct {
	HS6         string `json:"hs6"`
	Description string `json:"description"`
}

// Table is immutable reference data.
type Table struct {
	countries []Country
	byCode    map[string]Country
	products  []Product
	byHS6     map[string]Product
}

// New validates and indexes the rows. Codes are upper-cased; a later
// duplicate of a code replaces the earlier row.
func New(countries []Country, products []Product) (*Table, error) {
	t := &Table{
		byCode: make(map[string]Country, len(countries)),
		byHS6:  make(map[string]Product, len(products)),
	}

	for _, c := range countries {
		c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
		c.Name = strings.TrimSpace(c.Name)
		if len(c.Code) != 2 {
			return nil, fmt.Errorf("country code %q must be two letters", c.Code)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("country %s has no name", c.Code)
		}
		t.byCode[c.Code] = c
	}
	for _, p := range products {
		p.HS6 = strings.TrimSpace(p.HS6)
		if len(p.HS6) != 6 || strings.Trim(p.HS6, "0123456789") != "" {
			return nil, fmt.Errorf("product code %q must be six digits", p.HS6)
		}
		t.byHS6[p.HS6] = p
	}

	for _, c := range t.byCode {
		t.countries = append(t.countries, c)
	}
	sort.Slice(t.countries, func(i, j int) bool { return t.countries[i].Name < t.countries[j].Name })

	for _, p := range t.byHS6 {
		t.products = append(t.products, p)
	}
	sort.Slice(t.products, func(i, j int) bool { return t.products[i].HS6 < t.products[j].HS6 })

	return t, nil
}

// Countries returns all countries sorted by name.
func (t *Table) Countries() []Country {
	out := make([]Country, len(t.countries))
	copy(out, t.countries)
	return out
}

// Products returns all products sorted by code.
func (t *Table) Products() []Product {
	out := make([]Product, len(t.products))
	copy(out, t.products)
	return out
}

// Country looks up a country by code (case-insensitive).
func (t *Table) Country(code string) (Country, bool) {
	c, ok := t.byCode[strings.ToUpper(code)]
	return c, ok
}

// Product looks up a product by HS6 code.
func (t *Table) Product(hs6 string) (Product, bool) {
	p, ok := t.byHS6[hs6]
	return p, ok
}

// CountryName returns the display name, or the code if unknown.
func (t *Table) CountryName(code string) string {
	if c, ok := t.Country(code); ok {
		return c.Name
	}
	return code
}

// CountryNames returns a fresh code -> name map.
func (t *Table) CountryNames() map[string]string {
	out := make(map[string]string, len(t.byCode))
	for code, c := range t.byCode {
		out[code] = c.Name
	}
	return out
}

var defaultCountries = []Country{
	{Code: "US", Name: "United States", Region: "North America"},
	{Code: "CA", Name: "Canada", Region: "North America"},
	{Code: "MX", Name: "Mexico", Region: "North America"},
	{Code: "CN", Name: "China", Region: "East Asia"},
	{Code: "JP", Name: "Japan", Region: "East Asia"},
	{Code: "KR", Name: "South Korea", Region: "East Asia"},
	{Code: "TW", Name: "Taiwan", Region: "East Asia"},
	{Code: "VN", Name: "Vietnam", Region: "Southeast Asia"},
	{Code: "TH", Name: "Thailand", Region: "Southeast Asia"},
	{Code: "MY", Name: "Malaysia", Region: "Southeast Asia"},
	{Code: "ID", Name: "Indonesia", Region: "Southeast Asia"},
	{Code: "IN", Name: "India", Region: "South Asia"},
	{Code: "BD", Name: "Bangladesh", Region: "South Asia"},
	{Code: "DE", Name: "Germany", Region: "Europe"},
	{Code: "FR", Name: "France", Region: "Europe"},
	{Code: "IT", Name: "Italy", Region: "Europe"},
	{Code: "GB", Name: "United Kingdom", Region: "Europe"},
	{Code: "TR", Name: "Turkey", Region: "Europe"},
	{Code: "BR", Name: "Brazil", Region: "South America"},
	{Code: "AU", Name: "Australia", Region: "Oceania"},
}

var defaultProducts = []Product{
	{HS6: "020130", Description: "Bovine meat, fresh or chilled, boneless"},
	{HS6: "610910", Description: "T-shirts, singlets and other vests, knitted, of cotton"},
	{HS6: "850440", Description: "Static converters"},
	{HS6: "870380", Description: "Motor vehicles with only electric motor for propulsion"},
	{HS6: "940360", Description: "Wooden furniture, other"},
}

// Default returns the built-in table.
func Default() *Table {
	t, err := New(defaultCountries, defaultProducts)
	if err != nil {
		panic(err)
	}
	return t
}
