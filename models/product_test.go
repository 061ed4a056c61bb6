package models_test

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/retail_backend/models"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
)

// riceKg mirrors the canonical setup: rice sold by the kg at 10, with a
// "bag(5kg)" presentation of factor 5 priced at 40 (deliberately not 5x10).
func riceKg() *models.Product {
	return &models.Product{
		ID:         1,
		Name:       "Rice",
		BaseUnit:   "kg",
		SalesPrice: decimal.NewFromInt(10),
		StockQty:   decimal.NewFromInt(100),
		UnitConversions: []models.UnitConversion{
			{ProductId: 1, Unit: "bag(5kg)", Factor: decimal.NewFromInt(5), SalesPrice: decimal.NewFromInt(40)},
		},
	}
}

func TestToBaseUnits(t *testing.T) {
	product := riceKg()

	qty, err := product.ToBaseUnits(decimal.NewFromInt(3), "kg")
	if err != nil {
		t.Fatalf("base unit: %v", err)
	}
	if !qty.Equal(decimal.NewFromInt(3)) {
		t.Errorf("3 kg = %s base units, want 3", qty)
	}

	qty, err = product.ToBaseUnits(decimal.NewFromInt(2), "bag(5kg)")
	if err != nil {
		t.Fatalf("bag: %v", err)
	}
	if !qty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("2 bags = %s kg, want 10", qty)
	}

	_, err = product.ToBaseUnits(decimal.NewFromInt(1), "crate")
	if !errors.Is(err, models.ErrUnknownUnit) {
		t.Errorf("unknown unit: err = %v, want ErrUnknownUnit", err)
	}
}

func TestUnitPrice_UsesDeclaredPresentationPrice(t *testing.T) {
	product := riceKg()

	price, err := product.UnitPrice("bag(5kg)")
	if err != nil {
		t.Fatalf("UnitPrice: %v", err)
	}
	// Declared bag price is 40, not factor x base = 50.
	if !price.Equal(decimal.NewFromInt(40)) {
		t.Errorf("bag price = %s, want 40", price)
	}

	price, err = product.UnitPrice("kg")
	if err != nil {
		t.Fatalf("UnitPrice base: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(10)) {
		t.Errorf("kg price = %s, want 10", price)
	}
}

func TestExpandComponents_PlainProduct(t *testing.T) {
	product := riceKg()

	portions, err := product.ExpandComponents(decimal.NewFromInt(2), "bag(5kg)")
	if err != nil {
		t.Fatalf("ExpandComponents: %v", err)
	}
	if len(portions) != 1 {
		t.Fatalf("got %d portions, want 1", len(portions))
	}
	if portions[0].ProductId != product.ID || !portions[0].BaseQty.Equal(decimal.NewFromInt(10)) {
		t.Errorf("portion = {%d %s}, want {1 10}", portions[0].ProductId, portions[0].BaseQty)
	}
}

func TestExpandComponents_Composite(t *testing.T) {
	// Breakfast box: 2 kg rice + 6 eggs per box.
	box := &models.Product{
		ID:          10,
		Name:        "Breakfast Box",
		BaseUnit:    "box",
		IsComposite: utils.NewTrue(),
		Components: []models.BundleComponent{
			{ProductId: 10, ComponentProductId: 1, Qty: decimal.NewFromInt(2), Position: 0},
			{ProductId: 10, ComponentProductId: 2, Qty: decimal.NewFromInt(6), Position: 1},
		},
	}

	portions, err := box.ExpandComponents(decimal.NewFromInt(3), "box")
	if err != nil {
		t.Fatalf("ExpandComponents: %v", err)
	}
	if len(portions) != 2 {
		t.Fatalf("got %d portions, want 2", len(portions))
	}
	if portions[0].ProductId != 1 || !portions[0].BaseQty.Equal(decimal.NewFromInt(6)) {
		t.Errorf("rice portion = {%d %s}, want {1 6}", portions[0].ProductId, portions[0].BaseQty)
	}
	if portions[1].ProductId != 2 || !portions[1].BaseQty.Equal(decimal.NewFromInt(18)) {
		t.Errorf("egg portion = {%d %s}, want {2 18}", portions[1].ProductId, portions[1].BaseQty)
	}
}

func TestExpandComponents_ConservesTotals(t *testing.T) {
	// Selling a bundle n times one by one consumes exactly the same base
	// quantities as selling n at once.
	box := &models.Product{
		ID:          10,
		BaseUnit:    "box",
		IsComposite: utils.NewTrue(),
		Components: []models.BundleComponent{
			{ProductId: 10, ComponentProductId: 1, Qty: decimal.RequireFromString("0.75")},
			{ProductId: 10, ComponentProductId: 2, Qty: decimal.RequireFromString("1.5")},
		},
	}

	bulk, err := box.ExpandComponents(decimal.NewFromInt(7), "box")
	if err != nil {
		t.Fatalf("bulk expansion: %v", err)
	}

	accumulated := map[int]decimal.Decimal{}
	for i := 0; i < 7; i++ {
		portions, err := box.ExpandComponents(decimal.NewFromInt(1), "box")
		if err != nil {
			t.Fatalf("single expansion: %v", err)
		}
		for _, portion := range portions {
			accumulated[portion.ProductId] = accumulated[portion.ProductId].Add(portion.BaseQty)
		}
	}

	for _, portion := range bulk {
		if !accumulated[portion.ProductId].Equal(portion.BaseQty) {
			t.Errorf("product %d: 7x1 = %s, 1x7 = %s", portion.ProductId,
				accumulated[portion.ProductId], portion.BaseQty)
		}
	}
}
