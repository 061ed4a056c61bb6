package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID       int    `gorm:"primary_key" json:"id"`
	Name     string `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Sku      string `gorm:"index;size:100" json:"sku"`
	Barcode  string `gorm:"size:100" json:"barcode"`
	BaseUnit string `gorm:"size:20;not null" json:"base_unit" binding:"required"`
	// SalesPrice is the price per base unit. Alternate-presentation prices
	// live on the conversion rows and are declared independently.
	SalesPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	// StockQty is always in base-unit terms and is mutated through the stock
	// commands only, never written directly by request handlers.
	StockQty        decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"stock_qty"`
	IsComposite     *bool             `gorm:"not null;default:false" json:"is_composite"`
	IsActive        *bool             `gorm:"not null;default:true" json:"is_active"`
	UnitConversions []UnitConversion  `gorm:"foreignKey:ProductId" json:"unit_conversions"`
	Components      []BundleComponent `gorm:"foreignKey:ProductId" json:"components"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// UnitConversion declares one alternate selling presentation of a product,
// e.g. "bag(5kg)" with Factor 5 on a product whose base unit is "kg".
// SalesPrice is the declared price for the presentation; it is NOT derived
// from Factor times the base price and may intentionally differ from it.
type UnitConversion struct {
	ID         int             `gorm:"primary_key" json:"id"`
	ProductId  int             `gorm:"index;not null;uniqueIndex:idx_product_unit,priority:1" json:"product_id"`
	Unit       string          `gorm:"size:30;not null;uniqueIndex:idx_product_unit,priority:2" json:"unit" binding:"required"`
	Factor     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"factor" binding:"required"`
	SalesPrice decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BundleComponent is one line of a composite product's recipe: Qty base
// units of the component product are consumed per one bundle sold.
// Component products must be non-composite (checked at write time), so
// expansion never recurses.
type BundleComponent struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	ProductId          int             `gorm:"index;not null" json:"product_id"`
	ComponentProductId int             `gorm:"index;not null" json:"component_product_id" binding:"required"`
	Qty                decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty" binding:"required"`
	Position           int             `gorm:"not null;default:0" json:"position"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name            string               `json:"name" binding:"required"`
	Sku             string               `json:"sku"`
	Barcode         string               `json:"barcode"`
	BaseUnit        string               `json:"base_unit" binding:"required"`
	SalesPrice      decimal.Decimal      `json:"sales_price"`
	OpeningStock    decimal.Decimal      `json:"opening_stock"`
	IsComposite     *bool                `json:"is_composite"`
	UnitConversions []NewUnitConversion  `json:"unit_conversions"`
	Components      []NewBundleComponent `json:"components"`
}

type NewUnitConversion struct {
	Unit       string          `json:"unit" binding:"required"`
	Factor     decimal.Decimal `json:"factor" binding:"required"`
	SalesPrice decimal.Decimal `json:"sales_price"`
}

type NewBundleComponent struct {
	ComponentProductId int             `json:"component_product_id" binding:"required"`
	Qty                decimal.Decimal `json:"qty" binding:"required"`
}

// StockPortion is one (component product, base-unit quantity) pair produced
// by composite expansion. For a plain product the expansion is a single
// portion for the product itself.
type StockPortion struct {
	ProductId int
	BaseQty   decimal.Decimal
}

/* Unit conversion resolver */

func (p *Product) conversionFor(unit string) (*UnitConversion, bool) {
	for i := range p.UnitConversions {
		if p.UnitConversions[i].Unit == unit {
			return &p.UnitConversions[i], true
		}
	}
	return nil, false
}

// ToBaseUnits converts qty expressed in unit into the product's base unit.
// Identity for the base unit itself; otherwise the declared factor applies.
func (p *Product) ToBaseUnits(qty decimal.Decimal, unit string) (decimal.Decimal, error) {
	if unit == p.BaseUnit {
		return qty, nil
	}
	conv, ok := p.conversionFor(unit)
	if !ok {
		return decimal.Zero, fmt.Errorf("product %d (%s), unit %q: %w", p.ID, p.Name, unit, ErrUnknownUnit)
	}
	return qty.Mul(conv.Factor), nil
}

// UnitPrice resolves the selling price for one unit of the given
// presentation. The presentation price is the DECLARED one, never the
// conversion factor times the base price.
func (p *Product) UnitPrice(unit string) (decimal.Decimal, error) {
	if unit == p.BaseUnit {
		return p.SalesPrice, nil
	}
	conv, ok := p.conversionFor(unit)
	if !ok {
		return decimal.Zero, fmt.Errorf("product %d (%s), unit %q: %w", p.ID, p.Name, unit, ErrUnknownUnit)
	}
	return conv.SalesPrice, nil
}

/* Composite expander */

// ExpandComponents flattens a requested quantity of this product into the
// base-unit stock portions it consumes. Composite products expand to one
// portion per declared component, in declared order; plain products expand
// to themselves. Components are non-composite by construction, so a single
// pass suffices.
func (p *Product) ExpandComponents(qty decimal.Decimal, unit string) ([]StockPortion, error) {
	baseQty, err := p.ToBaseUnits(qty, unit)
	if err != nil {
		return nil, err
	}

	if p.IsComposite == nil || !*p.IsComposite {
		return []StockPortion{{ProductId: p.ID, BaseQty: baseQty}}, nil
	}

	portions := make([]StockPortion, 0, len(p.Components))
	for _, component := range p.Components {
		portions = append(portions, StockPortion{
			ProductId: component.ComponentProductId,
			BaseQty:   baseQty.Mul(component.Qty),
		})
	}
	return portions, nil
}

/* CRUD */

func (input *NewProduct) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Product](ctx, "name", input.Name, id); err != nil {
		return err
	}
	if input.Sku != "" {
		if err := utils.ValidateUnique[Product](ctx, "sku", input.Sku, id); err != nil {
			return err
		}
	}

	seen := map[string]bool{input.BaseUnit: true}
	for _, conv := range input.UnitConversions {
		if conv.Unit == "" {
			return errors.New("conversion unit name is required")
		}
		if seen[conv.Unit] {
			return errors.New("duplicate unit " + conv.Unit)
		}
		seen[conv.Unit] = true
		if !conv.Factor.IsPositive() {
			return errors.New("conversion factor must be positive")
		}
	}

	isComposite := input.IsComposite != nil && *input.IsComposite
	if isComposite {
		if len(input.Components) == 0 {
			return errors.New("composite product requires at least one component")
		}
		if !input.OpeningStock.IsZero() {
			return errors.New("composite product cannot hold its own stock")
		}
		for _, component := range input.Components {
			if !component.Qty.IsPositive() {
				return errors.New("component qty must be positive")
			}
			if component.ComponentProductId == id && id > 0 {
				return errors.New("composite product cannot contain itself")
			}
			child, err := utils.FetchModel[Product](ctx, component.ComponentProductId)
			if err != nil {
				return fmt.Errorf("component %d: %w", component.ComponentProductId, ErrProductNotFound)
			}
			// no nesting: a bundle may reference only plain products
			if child.IsComposite != nil && *child.IsComposite {
				return fmt.Errorf("component %d (%s) is composite; bundles cannot nest", child.ID, child.Name)
			}
		}
	} else if len(input.Components) > 0 {
		return errors.New("components declared on a non-composite product")
	}

	return nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	isComposite := input.IsComposite != nil && *input.IsComposite
	product := Product{
		Name:        input.Name,
		Sku:         input.Sku,
		Barcode:     input.Barcode,
		BaseUnit:    input.BaseUnit,
		SalesPrice:  input.SalesPrice,
		StockQty:    input.OpeningStock,
		IsComposite: &isComposite,
		IsActive:    utils.NewTrue(),
	}
	for _, conv := range input.UnitConversions {
		product.UnitConversions = append(product.UnitConversions, UnitConversion{
			Unit:       conv.Unit,
			Factor:     conv.Factor,
			SalesPrice: conv.SalesPrice,
		})
	}
	for i, component := range input.Components {
		product.Components = append(product.Components, BundleComponent{
			ComponentProductId: component.ComponentProductId,
			Qty:                component.Qty,
			Position:           i,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", id, ErrProductNotFound)
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() { _ = tx.Rollback().Error }()

	isComposite := input.IsComposite != nil && *input.IsComposite
	// StockQty deliberately absent: stock moves only through stock commands.
	if err := tx.Model(product).Updates(map[string]interface{}{
		"Name":        input.Name,
		"Sku":         input.Sku,
		"Barcode":     input.Barcode,
		"BaseUnit":    input.BaseUnit,
		"SalesPrice":  input.SalesPrice,
		"IsComposite": isComposite,
	}).Error; err != nil {
		return nil, err
	}

	// conversion and component rows are replaced wholesale
	if err := tx.Where("product_id = ?", id).Delete(&UnitConversion{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("product_id = ?", id).Delete(&BundleComponent{}).Error; err != nil {
		return nil, err
	}
	for _, conv := range input.UnitConversions {
		row := UnitConversion{ProductId: id, Unit: conv.Unit, Factor: conv.Factor, SalesPrice: conv.SalesPrice}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
	}
	for i, component := range input.Components {
		row := BundleComponent{ProductId: id, ComponentProductId: component.ComponentProductId, Qty: component.Qty, Position: i}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return GetProduct(ctx, id)
}

func DeleteProduct(ctx context.Context, id int) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", id, ErrProductNotFound)
	}

	count, err := utils.ResourceCountWhere[BundleComponent](ctx, "component_product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("product is a component of a bundle")
	}
	count, err = utils.ResourceCountWhere[OrderItem](ctx, "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("product is used by order(s)")
	}
	count, err = utils.ResourceCountWhere[SaleItem](ctx, "product_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.New("product is used by sale(s)")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer func() { _ = tx.Rollback().Error }()
	if err := tx.Where("product_id = ?", id).Delete(&UnitConversion{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("product_id = ?", id).Delete(&BundleComponent{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Delete(product).Error; err != nil {
		return nil, err
	}
	return product, tx.Commit().Error
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	product, err := utils.FetchModel[Product](ctx, id, "UnitConversions", "Components")
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", id, ErrProductNotFound)
	}
	return product, nil
}

func GetProducts(ctx context.Context, name *string) ([]*Product, error) {
	db := config.GetDB()
	var results []*Product

	dbCtx := db.WithContext(ctx).Preload("UnitConversions").Preload("Components")
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// getProductForStock loads a product with the associations that stock
// expansion needs, inside the caller's transaction.
func getProductForStock(tx *gorm.DB, productId int) (*Product, error) {
	var product Product
	err := tx.Preload("UnitConversions").Preload("Components").First(&product, productId).Error
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", productId, ErrProductNotFound)
	}
	return &product, nil
}
