package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	menudomain "github.com/smallbiznis/mealsub/internal/menu/domain"
	vendordomain "github.com/smallbiznis/mealsub/internal/vendors/domain"
	"gorm.io/gorm"
)

type demoMenu struct {
	Name     string
	MealType menudomain.MealType
	Price    string
}

type demoVendor struct {
	Name     string
	Capacity int
	Menus    []demoMenu
}

var demoCatalog = []demoVendor{
	{
		Name:     "Dapur Nusantara",
		Capacity: 40,
		Menus: []demoMenu{
			{Name: "Nasi Uduk Pagi", MealType: menudomain.MealTypeBreakfast, Price: "18.50"},
			{Name: "Ayam Bakar Set", MealType: menudomain.MealTypeLunch, Price: "32.00"},
		},
	},
	{
		Name:     "Green Bowl Kitchen",
		Capacity: 25,
		Menus: []demoMenu{
			{Name: "Quinoa Power Bowl", MealType: menudomain.MealTypeLunch, Price: "41.00"},
			{Name: "Salmon Teriyaki Plate", MealType: menudomain.MealTypeDinner, Price: "55.00"},
		},
	},
	{
		Name:     "Warung Sehat",
		Capacity: 15,
		Menus: []demoMenu{
			{Name: "Gado-Gado Lengkap", MealType: menudomain.MealTypeLunch, Price: "24.00"},
			{Name: "Sup Ayam Jahe", MealType: menudomain.MealTypeDinner, Price: "27.50"},
		},
	},
	{
		Name:     "Sunrise Bakery",
		Capacity: 30,
		Menus: []demoMenu{
			{Name: "Croissant & Yogurt", MealType: menudomain.MealTypeBreakfast, Price: "21.00"},
			{Name: "Chicken Pesto Sandwich", MealType: menudomain.MealTypeLunch, Price: "29.00"},
		},
	},
}

// EnsureDemoCatalog seeds vendors and menus for local development. Vendors are
// keyed by slug, so running it again leaves existing rows untouched.
func EnsureDemoCatalog(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, vendor := range demoCatalog {
			if err := ensureVendorTx(ctx, tx, node, vendor); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureVendorTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, item demoVendor) error {
	vendorSlug := slug.Make(item.Name)

	var existing vendordomain.Vendor
	err := tx.WithContext(ctx).Where("slug = ?", vendorSlug).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	vendor := vendordomain.Vendor{
		ID:              node.Generate(),
		Name:            item.Name,
		Slug:            vendorSlug,
		MonthlyCapacity: item.Capacity,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.WithContext(ctx).Create(&vendor).Error; err != nil {
		return err
	}

	for _, m := range item.Menus {
		price, err := decimal.NewFromString(m.Price)
		if err != nil {
			return err
		}
		menu := menudomain.Menu{
			ID:        node.Generate(),
			VendorID:  vendor.ID,
			Name:      m.Name,
			MealType:  m.MealType,
			Price:     price,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&menu).Error; err != nil {
			return err
		}
	}
	return nil
}
