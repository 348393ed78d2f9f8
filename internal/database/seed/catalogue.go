// Package seed populates a plant with a demo catalogue: categories, items,
// tanks and received stock.
package seed

// CategoryDef defines a seeded item category.
type CategoryDef struct {
	Code        string
	Name        string
	Description string
}

// ItemDef defines a seeded inventory item.
type ItemDef struct {
	SKU           string
	Name          string
	UnitOfMeasure string
	CategoryCode  string
	SafetyStock   string
	UnitCost      string  // base purchase price, jittered per batch
	ShelfLifeDays int     // 0 for items that do not expire
	Receipts      int     // batches received at seed time
	BatchQty      float64 // mean quantity per received batch
}

// Categories is the seeded category list.
var Categories = []CategoryDef{
	{Code: "RAW", Name: "Raw materials", Description: "Ingredients consumed by blends"},
	{Code: "PACK", Name: "Packaging", Description: "Bottles, caps and labels consumed by fills"},
	{Code: "WIP", Name: "Intermediates", Description: "Blends held in tanks before filling"},
	{Code: "FG", Name: "Finished goods", Description: "Sellable product"},
}

// Items is the seeded item list. Intermediates and finished goods start
// empty and are only ever produced.
var Items = []ItemDef{
	{SKU: "SYR-CANE", Name: "Cane syrup", UnitOfMeasure: "l", CategoryCode: "RAW", SafetyStock: "200", UnitCost: "2.00", ShelfLifeDays: 180, Receipts: 3, BatchQty: 400},
	{SKU: "CONC-LEM", Name: "Lemon concentrate", UnitOfMeasure: "l", CategoryCode: "RAW", SafetyStock: "50", UnitCost: "6.40", ShelfLifeDays: 90, Receipts: 3, BatchQty: 120},
	{SKU: "CIT-ACID", Name: "Citric acid", UnitOfMeasure: "kg", CategoryCode: "RAW", SafetyStock: "10", UnitCost: "3.15", Receipts: 2, BatchQty: 40},
	{SKU: "WATER-RO", Name: "RO water", UnitOfMeasure: "l", CategoryCode: "RAW", UnitCost: "0.01", Receipts: 1, BatchQty: 5000},
	{SKU: "BTL-500", Name: "PET bottle 500ml", UnitOfMeasure: "pcs", CategoryCode: "PACK", SafetyStock: "2000", UnitCost: "0.07", Receipts: 2, BatchQty: 6000},
	{SKU: "CAP-28", Name: "Cap 28mm", UnitOfMeasure: "pcs", CategoryCode: "PACK", SafetyStock: "2000", UnitCost: "0.02", Receipts: 2, BatchQty: 6000},
	{SKU: "LBL-LEM", Name: "Label lemonade", UnitOfMeasure: "pcs", CategoryCode: "PACK", SafetyStock: "2000", UnitCost: "0.01", Receipts: 1, BatchQty: 10000},
	{SKU: "BLEND-LEM", Name: "Lemonade blend", UnitOfMeasure: "l", CategoryCode: "WIP"},
	{SKU: "LEM-500", Name: "Lemonade 500ml", UnitOfMeasure: "pcs", CategoryCode: "FG", SafetyStock: "500"},
}

// Tanks is the seeded tank list as code and name pairs.
var Tanks = [][2]string{
	{"T-01", "Blend tank 1"},
	{"T-02", "Blend tank 2"},
	{"T-03", "Holding tank"},
}
