package catalog

import "github.com/shopspring/decimal"

// Seed returns the factory default beverage list.
func Seed() []Beverage {
	return []Beverage{
		{
			ID:            "drink_1753344183836_5gzzpicdt",
			Name:          "Cola",
			Type:          TypeNonAlcoholic,
			Volumes:       []int{300, 500},
			PricePer100ml: decimal.RequireFromString("0.50"),
			StockMl:       5000,
			ValveID:       "17",
			SensorID:      "27",
		},
		{
			ID:            "drink_abc123",
			Name:          "Beer",
			Type:          TypeAlcoholic,
			Volumes:       []int{300, 500},
			PricePer100ml: decimal.RequireFromString("1.20"),
			StockMl:       3000,
			ValveID:       "18",
			SensorID:      "28",
		},
		{
			ID:            "drink_coffee123",
			Name:          "Coffee",
			Type:          TypeHot,
			Volumes:       []int{300, 500},
			PricePer100ml: decimal.RequireFromString("0.70"),
			StockMl:       2000,
			ValveID:       "19",
			SensorID:      "29",
		},
		{
			ID:            "drink_water123",
			Name:          "Sparkling Water",
			Type:          TypeNonAlcoholic,
			Volumes:       []int{300, 500},
			PricePer100ml: decimal.RequireFromString("0.40"),
			StockMl:       4500,
			ValveID:       "20",
			SensorID:      "30",
		},
	}
}
