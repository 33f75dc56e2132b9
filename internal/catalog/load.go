package catalog

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// file is the on-disk catalog layout.
type file struct {
	Beverages []fileBeverage `yaml:"beverages"`
}

type fileBeverage struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Volumes       []int  `yaml:"volumes"`
	PricePer100ml string `yaml:"price_per_100ml"`
	StockMl       int    `yaml:"stock_ml"`
	ValveID       string `yaml:"valve_id,omitempty"`
	SensorID      string `yaml:"sensor_id,omitempty"`
	ImageURL      string `yaml:"image_url,omitempty"`
}

// LoadFile reads a YAML catalog. Unknown fields are rejected. Names are
// trimmed and NFC-normalised so that visually identical names compare equal
// regardless of how the file was typed.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Memory, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	beverages := make([]Beverage, 0, len(f.Beverages))
	for i, fb := range f.Beverages {
		price, err := decimal.NewFromString(strings.TrimSpace(fb.PricePer100ml))
		if err != nil {
			return nil, fmt.Errorf("beverage[%d] %s: invalid price %q: %w", i, fb.ID, fb.PricePer100ml, err)
		}
		beverages = append(beverages, Beverage{
			ID:            strings.TrimSpace(fb.ID),
			Name:          norm.NFC.String(strings.TrimSpace(fb.Name)),
			Type:          Type(fb.Type),
			Volumes:       fb.Volumes,
			PricePer100ml: price,
			StockMl:       fb.StockMl,
			ValveID:       strings.TrimSpace(fb.ValveID),
			SensorID:      strings.TrimSpace(fb.SensorID),
			ImageURL:      fb.ImageURL,
		})
	}
	return NewMemory(beverages...)
}
