package equipment

import (
	"context"
	"strings"
)

const (
	StatusOperational = "operativo"
	StatusRetired     = "baja"
)

// Equipment is one row of the equipment inventory sheet.
type Equipment struct {
	ID          int    `json:"id"`
	Code        string `json:"codigo"`
	Name        string `json:"nombre"`
	Brand       string `json:"marca"`
	Model       string `json:"modelo"`
	Serial      string `json:"serie"`
	Location    string `json:"ambiente"`
	Facility    string `json:"establecimiento"`
	Age         string `json:"antiguedad"`
	Status      string `json:"estado"`
	Site        string `json:"sede"`
	Family      string `json:"familia"`
	LastService string `json:"ultimoMantenimiento"`
	NextService string `json:"proximoMantenimiento"`
	Technician  string `json:"tecnico"`
}

// Lookup finds equipment by code. A nil result with a nil error means no match.
type Lookup interface {
	FindByCode(ctx context.Context, code string) (*Equipment, error)
}

// MatchCode returns the first item whose code equals code, otherwise the first item
// whose code contains code or is contained in it. Items without a code never match.
func MatchCode(items []Equipment, code string) *Equipment {
	needle := strings.TrimSpace(code)
	if needle == "" {
		return nil
	}
	for i := range items {
		if strings.TrimSpace(items[i].Code) == needle {
			return &items[i]
		}
	}
	for i := range items {
		candidate := strings.TrimSpace(items[i].Code)
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, needle) || strings.Contains(needle, candidate) {
			return &items[i]
		}
	}
	return nil
}
