package domain

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// CategoryLabels maps a provider place type (e.g. "shopping_mall") to the
// label shown in the details panel.
type CategoryLabels map[string]string

// DefaultCategoryLabels is the built-in Spanish table.
func DefaultCategoryLabels() CategoryLabels {
	return CategoryLabels{
		"airport":        "Aeropuerto",
		"shopping_mall":  "Centro Comercial",
		"restaurant":     "Restaurante",
		"park":           "Parque",
		"school":         "Escuela",
		"hospital":       "Hospital",
		"establishment":  "Establecimiento",
		"amusement_park": "Parque de diversiones",
		"bakery":         "Pastelería",
	}
}

// LoadCategoryLabels reads a JSON object of type -> label from path.
func LoadCategoryLabels(path string) (CategoryLabels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read category labels")
	}

	var labels CategoryLabels
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, errors.Wrap(err, "parse category labels")
	}
	return labels, nil
}

// Label picks the label for the first provider type. Unknown types are
// returned raw; no types yields "".
func (l CategoryLabels) Label(types []string) string {
	if len(types) == 0 {
		return ""
	}
	first := strings.TrimSpace(types[0])
	if label, ok := l[first]; ok && label != "" {
		return label
	}
	return first
}
