package ml

import "math"

// Feature describes one input of a classifier and the range its widget enforces.
// Default only pre-populates the widget; it is never used to validate data.
type Feature struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step"`
}

// Clamp pins v into [Min, Max]. NaN collapses to Default.
func (f Feature) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return f.Default
	}
	return math.Max(f.Min, math.Min(f.Max, v))
}

var irisFeatures = []Feature{
	{Name: "sepal_length", Label: "Sepal Length", Min: 4.3, Max: 7.9, Default: 5.1, Step: 0.1},
	{Name: "sepal_width", Label: "Sepal Width", Min: 2.0, Max: 4.4, Default: 3.5, Step: 0.1},
	{Name: "petal_length", Label: "Petal Length", Min: 1.0, Max: 6.9, Default: 1.4, Step: 0.1},
	{Name: "petal_width", Label: "Petal Width", Min: 0.1, Max: 2.5, Default: 0.2, Step: 0.1},
}

var wineFeatures = []Feature{
	{Name: "alcohol", Label: "Alcohol", Min: 11.0, Max: 15.0, Default: 13.2, Step: 0.01},
	{Name: "malic_acid", Label: "Malic Acid", Min: 0.5, Max: 6.0, Default: 1.78, Step: 0.01},
	{Name: "ash", Label: "Ash", Min: 1.0, Max: 4.0, Default: 2.14, Step: 0.01},
	{Name: "alcalinity_of_ash", Label: "Alcalinity", Min: 10.0, Max: 30.0, Default: 11.2, Step: 0.01},
	{Name: "magnesium", Label: "Magnesium", Min: 70.0, Max: 160.0, Default: 100.0, Step: 0.01},
	{Name: "total_phenols", Label: "Total Phenols", Min: 0.5, Max: 4.0, Default: 2.65, Step: 0.01},
	{Name: "flavanoids", Label: "Flavanoids", Min: 0.5, Max: 5.0, Default: 2.76, Step: 0.01},
	{Name: "nonflavanoid_phenols", Label: "Nonflavanoid", Min: 0.1, Max: 0.7, Default: 0.26, Step: 0.01},
	{Name: "proanthocyanins", Label: "Proanthocyanins", Min: 0.4, Max: 3.5, Default: 1.28, Step: 0.01},
	{Name: "color_intensity", Label: "Color Intensity", Min: 1.0, Max: 13.0, Default: 4.38, Step: 0.01},
	{Name: "hue", Label: "Hue", Min: 0.5, Max: 1.8, Default: 1.05, Step: 0.01},
	{Name: "od280_od315_of_diluted_wines", Label: "OD280/OD315", Min: 1.0, Max: 4.0, Default: 3.40, Step: 0.01},
	{Name: "proline", Label: "Proline", Min: 200.0, Max: 2000.0, Default: 1050.0, Step: 0.01},
}

// Schema returns the ordered feature list for kind. The slice is shared; do not modify it.
func Schema(kind ModelKind) []Feature {
	switch kind {
	case Iris:
		return irisFeatures
	case Wine:
		return wineFeatures
	default:
		return nil
	}
}

// Defaults returns the widget defaults for kind keyed by feature name.
func Defaults(kind ModelKind) map[string]float64 {
	schema := Schema(kind)
	values := make(map[string]float64, len(schema))
	for _, f := range schema {
		values[f.Name] = f.Default
	}
	return values
}
