package domain

// FormField describes one input of a feature's intake form.
type FormField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Feature is the externally owned catalog entry a ticket is raised against.
type Feature struct {
	ID         string
	Key        string
	Name       string
	Icon       string
	FormSchema []FormField
	Categories []string
}

// AllowsCategory reports whether category is declared by the feature.
// Features without declared categories accept any category.
func (f *Feature) AllowsCategory(category string) bool {
	if len(f.Categories) == 0 {
		return true
	}
	for _, c := range f.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// MissingFields returns the required form keys absent or empty in data.
func (f *Feature) MissingFields(data map[string]any) []string {
	var missing []string
	for _, field := range f.FormSchema {
		if !field.Required {
			continue
		}
		v, ok := data[field.Key]
		if !ok || v == nil {
			missing = append(missing, field.Key)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, field.Key)
		}
	}
	return missing
}
