package menu

import (
	"sort"
	"strings"
)

// Form field names used as FieldErrors keys.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldPrice       = "price"
	FieldImage       = "image"
)

// FormData is the editable subset of an Item. It is the payload of both
// create and update calls; the server assigns the identifier and timestamps.
type FormData struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Image       string `json:"image"`
}

// FieldErrors maps a form field name to a human readable message.
// An empty map means the form is valid.
type FieldErrors map[string]string

// Fields returns the invalid field names in sorted order.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Validate checks the form data and returns the errors keyed by field.
// It never touches the network.
func Validate(f FormData) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(f.Name) == "" {
		errs[FieldName] = "Name is required"
	}

	if strings.TrimSpace(f.Description) == "" {
		errs[FieldDescription] = "Description is required"
	}

	if f.Price <= 0 {
		errs[FieldPrice] = "Price must be greater than 0"
	}

	if strings.TrimSpace(f.Image) == "" {
		errs[FieldImage] = "Image URL is required"
	}

	return errs
}
