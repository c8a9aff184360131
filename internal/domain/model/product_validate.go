//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// FieldError reports the first invalid field of a request, named as it appears in JSON.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gtefield":
		return "must not be lower than price"
	case "url":
		return "must be an absolute URL"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// Validate normalizes r and checks it against its field rules.
func (r *CreateProductRequest) Validate() error {
	r.MerchantID = strings.TrimSpace(r.MerchantID)
	r.Title = strings.TrimSpace(r.Title)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	r.Slug = strings.TrimSpace(r.Slug)

	if err := structError(validate.Struct(r), "CreateProductRequest."); err != nil {
		return err
	}
	if r.Slug != "" && !slug.IsSlug(r.Slug) {
		return &FieldError{Field: "slug", Message: "must be lowercase letters, digits and dashes"}
	}
	return nil
}

// structError turns the first validator failure into a FieldError named by its JSON path.
func structError(err error, prefix string) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &FieldError{Field: strings.TrimPrefix(fe.Namespace(), prefix), Message: fieldMessage(fe)}
	}
	return err
}

// ErrEmptyUpdate is returned by UpdateProductRequest.Validate when no field is set.
var ErrEmptyUpdate = errors.New("update sets no fields")

// Validate normalizes r and checks the fields it sets.
func (r *UpdateProductRequest) Validate() error {
	trim := func(s *string) {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	trim(r.Title)
	trim(r.BrandName)
	if r.Currency != nil {
		*r.Currency = strings.ToUpper(strings.TrimSpace(*r.Currency))
	}
	if r.Title == nil && r.Description == nil && r.BrandName == nil && r.Price == nil &&
		r.CompareAtPrice == nil && r.Currency == nil && r.Categories == nil && r.InStock == nil {
		return ErrEmptyUpdate
	}
	return structError(validate.Struct(r), "UpdateProductRequest.")
}

// Apply writes the set fields onto p and checks the result still holds together.
func (r *UpdateProductRequest) Apply(p *Product) error {
	if r.Title != nil {
		p.Title = *r.Title
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.BrandName != nil {
		p.BrandName = *r.BrandName
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.CompareAtPrice != nil {
		v := *r.CompareAtPrice
		p.CompareAtPrice = &v
	}
	if r.Currency != nil {
		p.Currency = *r.Currency
	}
	if r.Categories != nil {
		p.Categories = slices.Clone(r.Categories)
	}
	if r.InStock != nil {
		p.InStock = *r.InStock
	}
	if p.CompareAtPrice != nil && *p.CompareAtPrice < p.Price {
		return &FieldError{Field: "compareAtPrice", Message: "must not be lower than price"}
	}
	return nil
}

// Slugify derives a URL slug from a product title.
func Slugify(title string) string {
	return slug.Make(title)
}

// ToProduct builds the product to insert. The slug falls back to one derived from the title.
func (r *CreateProductRequest) ToProduct() Product {
	p := Product{
		MerchantID:     r.MerchantID,
		Title:          r.Title,
		Slug:           r.Slug,
		Description:    r.Description,
		BrandName:      strings.TrimSpace(r.BrandName),
		Price:          r.Price,
		CompareAtPrice: r.CompareAtPrice,
		Currency:       r.Currency,
		Categories:     r.Categories,
		Values:         r.Values,
		Images:         r.Images,
		InStock:        true,
		ExternalID:     r.ExternalID,
		ExternalSource: r.ExternalSource,
	}
	if p.Slug == "" {
		p.Slug = Slugify(r.Title)
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if r.InStock != nil {
		p.InStock = *r.InStock
	}
	return p
}
