package domain

type fieldState uint8

const (
	fieldUnset fieldState = iota
	fieldNull
	fieldValue
)

// Field is an optional value in a partial update. The zero value is unset;
// Null explicitly clears the column; Set provides a value.
type Field[T any] struct {
	state fieldState
	value T
}

// Set returns a field carrying v.
func Set[T any](v T) Field[T] {
	return Field[T]{state: fieldValue, value: v}
}

// Null returns a field that clears the value.
func Null[T any]() Field[T] {
	return Field[T]{state: fieldNull}
}

// IsUnset reports whether the field was not provided.
func (f Field[T]) IsUnset() bool { return f.state == fieldUnset }

// IsNull reports whether the field explicitly clears the value.
func (f Field[T]) IsNull() bool { return f.state == fieldNull }

// Value returns the value and true when the field carries one.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.state == fieldValue
}

// Or returns f unless next is provided (value or null), in which case next wins.
func (f Field[T]) Or(next Field[T]) Field[T] {
	if next.state == fieldUnset {
		return f
	}

	return next
}

func applyField[T any](f Field[T], target *T) {
	switch f.state {
	case fieldValue:
		*target = f.value
	case fieldNull:
		var zero T
		*target = zero
	case fieldUnset:
	}
}

// ProductPatch is a partial update accumulated across enrichment stages.
type ProductPatch struct {
	Name        Field[string]
	Description Field[string]
	Price       Field[float64]
	Currency    Field[string]
	Sizes       Field[[]string]
	Material    Field[string]
	Gender      Field[Gender]
	Season      Field[Season]
	CategoryID  Field[string]
}

// Merge overlays next onto p; provided fields of next win.
func (p ProductPatch) Merge(next ProductPatch) ProductPatch {
	return ProductPatch{
		Name:        p.Name.Or(next.Name),
		Description: p.Description.Or(next.Description),
		Price:       p.Price.Or(next.Price),
		Currency:    p.Currency.Or(next.Currency),
		Sizes:       p.Sizes.Or(next.Sizes),
		Material:    p.Material.Or(next.Material),
		Gender:      p.Gender.Or(next.Gender),
		Season:      p.Season.Or(next.Season),
		CategoryID:  p.CategoryID.Or(next.CategoryID),
	}
}

// IsEmpty reports whether no field is provided.
func (p ProductPatch) IsEmpty() bool {
	return p.Name.IsUnset() && p.Description.IsUnset() && p.Price.IsUnset() &&
		p.Currency.IsUnset() && p.Sizes.IsUnset() && p.Material.IsUnset() &&
		p.Gender.IsUnset() && p.Season.IsUnset() && p.CategoryID.IsUnset()
}

// ApplyTo writes provided fields into prod.
func (p ProductPatch) ApplyTo(prod *Product) {
	applyField(p.Name, &prod.Name)
	applyField(p.Description, &prod.Description)
	applyField(p.Price, &prod.Price)
	applyField(p.Currency, &prod.Currency)
	applyField(p.Sizes, &prod.Sizes)
	applyField(p.Material, &prod.Material)
	applyField(p.Gender, &prod.Gender)
	applyField(p.Season, &prod.Season)
	applyField(p.CategoryID, &prod.CategoryID)
}
