// Package rules holds the form validation rules registered next to the
// client bootstrap.
package rules

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RequiredCompanions is the number of companion fields AllChecked inspects.
const RequiredCompanions = 4

// ErrNotAllChecked is returned when a field or one of its companions is not
// checked.
var ErrNotAllChecked = validation.NewError("validation_all_fields_checked", "請勾選所有欄位")

// AllChecked passes when value and the first four companion fields are all
// set. A value counts as set when ozzo-validation does not consider it empty,
// so false, 0, "" and nil all fail, and pointers are
// dereferenced. Fewer than four companions fail.
func AllChecked(value interface{}, fields ...interface{}) error {
	if len(fields) < RequiredCompanions {
		return ErrNotAllChecked
	}
	if validation.IsEmpty(value) {
		return ErrNotAllChecked
	}
	for _, field := range fields[:RequiredCompanions] {
		if validation.IsEmpty(field) {
			return ErrNotAllChecked
		}
	}
	return nil
}

// AllCheckedRule adapts AllChecked for use in validation.Field. Pointer
// companions are dereferenced when the rule runs, so pass pointers to see
// the current form values.
func AllCheckedRule(fields ...interface{}) validation.Rule {
	return validation.By(func(value interface{}) error {
		return AllChecked(value, fields...)
	})
}
