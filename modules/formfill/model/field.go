package model

import (
	"fmt"
	"strings"
)

// FieldCategory drives the interaction strategy for a field
type FieldCategory string

const (
	CategoryText             FieldCategory = "text"
	CategoryEmail            FieldCategory = "email"
	CategoryPhone            FieldCategory = "phone"
	CategoryURL              FieldCategory = "url"
	CategoryNumber           FieldCategory = "number"
	CategoryDate             FieldCategory = "date"
	CategoryPassword         FieldCategory = "password"
	CategoryTextarea         FieldCategory = "textarea"
	CategorySelectNative     FieldCategory = "select_native"
	CategorySelectCustom     FieldCategory = "select_custom"
	CategorySelectWorkday    FieldCategory = "select_workday"
	CategorySelectGreenhouse FieldCategory = "select_greenhouse"
	CategoryMultiselectSkills FieldCategory = "multiselect_skills"
	CategoryRadio            FieldCategory = "radio"
	CategoryCheckbox         FieldCategory = "checkbox"
	CategoryButtonGroup      FieldCategory = "button_group"
	CategoryFileUpload       FieldCategory = "file_upload"
)

// IsDropdown reports whether the category needs option extraction
func (c FieldCategory) IsDropdown() bool {
	switch c {
	case CategorySelectNative, CategorySelectCustom, CategorySelectWorkday, CategorySelectGreenhouse:
		return true
	}
	return false
}

// IsTextLike reports whether the category accepts typed text
func (c FieldCategory) IsTextLike() bool {
	switch c {
	case CategoryText, CategoryEmail, CategoryPhone, CategoryURL, CategoryNumber, CategoryDate, CategoryTextarea:
		return true
	}
	return false
}

// Option is one entry in a dropdown-like field
type Option struct {
	Text  string
	Value string
}

// FieldDescriptor is one interactive element discovered on a page. It is
// created per detection pass and discarded at the end of the pass; only the
// StableID survives across passes.
type FieldDescriptor struct {
	StableID    string
	Label       string
	Category    FieldCategory
	Options     []Option
	Required    bool
	Filled      bool
	Placeholder string

	// Raw element facts carried for classification and re-resolution.
	Tag       string
	InputType string
	Index     int
	Facts     ElementFacts

	// Handle is the live element reference. Stale across passes; always
	// re-resolve from StableID before interacting.
	Handle ElementHandle
}

// ElementHandle is an opaque live reference into the browser. The concrete
// type is the driver's element; the engine never inspects it directly.
type ElementHandle interface{}

// ElementFacts are the structural observations classification runs on.
// They are collected once per pass by the detector so the classifier can
// stay a pure function.
type ElementFacts struct {
	Role         string
	AriaHasPopup string
	// ContainerClass is the class attribute of the nearest widget wrapper.
	ContainerClass string
	// AutomationID carries vendor data-automation-id style markers.
	AutomationID string
	// SiblingButtons counts button siblings sharing the element's parent.
	SiblingButtons int
	// Hidden is true for inputs visually replaced by custom chrome.
	Hidden bool
	// HasSearchInput is true when the widget wrapper contains a text input
	// used to filter a popup list.
	HasSearchInput bool
	// Multiple is the select/input multiple attribute.
	Multiple bool
}

// StableID derives the deterministic identifier per the priority order:
// id, name, aria-label, label+tag+type, placeholder+tag+type, index+tag+type.
func StableID(id, name, ariaLabel, label, placeholder, tag, inputType string, index int) string {
	switch {
	case id != "":
		return "id:" + id
	case name != "":
		return "name:" + name
	case ariaLabel != "":
		return "aria_label:" + ariaLabel
	case strings.TrimSpace(label) != "":
		return fmt.Sprintf("label:%s:%s:%s", strings.TrimSpace(label), tag, inputType)
	case placeholder != "":
		return fmt.Sprintf("placeholder:%s:%s:%s", placeholder, tag, inputType)
	default:
		return fmt.Sprintf("index:%d:%s:%s", index, tag, inputType)
	}
}
