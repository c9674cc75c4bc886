package classifier

import (
	"strings"

	"github.com/protocorn/launchway/modules/formfill/model"
)

// Classify tags a descriptor with its interaction category. Pure function
// of the element facts; precedence is ordered so structural signals win
// over input types, and vendor widget chrome wins over generic aria roles.
func Classify(tag, inputType string, facts model.ElementFacts) model.FieldCategory {
	tag = strings.ToLower(tag)
	inputType = strings.ToLower(inputType)

	switch {
	case tag == "input" && inputType == "file":
		return model.CategoryFileUpload
	case tag == "input" && inputType == "checkbox":
		return model.CategoryCheckbox
	case tag == "input" && inputType == "radio":
		return model.CategoryRadio
	case tag == "select":
		return model.CategorySelectNative
	case tag == "textarea":
		return model.CategoryTextarea
	}

	if isSkillsMultiselect(facts) {
		return model.CategoryMultiselectSkills
	}
	if isWorkdayDropdown(facts) {
		return model.CategorySelectWorkday
	}
	if isGreenhouseDropdown(facts) {
		return model.CategorySelectGreenhouse
	}
	if strings.EqualFold(facts.Role, "combobox") || truthyPopup(facts.AriaHasPopup) {
		return model.CategorySelectCustom
	}
	if isButtonGroup(facts) {
		return model.CategoryButtonGroup
	}

	switch inputType {
	case "date", "datetime-local", "month":
		return model.CategoryDate
	case "number":
		return model.CategoryNumber
	case "email":
		return model.CategoryEmail
	case "url":
		return model.CategoryURL
	case "tel":
		return model.CategoryPhone
	case "password":
		return model.CategoryPassword
	}
	return model.CategoryText
}

// isSkillsMultiselect matches the multi-value tokenized picker pattern: a
// widget wrapper with a filter input and multiple-selection semantics.
func isSkillsMultiselect(f model.ElementFacts) bool {
	if !f.HasSearchInput {
		return false
	}
	if f.Multiple {
		return true
	}
	cls := strings.ToLower(f.ContainerClass)
	auto := strings.ToLower(f.AutomationID)
	return strings.Contains(auto, "multiselect") ||
		strings.Contains(cls, "multiselect") ||
		strings.Contains(cls, "multi-select")
}

// isWorkdayDropdown matches the pattern of a button-styled control with a
// popup list and vendor automation markers.
func isWorkdayDropdown(f model.ElementFacts) bool {
	if !truthyPopup(f.AriaHasPopup) {
		return false
	}
	auto := strings.ToLower(f.AutomationID)
	cls := strings.ToLower(f.ContainerClass)
	return strings.Contains(auto, "selectwidget") ||
		strings.Contains(auto, "searchbox") ||
		strings.Contains(cls, "wd-")
}

// isGreenhouseDropdown matches the hidden-select-behind-styled-wrapper
// pattern: a native select replaced by a custom chrome container.
func isGreenhouseDropdown(f model.ElementFacts) bool {
	cls := strings.ToLower(f.ContainerClass)
	return f.Hidden && (strings.Contains(cls, "select__") ||
		strings.Contains(cls, "select2") ||
		strings.Contains(cls, "chosen"))
}

// isButtonGroup matches >=2 sibling buttons fronting a hidden input.
func isButtonGroup(f model.ElementFacts) bool {
	return f.SiblingButtons >= 2 && f.Hidden
}

func truthyPopup(v string) bool {
	switch strings.ToLower(v) {
	case "true", "listbox", "menu", "dialog", "tree", "grid":
		return true
	}
	return false
}
