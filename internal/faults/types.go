package faults

// Category groups failures by the subsystem that raised them.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryFileSystem Category = "file_system"
	CategoryPermission Category = "permission"
	CategoryValidation Category = "validation"
	CategoryLLM        Category = "llm"
	CategoryTool       Category = "tool"
	CategoryWorkflow   Category = "workflow"
	CategoryUnknown    Category = "unknown"
)

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	return []Category{
		CategoryNetwork, CategoryFileSystem, CategoryPermission, CategoryValidation,
		CategoryLLM, CategoryTool, CategoryWorkflow, CategoryUnknown,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// Severity indicates how serious a failure is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a member of the closed severity set.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}
