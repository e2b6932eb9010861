package failures

import (
	"fmt"
	"strings"
)

const (
	ColumnFailedTest   = "Failed test"
	ColumnArch         = "Arch"
	ColumnErrorMessage = "Error message"
	ColumnTrack        = "Track"
	ColumnStatus       = "status"
	ColumnTestConfig   = "Test Config"
	ColumnJira         = "jira"
	ColumnAssignee     = "assignee"

	// NotAvailable is rendered in place of fields the CSV does not provide.
	NotAvailable = "N/A"
)

// Validation controls how ParseRow treats rows that lack a required field.
type Validation int

const (
	// ValidationStrict rejects rows with a missing or empty required field.
	ValidationStrict Validation = iota
	// ValidationLenient fills missing required fields with NotAvailable.
	ValidationLenient
)

// TitleStyle selects the issue title layout.
type TitleStyle string

const (
	TitleStyleConfig TitleStyle = "config"
	TitleStyleLegacy TitleStyle = "legacy"
)

var requiredColumns = []string{ColumnFailedTest, ColumnArch, ColumnErrorMessage}

// MissingFieldError is returned for a row that does not carry a required column.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("'%s' field is missing or empty in the CSV", e.Field)
}

// Report is the structured form of one CSV row describing a failed test.
// TestConfig, JiraRef and Assignee are optional; an empty value means the
// row did not provide them.
type Report struct {
	FailedTest   string
	Arch         string
	ErrorMessage string
	Track        string
	Status       string

	TestConfig string
	JiraRef    string
	Assignee   string
}

// ParseRow converts a header-keyed CSV record into a Report.
func ParseRow(row map[string]string, validation Validation) (Report, error) {
	required := map[string]string{}
	for _, column := range requiredColumns {
		value := row[column]
		if value == "" {
			if validation == ValidationStrict {
				return Report{}, &MissingFieldError{Field: column}
			}
			value = NotAvailable
		}
		required[column] = value
	}

	return Report{
		FailedTest:   strings.ReplaceAll(required[ColumnFailedTest], "::", " "),
		Arch:         required[ColumnArch],
		ErrorMessage: required[ColumnErrorMessage],
		Track:        valueOr(row, NotAvailable, ColumnTrack),
		Status:       valueOr(row, NotAvailable, ColumnStatus, "Status"),
		TestConfig:   valueOr(row, "", ColumnTestConfig),
		JiraRef:      valueOr(row, "", ColumnJira, "Jira"),
		Assignee:     valueOr(row, "", ColumnAssignee, "Assignee"),
	}, nil
}

// valueOr returns the value of the first column present in the row, trying
// the given spellings in order, or fallback when none is present.
func valueOr(row map[string]string, fallback string, columns ...string) string {
	for _, column := range columns {
		if value, ok := row[column]; ok {
			return value
		}
	}
	return fallback
}

// Title is the deduplication key of the issue filed for this report.
func (r Report) Title(style TitleStyle) string {
	if style == TitleStyleLegacy {
		return fmt.Sprintf("Test Failed: %s", r.FailedTest)
	}
	testConfig := r.TestConfig
	if testConfig == "" {
		testConfig = NotAvailable
	}
	return fmt.Sprintf("(%s) %s", testConfig, r.FailedTest)
}

// Body renders the Markdown issue description. The Jira bullet is only
// present when the row references a Jira issue, the Docker ID bullet only
// when dockerID is set. Values are not escaped.
func (r Report) Body(dockerID string) string {
	var b strings.Builder
	bullet := func(name, value string) {
		fmt.Fprintf(&b, "- **%s**: %s\n", name, value)
	}
	bullet("Failed test", r.FailedTest)
	bullet("Arch", r.Arch)
	bullet("Error message", r.ErrorMessage)
	bullet("Track", r.Track)
	bullet("Status", r.Status)
	if r.JiraRef != "" {
		bullet("Jira", r.JiraRef)
	}
	if dockerID != "" {
		bullet("Docker ID", dockerID)
	}
	return b.String()
}
