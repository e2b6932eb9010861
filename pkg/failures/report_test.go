package failures

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRow(t *testing.T) {
	testCases := []struct {
		name        string
		row         map[string]string
		validation  Validation
		expected    Report
		expectedErr error
	}{
		{
			name: "all columns present",
			row: map[string]string{
				"Failed test":   "pkg::TestFoo",
				"Arch":          "aarch64",
				"Error message": "panic: boom",
				"Track":         "nightly",
				"status":        "fail",
				"Test Config":   "fips",
				"jira":          "OCPBUGS-1",
				"assignee":      "octocat",
			},
			expected: Report{
				FailedTest:   "pkg TestFoo",
				Arch:         "aarch64",
				ErrorMessage: "panic: boom",
				Track:        "nightly",
				Status:       "fail",
				TestConfig:   "fips",
				JiraRef:      "OCPBUGS-1",
				Assignee:     "octocat",
			},
		},
		{
			name: "optional columns absent",
			row: map[string]string{
				"Failed test":   "suite::case1",
				"Arch":          "x86_64",
				"Error message": "timeout",
			},
			expected: Report{
				FailedTest:   "suite case1",
				Arch:         "x86_64",
				ErrorMessage: "timeout",
				Track:        NotAvailable,
				Status:       NotAvailable,
			},
		},
		{
			name: "capitalised status and assignee columns",
			row: map[string]string{
				"Failed test":   "a::b::c",
				"Arch":          "s390x",
				"Error message": "oops",
				"Status":        "flaky",
				"Assignee":      "hubot",
			},
			expected: Report{
				FailedTest:   "a b c",
				Arch:         "s390x",
				ErrorMessage: "oops",
				Track:        NotAvailable,
				Status:       "flaky",
				Assignee:     "hubot",
			},
		},
		{
			name: "lower-case spelling wins over capitalised",
			row: map[string]string{
				"Failed test":   "t",
				"Arch":          "x86_64",
				"Error message": "e",
				"status":        "lower",
				"Status":        "upper",
			},
			expected: Report{
				FailedTest:   "t",
				Arch:         "x86_64",
				ErrorMessage: "e",
				Track:        NotAvailable,
				Status:       "lower",
			},
		},
		{
			name: "present but empty optional column stays empty",
			row: map[string]string{
				"Failed test":   "t",
				"Arch":          "x86_64",
				"Error message": "e",
				"Track":         "",
			},
			expected: Report{
				FailedTest:   "t",
				Arch:         "x86_64",
				ErrorMessage: "e",
				Status:       NotAvailable,
			},
		},
		{
			name: "missing arch is rejected in strict mode",
			row: map[string]string{
				"Failed test":   "t",
				"Error message": "e",
			},
			expectedErr: &MissingFieldError{Field: "Arch"},
		},
		{
			name: "empty failed test is rejected in strict mode",
			row: map[string]string{
				"Failed test":   "",
				"Arch":          "x86_64",
				"Error message": "e",
			},
			expectedErr: &MissingFieldError{Field: "Failed test"},
		},
		{
			name: "missing required columns default in lenient mode",
			row: map[string]string{
				"Failed test": "t",
			},
			validation: ValidationLenient,
			expected: Report{
				FailedTest:   "t",
				Arch:         NotAvailable,
				ErrorMessage: NotAvailable,
				Track:        NotAvailable,
				Status:       NotAvailable,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			report, err := ParseRow(tc.row, tc.validation)
			if tc.expectedErr != nil {
				var missing *MissingFieldError
				if !errors.As(err, &missing) {
					t.Fatalf("expected a MissingFieldError, got %v", err)
				}
				if diff := cmp.Diff(tc.expectedErr, missing); diff != "" {
					t.Fatalf("unexpected error: %s", diff)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.expected, report); diff != "" {
				t.Errorf("unexpected report: %s", diff)
			}
		})
	}
}

func TestTitle(t *testing.T) {
	testCases := []struct {
		name     string
		report   Report
		style    TitleStyle
		expected string
	}{
		{
			name:     "config style without test config",
			report:   Report{FailedTest: "suite case1"},
			style:    TitleStyleConfig,
			expected: "(N/A) suite case1",
		},
		{
			name:     "config style with test config",
			report:   Report{FailedTest: "suite case1", TestConfig: "upgrade"},
			style:    TitleStyleConfig,
			expected: "(upgrade) suite case1",
		},
		{
			name:     "unset style falls back to config style",
			report:   Report{FailedTest: "x"},
			expected: "(N/A) x",
		},
		{
			name:     "legacy style",
			report:   Report{FailedTest: "suite case1", TestConfig: "upgrade"},
			style:    TitleStyleLegacy,
			expected: "Test Failed: suite case1",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			first, second := tc.report.Title(tc.style), tc.report.Title(tc.style)
			if first != second {
				t.Fatalf("title is not stable: %q != %q", first, second)
			}
			if first != tc.expected {
				t.Errorf("expected title %q, got %q", tc.expected, first)
			}
		})
	}
}

func TestBody(t *testing.T) {
	testCases := []struct {
		name     string
		report   Report
		dockerID string
		expected string
	}{
		{
			name: "docker id appended",
			report: Report{
				FailedTest:   "suite case1",
				Arch:         "x86_64",
				ErrorMessage: "timeout",
				Track:        "nightly",
				Status:       "fail",
			},
			dockerID: "abc123",
			expected: "- **Failed test**: suite case1\n" +
				"- **Arch**: x86_64\n" +
				"- **Error message**: timeout\n" +
				"- **Track**: nightly\n" +
				"- **Status**: fail\n" +
				"- **Docker ID**: abc123\n",
		},
		{
			name: "jira reference without docker id",
			report: Report{
				FailedTest:   "t",
				Arch:         "arm64",
				ErrorMessage: "*bold* <b>html</b>",
				Track:        NotAvailable,
				Status:       NotAvailable,
				JiraRef:      "OCPBUGS-7",
			},
			expected: "- **Failed test**: t\n" +
				"- **Arch**: arm64\n" +
				"- **Error message**: *bold* <b>html</b>\n" +
				"- **Track**: N/A\n" +
				"- **Status**: N/A\n" +
				"- **Jira**: OCPBUGS-7\n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.expected, tc.report.Body(tc.dockerID)); diff != "" {
				t.Errorf("unexpected body: %s", diff)
			}
		})
	}
}

func TestEndToEndFormatting(t *testing.T) {
	report, err := ParseRow(map[string]string{
		"Failed test":   "suite::case1",
		"Arch":          "x86_64",
		"Error message": "timeout",
		"Track":         "nightly",
		"status":        "fail",
	}, ValidationStrict)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title := report.Title(TitleStyleConfig); title != "(N/A) suite case1" {
		t.Errorf("unexpected title %q", title)
	}
	lines := strings.Split(strings.TrimSuffix(report.Body("abc123"), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected six bullet lines, got %d: %q", len(lines), lines)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "- **") {
			t.Errorf("line %q is not a bullet", line)
		}
	}
	if last := lines[len(lines)-1]; last != "- **Docker ID**: abc123" {
		t.Errorf("unexpected last line %q", last)
	}
}
