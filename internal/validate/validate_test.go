package validate

import (
	"strings"
	"testing"
)

func TestEmail(t *testing.T) {
	accept := []string{
		"user@example.com",
		"first.last+tag@sub.domain.org",
		"U_1%x-y@host.co",
	}
	reject := []string{
		"",
		"plain",
		"@example.com",
		"user@",
		"user@host",
		"user @example.com",
		"user@exam ple.com",
	}
	for _, s := range accept {
		if !Email(s) {
			t.Errorf("Email(%q) = false, want true", s)
		}
	}
	for _, s := range reject {
		if Email(s) {
			t.Errorf("Email(%q) = true, want false", s)
		}
	}
}

func TestPasswordStrength(t *testing.T) {
	cases := []struct {
		pw string
		ok bool
	}{
		{"Abcdef1!", true},
		{"abcdefgh", false},  // no uppercase, digit, or special
		{"ABC123!", false},   // too short
		{"Abcdefg1", false},  // no special
		{"ABCDEFG1!", false}, // no lowercase
		{"abcdefg1!", false}, // no uppercase
		{"Abcdefgh!", false}, // no digit
		{"Str0ng?Pass", true},
		{"", false},
	}
	for _, tc := range cases {
		if got := PasswordStrength(tc.pw); got != tc.ok {
			t.Errorf("PasswordStrength(%q) = %v, want %v", tc.pw, got, tc.ok)
		}
	}
}

func TestSanitizeFilename_Traversal(t *testing.T) {
	got := SanitizeFilename("../../etc/passwd")
	if strings.Contains(got, "..") {
		t.Fatalf("sanitized name %q still contains ..", got)
	}
	if strings.ContainsAny(got, "/\\") {
		t.Fatalf("sanitized name %q still contains path separators", got)
	}
}

func TestSanitizeFilename_ReplacesUnsafe(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"lab results (final).pdf", "lab_results__final_.pdf"},
		{"a/b\\c", "a_b_c"},
		{"x....y", "x.y"},
		{"über.txt", "_ber.txt"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeFilename(long)
	if len(got) != 255 {
		t.Fatalf("length = %d, want 255", len(got))
	}
}
