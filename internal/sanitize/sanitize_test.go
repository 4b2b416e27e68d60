package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Swiggy order", "Swiggy order"},
		{"html tags removed", "<b>Zomato</b>", "Zomato"},
		{"script removed", "pay<script>alert(1)</script>", "pay"},
		{"entities kept readable", "Tom & Jerry", "Tom & Jerry"},
		{"control chars dropped", "UPI\x00/123\x07", "UPI/123"},
		{"trimmed", "  rent  ", "rent"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"angle brackets kept", "To <merchant> via UPI", "To <merchant> via UPI"},
		{"reference kept", "UPI/P2M/<REF123>/Amazon", "UPI/P2M/<REF123>/Amazon"},
		{"control chars dropped", "NEFT\x00 <IN>\x1b", "NEFT <IN>"},
		{"trimmed", "\t rent \n", "rent"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plain(tt.in); got != tt.want {
				t.Errorf("Plain(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"statement.pdf", "statement.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\nov.pdf`, "nov.pdf"},
		{"upload.pdf?token=abc", "upload.pdf"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := FileName(tt.in); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
