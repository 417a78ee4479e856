package sanitize

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Продаю диван", "Продаю диван"},
		{"ampersand kept", "Торг & обмен", "Торг & обмен"},
		{"quotes kept", `Диван "Честер"`, `Диван "Честер"`},
		{"script removed", "hi<script>alert(1)</script>", "hi"},
		{"tags stripped", "<b>bold</b>", "bold"},
		{"newlines kept", "line one\nline two", "line one\nline two"},
		{"trimmed", "  padded  ", "padded"},
		{"only markup", "<img src=x onerror=alert(1)>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLine(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"iPhone   15\nPro", "iPhone 15 Pro"},
		{"<p>Велосипед</p><p>горный</p>", "Велосипед горный"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Line(tt.input); got != tt.want {
			t.Errorf("Line(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
