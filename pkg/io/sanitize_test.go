package io

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"nan", `{"x": NaN}`, `{"x": null}`},
		{"infinities", `[Infinity, -Infinity, 1]`, `[null, null, 1]`},
		{"trailing comma array", `[1, 2,]`, `[1, 2]`},
		{"trailing comma object", "{\"a\": 1,\n}", "{\"a\": 1\n}"},
		{"strings untouched", `{"s": "NaN, ] Infinity,}"}`, `{"s": "NaN, ] Infinity,}"}`},
		{"escaped quote", `{"s": "a\"NaN", "n": NaN}`, `{"s": "a\"NaN", "n": null}`},
		{"valid json", `{"a": [1, 2], "b": "c"}`, `{"a": [1, 2], "b": "c"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(sanitize([]byte(tt.in))); got != tt.want {
				t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLastObject(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"single", `{"a": 1}`, `{"a": 1}`},
		{"concatenated", `{"a": 1}{"b": {"c": 2}}`, `{"b": {"c": 2}}`},
		{"trailing garbage", `{"a": 1} oops }`, `{"a": 1}`},
		{"truncated tail", `{"a": 1}{"b": `, `{"a": 1}`},
		{"braces in strings", `{"s": "}{"}`, `{"s": "}{"}`},
		{"none", `[1, 2]`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(lastObject([]byte(tt.in))); got != tt.want {
				t.Errorf("lastObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
