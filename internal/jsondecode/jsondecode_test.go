package jsondecode_test

import (
	"testing"

	"groundedtheory.dev/core/internal/jsondecode"
)

func TestDecodeCascade(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	tests := []struct {
		name string
		raw  string
		want payload
	}{
		{
			name: "clean json",
			raw:  `{"name":"alpha","n":1}`,
			want: payload{Name: "alpha", N: 1},
		},
		{
			name: "wrapped in markdown fence",
			raw:  "```json\n{\"name\":\"alpha\",\"n\":1}\n```",
			want: payload{Name: "alpha", N: 1},
		},
		{
			name: "prose prefix before object",
			raw:  "Sure, here is the result:\n{\"name\":\"alpha\",\"n\":1}\nHope this helps!",
			want: payload{Name: "alpha", N: 1},
		},
		{
			name: "trailing comma",
			raw:  `{"name":"alpha","n":1,}`,
			want: payload{Name: "alpha", N: 1},
		},
		{
			name: "unquoted keys",
			raw:  `{name:"alpha",n:1}`,
			want: payload{Name: "alpha", N: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			if err := jsondecode.Decode(tt.raw, &got); err != nil {
				t.Fatalf("Decode(%q) error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDecodeFailureCarriesSnippet(t *testing.T) {
	var out map[string]any
	raw := "not json at all, just prose that goes on for a while " +
		"without ever producing a brace or bracket to anchor on"
	err := jsondecode.Decode(raw, &out)
	if err == nil {
		t.Fatal("expected error for non-JSON input")
	}
	var decodeErr *jsondecode.Error
	if !asError(err, &decodeErr) {
		t.Fatalf("expected *jsondecode.Error, got %T", err)
	}
	if decodeErr.Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func asError(err error, target **jsondecode.Error) bool {
	if e, ok := err.(*jsondecode.Error); ok {
		*target = e
		return true
	}
	return false
}
