package form

import (
	"errors"
	"regexp"
	"testing"
)

func TestNewSchemaRejectsDuplicateKeys(t *testing.T) {
	_, err := NewSchema("f",
		FieldSpec{Key: "a", Prompt: "a?"},
		FieldSpec{Key: "a", Prompt: "again?"},
	)
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestNewSchemaRejectsForwardDependency(t *testing.T) {
	_, err := NewSchema("f",
		FieldSpec{Key: "a", Prompt: "a?", DependsOn: "b"},
		FieldSpec{Key: "b", Prompt: "b?"},
	)
	if err == nil {
		t.Fatal("expected forward dependency error")
	}
}

func TestNewSchemaRejectsChoiceWithoutChoices(t *testing.T) {
	_, err := NewSchema("f", FieldSpec{Key: "a", Prompt: "a?", Mode: ModeChoice})
	if err == nil {
		t.Fatal("expected error for choice field without choices")
	}
}

func TestNextAndCursor(t *testing.T) {
	s := MustSchema("f",
		FieldSpec{Key: "a", Prompt: "a?"},
		FieldSpec{Key: "b", Prompt: "b?"},
	)
	values := Values{}
	if f := s.Next(values); f == nil || f.Key != "a" {
		t.Fatalf("Next = %v, want a", f)
	}
	values["a"] = "x"
	if f := s.Next(values); f == nil || f.Key != "b" {
		t.Fatalf("Next = %v, want b", f)
	}
	if got := s.Cursor(values); got != 1 {
		t.Fatalf("Cursor = %d, want 1", got)
	}
	values["b"] = "y"
	if f := s.Next(values); f != nil {
		t.Fatalf("Next = %v, want nil", f)
	}
	if got := s.Cursor(values); got != s.Len() {
		t.Fatalf("Cursor = %d, want %d", got, s.Len())
	}
}

func TestClearCascadesThroughDependencyChain(t *testing.T) {
	s := MustSchema("f",
		FieldSpec{Key: "country", Prompt: "?"},
		FieldSpec{Key: "routing", Prompt: "?", DependsOn: "country"},
		FieldSpec{Key: "branch", Prompt: "?", DependsOn: "routing"},
		FieldSpec{Key: "note", Prompt: "?"},
	)
	values := Values{"country": "usa", "routing": "123456789", "branch": "main", "note": "hi"}
	s.Clear(values, "country")
	for _, key := range []string{"country", "routing", "branch"} {
		if _, ok := values[key]; ok {
			t.Fatalf("%s should have been cleared", key)
		}
	}
	if _, ok := values["note"]; !ok {
		t.Fatal("independent field should survive the cascade")
	}
}

func TestValidateChoiceMembership(t *testing.T) {
	s := MustSchema("f", FieldSpec{
		Key: "type", Prompt: "?", Mode: ModeChoice,
		Choices: []Choice{{Key: "savings", Label: "Savings"}, {Key: "checking", Label: "Checking"}},
	})
	field, _ := s.Field("type")

	got, err := s.Validate(field, "  SAVINGS ", Values{})
	if err != nil || got != "savings" {
		t.Fatalf("Validate = %q, %v; want savings", got, err)
	}

	_, err = s.Validate(field, "bonds", Values{})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestValidateDependencyUnmet(t *testing.T) {
	s := MustSchema("f",
		FieldSpec{Key: "country", Prompt: "?"},
		FieldSpec{Key: "routing", Prompt: "?", DependsOn: "country"},
	)
	field, _ := s.Field("routing")
	_, err := s.Validate(field, "123456789", Values{})
	if !errors.Is(err, ErrDependencyUnmet) {
		t.Fatalf("expected ErrDependencyUnmet, got %v", err)
	}
}

func TestEnumCanonicalizesLowercase(t *testing.T) {
	validate := Enum("USA", "can", "Gbr")
	got, err := validate("UsA", nil)
	if err != nil || got != "usa" {
		t.Fatalf("Enum = %q, %v; want usa", got, err)
	}
	if _, err := validate("mars", nil); err == nil {
		t.Fatal("expected rejection for non-member")
	}
}

func TestAmountValidator(t *testing.T) {
	validate := Amount()
	cases := []struct {
		in string
		ok bool
	}{
		{"12.50", true},
		{"0", true},
		{"100", true},
		{"abc", false},
		{"-5", false},
		{"1,50", false},
		{"$10", false},
		{"", false},
	}
	for _, tc := range cases {
		_, err := validate(tc.in, nil)
		if tc.ok && err != nil {
			t.Errorf("Amount(%q) unexpected error: %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("Amount(%q) expected rejection", tc.in)
		}
	}
}

func TestMatchValidator(t *testing.T) {
	validate := Match(regexp.MustCompile(`^\d{9}$`), "must be 9 digits")
	if _, err := validate("123456789", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := validate("1234", nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Reason != "must be 9 digits" {
		t.Fatalf("expected hint in validation error, got %v", err)
	}
}
