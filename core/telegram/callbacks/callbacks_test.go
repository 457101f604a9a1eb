package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	cases := []struct {
		data    string
		key     string
		payload string
	}{
		{"\fflowchoice|savings", "flowchoice", "savings"},
		{"\fflownav|confirm", "flownav", "confirm"},
		{"\fflownav", "flownav", ""},
		{"plain", "plain", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		key, payload := Parse(&tele.Callback{Data: tc.data})
		if key != tc.key || payload != tc.payload {
			t.Errorf("Parse(%q) = %q, %q; want %q, %q", tc.data, key, payload, tc.key, tc.payload)
		}
	}
}

func TestParseNilCallback(t *testing.T) {
	key, payload := Parse(nil)
	if key != "" || payload != "" {
		t.Fatalf("Parse(nil) = %q, %q", key, payload)
	}
}
