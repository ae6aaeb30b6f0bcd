package messages

import (
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/inventory/internal/core"
)

func TestDefault_CoversEveryCode(t *testing.T) {
	c := Default()

	if diff := cmp.Diff([]string{"ar", "en"}, c.Languages()); diff != "" {
		t.Fatalf("languages (-want +got):\n%s", diff)
	}
	for _, msg := range core.UserMessages() {
		for _, lang := range c.Languages() {
			if !c.Has(lang, msg.Code) {
				t.Errorf("%s catalog missing %s", lang, msg.Code)
			}
		}
	}
}

func TestDefault_EnglishMatchesCore(t *testing.T) {
	c := Default()
	for _, msg := range core.UserMessages() {
		if got := c.Localize(msg, "en_US"); got != msg {
			t.Errorf("en %s = %+v, want %+v", msg.Code, got, msg)
		}
	}
}

func TestLocalize(t *testing.T) {
	c, err := Load(fstest.MapFS{
		"en.yaml": {Data: []byte("language: en\nmessages:\n  FILE002:\n    message: too big\n    action: shrink it\n")},
		"fr.yaml": {Data: []byte("messages:\n  FILE002:\n    message: trop grand\n    action: réduire\n")},
	})
	if err != nil {
		t.Fatal(err)
	}

	in := core.UserMessage{Message: "orig", Action: "orig action", Code: "FILE002"}
	tests := []struct {
		name   string
		msg    core.UserMessage
		locale string
		want   string
	}{
		{"language from file name", in, "fr-CA", "trop grand"},
		{"fallback to english", in, "de", "too big"},
		{"empty locale is english", in, "", "too big"},
		{"unknown code keeps message", core.UserMessage{Message: "orig", Code: "NET009"}, "fr", "orig"},
		{"no code", core.UserMessage{}, "fr", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Localize(tt.msg, tt.locale)
			if got.Message != tt.want {
				t.Errorf("Message = %q, want %q", got.Message, tt.want)
			}
			if got.Code != tt.msg.Code {
				t.Errorf("Code = %q, want %q", got.Code, tt.msg.Code)
			}
		})
	}
}

func TestMapError_Arabic(t *testing.T) {
	got := Default().MapError(core.ErrFileTooLarge, "ar_SA")
	if got.Code != "FILE002" || got.Message == core.MapError(core.ErrFileTooLarge).Message {
		t.Errorf("arabic message = %+v", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"  <b>Bold</b> move ", "Bold move"},
		{`<script>alert("x")</script>Sheet missing`, "Sheet missing"},
		{`Row 3, Column "Year": Value must be a number`, `Row 3, Column "Year": Value must be a number`},
		{"Tom & Jerry", "Tom & Jerry"},
		{"<br/>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if got := SanitizeAll([]string{"<i>a</i>", "<p></p>", "b"}); !cmp.Equal(got, []string{"a", "b"}) {
		t.Errorf("SanitizeAll = %v", got)
	}
}
