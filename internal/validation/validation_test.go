package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/productbridge/productbridge/internal/models"
)

func codeOf(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	var ue *models.UserError
	if !errors.As(err, &ue) {
		t.Fatalf("error %v is not a *models.UserError", err)
	}
	return ue.Code
}

func TestValidateText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
		want     string
	}{
		{"empty", "", models.CodeTextEmpty, ""},
		{"whitespace only", "   \n\t ", models.CodeTextEmpty, ""},
		{"49 chars", strings.Repeat("a", 49), models.CodeTextTooShort, ""},
		{"50 chars", strings.Repeat("a", 50), "", strings.Repeat("a", 50)},
		{"trimmed to 49", "  " + strings.Repeat("b", 49) + "  ", models.CodeTextTooShort, ""},
		{"trimmed in range", "\n" + strings.Repeat("c", 80) + "\n", "", strings.Repeat("c", 80)},
		{"multibyte counts characters", strings.Repeat("é", 50), "", strings.Repeat("é", 50)},
		{"60000 chars", strings.Repeat("d", MaxTextChars), "", strings.Repeat("d", MaxTextChars)},
		{"60001 chars", strings.Repeat("d", MaxTextChars+1), models.CodeTextTooLong, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateText(tt.input)
			if code := codeOf(t, err); code != tt.wantCode {
				t.Fatalf("code = %q, want %q", code, tt.wantCode)
			}
			if got != tt.want {
				t.Errorf("text length = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestValidateText_Idempotent(t *testing.T) {
	in := strings.Repeat("spec line ", 10)
	first, err := ValidateText(in)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := ValidateText(first)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if first != second {
		t.Errorf("second pass changed the text: %q != %q", second, first)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
		want     string
	}{
		{"empty", "  ", models.CodeURLEmpty, ""},
		{"unparsable", "http://%zz", models.CodeURLInvalid, ""},
		{"no host", "https:///path", models.CodeURLInvalid, ""},
		{"ftp scheme", "ftp://example.com/file", models.CodeURLInvalidScheme, ""},
		{"javascript scheme", "javascript:alert(1)", models.CodeURLInvalidScheme, ""},
		{"localhost", "http://localhost/x", models.CodeURLBlockedHost, ""},
		{"localhost subdomain", "http://api.localhost/x", models.CodeURLBlockedHost, ""},
		{"loopback v4", "http://127.0.0.1/x", models.CodeURLBlockedHost, ""},
		{"loopback v6", "http://[::1]/x", models.CodeURLBlockedHost, ""},
		{"private 10/8", "http://10.0.0.5/x", models.CodeURLBlockedHost, ""},
		{"private 192.168/16", "http://192.168.1.20/x", models.CodeURLBlockedHost, ""},
		{"private 172.16/12", "http://172.20.0.1/x", models.CodeURLBlockedHost, ""},
		{"link-local metadata", "http://169.254.169.254/latest", models.CodeURLBlockedHost, ""},
		{"unspecified", "http://0.0.0.0:8080/", models.CodeURLBlockedHost, ""},
		{"mapped loopback", "http://[::ffff:127.0.0.1]/", models.CodeURLBlockedHost, ""},
		{"shorthand loopback", "http://127.1/x", models.CodeURLBlockedHost, ""},
		{"decimal loopback", "http://2130706433/x", models.CodeURLBlockedHost, ""},
		{"hex loopback", "http://0x7f000001/x", models.CodeURLBlockedHost, ""},
		{"octal-ish dotted", "http://0177.0.0.1/x", models.CodeURLBlockedHost, ""},
		{"mdns name", "http://printer.local/status", models.CodeURLBlockedHost, ""},
		{"internal name", "http://db.internal/", models.CodeURLBlockedHost, ""},
		{"public", "https://example.com/product", "", "https://example.com/product"},
		{"public address", "https://93.184.216.34/p", "", "https://93.184.216.34/p"},
		{"uppercase scheme and host", "HTTPS://Example.COM/Product", "", "https://example.com/Product"},
		{"adds root path and drops fragment", "https://example.com#specs", "", "https://example.com/"},
		{"keeps query", " https://shop.example.com/p?id=7 ", "", "https://shop.example.com/p?id=7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateURL(tt.input)
			if code := codeOf(t, err); code != tt.wantCode {
				t.Fatalf("code = %q, want %q (err %v)", code, tt.wantCode, err)
			}
			if got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateFile(t *testing.T) {
	pdf := []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")

	tests := []struct {
		name     string
		input    FileInput
		wantCode string
	}{
		{"missing", FileInput{Name: "spec.pdf"}, models.CodePDFMissing},
		{"zero length data", FileInput{Name: "spec.pdf", Data: []byte{}}, models.CodePDFMissing},
		{"too large declared", FileInput{Name: "big.pdf", Size: MaxFileBytes + 1, Data: pdf}, models.CodePDFTooLarge},
		{"wrong mime", FileInput{Name: "spec.docx", MIMEType: "application/msword", Data: pdf}, models.CodePDFInvalidType},
		{"garbage mime", FileInput{Name: "spec.pdf", MIMEType: ";;", Data: pdf}, models.CodePDFInvalidType},
		{"renamed text file", FileInput{Name: "notes.pdf", MIMEType: "application/pdf", Data: []byte("just some notes")}, models.CodePDFInvalidSignature},
		{"shorter than signature", FileInput{Name: "x.pdf", Data: []byte("%P")}, models.CodePDFInvalidSignature},
		{"valid with mime", FileInput{Name: "spec.pdf", MIMEType: "application/pdf", Data: pdf}, ""},
		{"valid with mime params", FileInput{Name: "spec.pdf", MIMEType: "Application/PDF; name=spec.pdf", Data: pdf}, ""},
		{"valid without mime", FileInput{Name: "spec.pdf", Data: pdf}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ValidateFile(tt.input)
			if code := codeOf(t, err); code != tt.wantCode {
				t.Fatalf("code = %q, want %q", code, tt.wantCode)
			}
			if tt.wantCode == "" && len(data) != len(tt.input.Data) {
				t.Errorf("returned %d bytes, want %d", len(data), len(tt.input.Data))
			}
		})
	}
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantCode  string
		wantField string
	}{
		{"not json", `nope`, models.CodeContentInvalid, ""},
		{"array payload", `[1,2]`, models.CodeContentInvalid, ""},
		{"null payload", `null`, models.CodeContentInvalid, ""},
		{"specs not array", `{"specs": {}, "highlights": [], "included": [], "featured": []}`, models.CodeContentInvalidField, "specs"},
		{"featured string", `{"specs": [], "highlights": [], "included": [], "featured": "none"}`, models.CodeContentInvalidField, "featured"},
		{"missing included", `{"specs": [], "highlights": [], "featured": []}`, models.CodeContentInvalidField, "included"},
		{"empty arrays", `{"specs": [], "highlights": [], "included": [], "featured": []}`, "", ""},
		{"odd elements tolerated", `{"specs": [{"heading": 1}], "highlights": [null], "included": [{}], "featured": [3]}`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateContent([]byte(tt.payload))
			if code := codeOf(t, err); code != tt.wantCode {
				t.Fatalf("code = %q, want %q (err %v)", code, tt.wantCode, err)
			}
			if tt.wantField == "" {
				return
			}
			var ue *models.UserError
			errors.As(err, &ue)
			if ue.Details["field"] != tt.wantField {
				t.Errorf("details.field = %v, want %q", ue.Details["field"], tt.wantField)
			}
		})
	}
}

func TestValidateContent_KeepsWellFormedEntries(t *testing.T) {
	payload := `{
		"specs": [{"heading": "Optics", "lines": [{"title": "Sensor", "text": "45MP"}]}],
		"highlights": ["Weather sealed", ""],
		"included": [{"title": "Battery"}],
		"featured": [{"title": "ISO", "value": "100-51200"}]
	}`
	content, err := ValidateContent([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(content.Specs) != 1 || content.Specs[0].Lines[0].Text != "45MP" {
		t.Errorf("specs = %+v", content.Specs)
	}
	if len(content.Highlights) != 1 {
		t.Errorf("highlights = %v, want one entry", content.Highlights)
	}
	if len(content.Included) != 1 || len(content.Featured) != 1 {
		t.Errorf("included = %v featured = %v", content.Included, content.Featured)
	}
}
